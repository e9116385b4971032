// internal/requestinfo/requestinfo_test.go
//
// Unit-tests for campaign attribution, language parsing, and the Enrich
// middleware.  No GeoLite2 database is opened, so Geo carries only the IP.
//
// Run: go test ./internal/requestinfo -v

package requestinfo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/avct/uasurfer"
)

func TestRemoteIP(t *testing.T) {
	for in, want := range map[string]string{
		"192.0.2.1:80":    "192.0.2.1",
		"203.0.113.7":     "203.0.113.7",
		"[2001:db8::1]:9": "2001:db8::1",
	} {
		if got := remoteIP(in); got.String() != want {
			t.Errorf("remoteIP(%q) = %v, want %s", in, got, want)
		}
	}
	if remoteIP("garbage") != nil {
		t.Error("garbage parsed as an IP")
	}
}

func TestCampaignOf(t *testing.T) {
	cases := []struct {
		name, query, ref, host string
		want                   Campaign
	}{
		{"utm wins", "utm_source=newsletter&utm_medium=email&utm_campaign=spring", "https://facebook.com/", "hotboxhair.org",
			Campaign{Source: "newsletter", Medium: "email", Name: "spring"}},
		{"external referrer", "", "https://www.facebook.com/post/1", "hotboxhair.org",
			Campaign{Source: "facebook.com", Medium: "referral"}},
		{"self referral", "", "https://www.hotboxhair.org/contact", "hotboxhair.org:443",
			Campaign{Source: "direct"}},
		{"nothing", "", "", "hotboxhair.org", Campaign{Source: "direct"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			q, _ := url.ParseQuery(c.query)
			if got := campaignOf(q, c.ref, c.host); got != c.want {
				t.Fatalf("campaign = %+v, want %+v", got, c.want)
			}
		})
	}
}

func TestPrimaryLang(t *testing.T) {
	if got := primaryLang("en-US,en;q=0.9,fr;q=0.8"); got != "en-us" {
		t.Fatalf("primaryLang = %q", got)
	}
	if got := primaryLang("fr;q=0.8"); got != "fr" {
		t.Fatalf("primaryLang = %q", got)
	}
	if primaryLang("") != "" {
		t.Fatal("expected empty tag")
	}
}

func TestVersion(t *testing.T) {
	for v, want := range map[uasurfer.Version]string{
		{Major: 124, Minor: 0, Patch: 6367}: "124.0.6367",
		{Major: 14, Minor: 5}:               "14.5",
		{Major: 11}:                         "11",
		{}:                                  "0",
	} {
		if got := version(v); got != want {
			t.Errorf("version(%+v) = %q, want %q", v, got, want)
		}
	}
}

func TestEnrich(t *testing.T) {
	var info *RequestInfo
	h := Enrich(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info = FromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/donate?amount=50&utm_source=flyer", nil)
	r.RemoteAddr = "198.51.100.9:5555"
	r.Header.Set("User-Agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0")
	r.Header.Set("Accept-Language", "de-DE,de;q=0.9")
	r.Header.Set("Referer", "https://example.org/")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if info == nil {
		t.Fatal("RequestInfo not attached")
	}
	if info.UA.Browser != "Firefox" || info.UA.Device != "Desktop" || info.UA.PrimaryLang != "de-de" {
		t.Fatalf("UA = %+v", info.UA)
	}
	if info.Geo.IP.String() != "198.51.100.9" || info.Campaign.Source != "flyer" || info.Referrer != "https://example.org/" {
		t.Fatalf("info = %+v", info)
	}
	if info.URL.Query().Get("amount") != "50" || info.Timestamp.IsZero() {
		t.Fatalf("URL/timestamp not set: %+v", info)
	}
	if FromContext(context.Background()) != nil {
		t.Fatal("FromContext on bare context should be nil")
	}
}

func TestInitGeo_EmptyPathDisables(t *testing.T) {
	if err := InitGeo(""); err != nil {
		t.Fatalf("InitGeo: %v", err)
	}
	if err := InitGeo("/nonexistent/GeoLite2-City.mmdb"); err == nil {
		t.Fatal("expected error for missing database")
	}
}
