// internal/requestinfo/enrich.go
package requestinfo

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avct/uasurfer"
	"go.uber.org/zap"
)

// Enrich attaches a *RequestInfo to every request.  It expects chi's
// RealIP middleware to have run, so r.RemoteAddr is the client address.
func Enrich(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ref := r.Referer()
		info := &RequestInfo{
			UA:        parseUA(r.UserAgent(), r.Header.Get("Accept-Language")),
			Geo:       lookupGeo(remoteIP(r.RemoteAddr)),
			Campaign:  campaignOf(r.URL.Query(), ref, r.Host),
			Referrer:  ref,
			URL:       r.URL,
			Timestamp: time.Now().UTC(),
		}

		zap.S().Debugw("request info",
			"ip", info.Geo.IP,
			"country", info.Geo.CountryISO,
			"device", info.UA.Device,
			"bot", info.UA.IsBot,
			"source", info.Campaign.Source,
		)
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), info)))
	})
}

// remoteIP accepts "ip:port" or a bare IP, as RealIP may leave either.
func remoteIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return net.ParseIP(addr)
}

// campaignOf prefers explicit utm_* parameters, then an external referrer,
// then "direct".  Self-referrals count as direct.
func campaignOf(q url.Values, referrer, host string) Campaign {
	if src := q.Get("utm_source"); src != "" {
		return Campaign{Source: src, Medium: q.Get("utm_medium"), Name: q.Get("utm_campaign")}
	}
	if referrer != "" {
		if u, err := url.Parse(referrer); err == nil && u.Host != "" && !sameSite(u.Host, host) {
			return Campaign{Source: strings.TrimPrefix(u.Hostname(), "www."), Medium: "referral"}
		}
	}
	return Campaign{Source: "direct"}
}

func sameSite(a, b string) bool {
	strip := func(h string) string {
		if i := strings.LastIndexByte(h, ':'); i != -1 && !strings.Contains(h[i:], "]") {
			h = h[:i]
		}
		return strings.TrimPrefix(strings.ToLower(h), "www.")
	}
	return strip(a) == strip(b)
}

func parseUA(header, acceptLang string) UA {
	u := uasurfer.Parse(header)

	osName := strings.TrimPrefix(u.OS.Name.String(), "OS")
	if osName == "MacOSX" {
		osName = "macOS"
	}
	return UA{
		Raw:         header,
		Browser:     strings.TrimPrefix(u.Browser.Name.String(), "Browser"),
		Version:     version(u.Browser.Version),
		OS:          osName,
		OSVersion:   version(u.OS.Version),
		Device:      deviceName(u.DeviceType),
		Platform:    strings.TrimPrefix(u.OS.Platform.String(), "Platform"),
		IsBot:       u.IsBot(),
		PrimaryLang: primaryLang(acceptLang),
	}
}

// version renders "major.minor.patch" without trailing zero parts.
func version(v uasurfer.Version) string {
	parts := []int{v.Major, v.Minor, v.Patch}
	for len(parts) > 1 && parts[len(parts)-1] == 0 {
		parts = parts[:len(parts)-1]
	}
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = strconv.Itoa(p)
	}
	return strings.Join(s, ".")
}

var deviceNames = map[uasurfer.DeviceType]string{
	uasurfer.DeviceComputer: "Desktop",
	uasurfer.DevicePhone:    "Phone",
	uasurfer.DeviceTablet:   "Tablet",
	uasurfer.DeviceConsole:  "Console",
	uasurfer.DeviceWearable: "Wearable",
	uasurfer.DeviceTV:       "TV",
}

func deviceName(dt uasurfer.DeviceType) string {
	if n, ok := deviceNames[dt]; ok {
		return n
	}
	return "Unknown"
}

// primaryLang returns the first Accept-Language tag without its q-value.
func primaryLang(al string) string {
	tag, _, _ := strings.Cut(al, ",")
	tag, _, _ = strings.Cut(tag, ";")
	return strings.ToLower(strings.TrimSpace(tag))
}
