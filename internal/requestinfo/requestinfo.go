// internal/requestinfo/requestinfo.go
//
// Per-request visitor metadata: user agent, geolocation, and campaign
// attribution.
//
// Context
//   Enrich builds one *RequestInfo per request and stores it in the
//   context.  The page layout reads the device class from it, and the
//   tracker copies browser, device, country, and campaign into every event
//   so donations can be attributed to the mailing or post that brought the
//   visitor in.
//
// Notes
//   • Values are plain data and safe to log or JSON-encode.
//   • Geo lookups need a GeoLite2-City file (geoip.path); without one the
//     Geo block carries only the IP.
//
//------------------------------------------------------------------------------

package requestinfo

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/oschwald/geoip2-golang"
)

// UA holds the parsed user-agent properties.
type UA struct {
	Raw         string
	Browser     string // "Chrome", "Firefox", "Safari", ...
	Version     string // "124.0.6367"
	OS          string // "macOS", "Windows", "Android", "iOS", ...
	OSVersion   string
	Device      string // "Desktop", "Phone", "Tablet", ...
	Platform    string
	IsBot       bool
	PrimaryLang string // first Accept-Language tag, lower-cased
}

// Geo holds best-effort IP geolocation.
type Geo struct {
	IP         net.IP
	CountryISO string
	City       string
}

// Campaign is where the visitor came from.  Source is "direct" when
// nothing identifies it.
type Campaign struct {
	Source string `json:"source"`
	Medium string `json:"medium,omitempty"`
	Name   string `json:"name,omitempty"`
}

// RequestInfo is attached to the request context by Enrich.
type RequestInfo struct {
	UA        UA
	Geo       Geo
	Campaign  Campaign
	Referrer  string
	URL       *url.URL // read-only
	Timestamp time.Time
}

var geoReader atomic.Pointer[geoip2.Reader]

// InitGeo opens the GeoLite2-City database.  An empty path leaves lookups
// disabled.
func InitGeo(dbPath string) error {
	if dbPath == "" {
		return nil
	}
	r, err := geoip2.Open(dbPath)
	if err != nil {
		return fmt.Errorf("requestinfo: open GeoLite2 DB: %w", err)
	}
	if old := geoReader.Swap(r); old != nil {
		_ = old.Close()
	}
	return nil
}

// CloseGeo releases the GeoLite2 handle.
func CloseGeo() {
	if r := geoReader.Swap(nil); r != nil {
		_ = r.Close()
	}
}

func lookupGeo(ip net.IP) Geo {
	g := Geo{IP: ip}
	r := geoReader.Load()
	if r == nil || ip == nil {
		return g
	}
	if rec, err := r.City(ip); err == nil {
		g.CountryISO = rec.Country.IsoCode
		g.City = rec.City.Names["en"]
	}
	return g
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying info.
func NewContext(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// FromContext returns the info stored by Enrich, or nil.
func FromContext(ctx context.Context) *RequestInfo {
	v, _ := ctx.Value(ctxKey{}).(*RequestInfo)
	return v
}
