package track

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hotboxhair/site/internal/component"
	"github.com/hotboxhair/site/internal/config"
	"github.com/hotboxhair/site/internal/tracking"
)

func setup(t *testing.T) (http.Handler, func() []tracking.Event) {
	t.Helper()
	var (
		mu  sync.Mutex
		got []tracking.Event
	)
	tr := tracking.New(tracking.SinkFunc(func(_ context.Context, ev tracking.Event) error {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
		return nil
	}), tracking.Options{})

	cfg := &config.Config{}
	cfg.HTTP.CORSOrigins = []string{"https://hotboxhair.org"}

	c := &Component{}
	if err := c.Init(component.Deps{Config: cfg, Tracker: tr}); err != nil {
		t.Fatal(err)
	}
	return c.Routes(), func() []tracking.Event {
		_ = tr.Close(context.Background())
		mu.Lock()
		defer mu.Unlock()
		return got
	}
}

func beacon(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/track", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestTrack_Relays(t *testing.T) {
	h, events := setup(t)

	rr := beacon(h, `{"event":"payment_method_selected","page":"/donate","data":{"method":"paypal"}}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rr.Code)
	}

	got := events()
	if len(got) != 1 {
		t.Fatalf("got %d events", len(got))
	}
	ev := got[0]
	if ev.Name != "payment_method_selected" || ev.Data["method"] != "paypal" ||
		ev.Category != "engagement" || ev.Label != "paypal" || ev.Data["page"] != "/donate" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestTrack_Rejects(t *testing.T) {
	h, events := setup(t)

	cases := []struct {
		name, body string
		want       int
	}{
		{"unknown event", `{"event":"buy_crypto"}`, http.StatusUnprocessableEntity},
		{"missing event", `{"data":{}}`, http.StatusUnprocessableEntity},
		{"bad json", `{"event":`, http.StatusBadRequest},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if rr := beacon(h, c.body); rr.Code != c.want {
				t.Fatalf("status = %d, want %d", rr.Code, c.want)
			}
		})
	}
	if n := len(events()); n != 0 {
		t.Fatalf("relayed %d rejected events", n)
	}
}

func TestTrack_CORSPreflight(t *testing.T) {
	h, _ := setup(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/track", nil)
	req.Header.Set("Origin", "https://hotboxhair.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://hotboxhair.org" {
		t.Fatalf("allow-origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/track", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin allowed: %q", got)
	}
}
