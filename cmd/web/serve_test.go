package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hotboxhair/site/internal/component"
	"github.com/hotboxhair/site/internal/config"
	"github.com/hotboxhair/site/internal/message"
	"github.com/hotboxhair/site/internal/tracking"
	"github.com/hotboxhair/site/internal/view"
)

func testRouter(t *testing.T, forceHTTPS bool) http.Handler {
	t.Helper()
	cfg := &config.Config{}
	cfg.HTTP.ForceHTTPS = forceHTTPS
	cfg.Donation.Processor = "simulated"
	cfg.Donation.Redirect = "/thank-you.html"
	cfg.Paths.Root = t.TempDir()

	out := message.NewOutbox(nil, message.Options{})
	tr := tracking.New(nil, tracking.Options{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = out.Close(ctx)
		_ = tr.Close(ctx)
	})

	h, err := buildRouter(cfg, component.Deps{
		Config: cfg, Outbox: out, Tracker: tr, Views: view.New(view.Options{}),
	}, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("buildRouter: %v", err)
	}
	return h
}

func TestBuildRouter_Routes(t *testing.T) {
	h := testRouter(t, false)

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/", http.StatusFound},
		{http.MethodGet, "/donate", http.StatusOK},
		{http.MethodGet, "/donate.html", http.StatusOK},
		{http.MethodGet, "/api/donate", http.StatusOK},
		{http.MethodGet, "/thank-you.html", http.StatusOK},
		{http.MethodGet, "/contact", http.StatusOK},
		{http.MethodOptions, "/api/track", http.StatusNoContent},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, c := range cases {
		t.Run(c.method+" "+c.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(c.method, c.path, nil))
			if rr.Code != c.want {
				t.Fatalf("status = %d, want %d", rr.Code, c.want)
			}
			if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Fatal("security headers missing")
			}
		})
	}
}

func TestBuildRouter_ForceHTTPS(t *testing.T) {
	h := testRouter(t, true)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://hotboxhair.org/donate", nil))
	if rr.Code != http.StatusPermanentRedirect {
		t.Fatalf("status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://hotboxhair.org/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("probe status = %d", rr.Code)
	}
}

func TestFormDirs(t *testing.T) {
	cfg := &config.Config{}
	cfg.Paths.Root = "/srv/hotbox"
	if got := formDirs(cfg); len(got) != 1 || got[0] != "/srv/hotbox" {
		t.Fatalf("default = %v", got)
	}
	cfg.Forms.Dirs = []string{"overrides", "/etc/hotbox"}
	got := formDirs(cfg)
	if got[0] != "/srv/hotbox/overrides" || got[1] != "/etc/hotbox" {
		t.Fatalf("dirs = %v", got)
	}
}
