// internal/tracking/tracker_test.go
//
// Unit-tests for the tracker and its sinks.
//
// Run: go test ./internal/tracking -v

package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/hotboxhair/site/internal/requestinfo"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (m *memSink) Send(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.err
}

func (m *memSink) all() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func closeTracker(t *testing.T, tr *Tracker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestTracker_DeliversWithLabelAndValue(t *testing.T) {
	sink := &memSink{}
	tr := New(sink, Options{Category: "donation"})

	tr.Track(context.Background(), "donation_attempt", map[string]any{"amount": "25", "type": "one-time"})
	tr.Track(context.Background(), "payment_method_selected", map[string]any{"method": "paypal"})
	tr.Track(context.Background(), "page_view", map[string]any{"page": "donation", "category": "page"})
	closeTracker(t, tr)

	evs := sink.all()
	if len(evs) != 3 {
		t.Fatalf("got %d events", len(evs))
	}
	if evs[0].Label != "25" || evs[0].Value != 25 || evs[0].Category != "donation" {
		t.Errorf("attempt event = %+v", evs[0])
	}
	if evs[1].Label != "paypal" || evs[1].Value != 0 {
		t.Errorf("method event = %+v", evs[1])
	}
	if evs[2].Label != "unknown" || evs[2].Category != "page" {
		t.Errorf("page event = %+v", evs[2])
	}
	if evs[0].ID == "" || evs[0].Timestamp.IsZero() {
		t.Error("missing id or timestamp")
	}
}

func TestTracker_CopiesPayload(t *testing.T) {
	sink := &memSink{}
	tr := New(sink, Options{})
	payload := map[string]any{"amount": "10"}
	tr.Track(context.Background(), "x", payload)
	payload["amount"] = "99"
	closeTracker(t, tr)

	if got := sink.all()[0].Data["amount"]; got != "10" {
		t.Fatalf("payload aliasing: amount = %v", got)
	}
}

func TestTracker_SinkErrorsSwallowed(t *testing.T) {
	sink := &memSink{err: errors.New("collector down")}
	tr := New(sink, Options{})
	tr.Track(context.Background(), "x", nil)

	panicky := New(SinkFunc(func(context.Context, Event) error { panic("bad sink") }), Options{})
	panicky.Track(context.Background(), "y", nil)

	closeTracker(t, tr)
	closeTracker(t, panicky)
	if len(sink.all()) != 1 {
		t.Fatal("event not attempted")
	}
}

func TestTracker_NeverBlocks(t *testing.T) {
	block := make(chan struct{})
	sink := SinkFunc(func(context.Context, Event) error { <-block; return nil })
	tr := New(sink, Options{QueueSize: 1})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			tr.Track(context.Background(), "flood", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Track blocked on a full queue")
	}
	close(block)
	closeTracker(t, tr)

	// After Close, Track is a counted no-op.
	tr.Track(context.Background(), "late", nil)
}

func TestTracker_NoSink(t *testing.T) {
	tr := New(nil, Options{})
	tr.Track(context.Background(), "x", map[string]any{"a": 1})
	closeTracker(t, tr)
}

func TestTracker_RequestInfo(t *testing.T) {
	sink := &memSink{}
	tr := New(sink, Options{})

	u, _ := url.Parse("https://hotboxhair.example/donate?amount=50")
	ctx := requestinfo.NewContext(context.Background(), &requestinfo.RequestInfo{
		UA:       requestinfo.UA{Browser: "Firefox", Device: "Desktop"},
		Geo:      requestinfo.Geo{CountryISO: "US"},
		Campaign: requestinfo.Campaign{Source: "newsletter", Medium: "email"},
		URL:      u,
	})
	tr.Track(ctx, "page_view", map[string]any{"browser": "override"})
	closeTracker(t, tr)

	ev := sink.all()[0]
	if ev.URL != u.String() || ev.Data["device"] != "Desktop" || ev.Data["country"] != "US" {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Data["browser"] != "override" {
		t.Fatal("payload value replaced by request metadata")
	}
	if ev.Data["source"] != "newsletter" || ev.Data["medium"] != "email" {
		t.Fatalf("campaign missing: %+v", ev.Data)
	}
	if _, ok := ev.Data["campaign"]; ok {
		t.Fatal("empty campaign name should be omitted")
	}
}

func TestHTTPSink(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, http.Header{"X-Api-Key": {"k"}}, 0)
	ev := Event{Name: "donation_success", Label: "25", Value: 25, Data: map[string]any{"amount": "25"}}
	if err := sink.Send(context.Background(), ev); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["event"] != "donation_success" || got["value"] != float64(25) {
		t.Fatalf("posted body = %#v", got)
	}

	bad := NewHTTPSink(srv.URL, nil, 0)
	if err := bad.Send(context.Background(), ev); err == nil {
		t.Fatal("expected error on 401")
	}
}

func TestMultiSink(t *testing.T) {
	a, b := &memSink{}, &memSink{err: errors.New("b failed")}
	err := MultiSink{a, b}.Send(context.Background(), Event{Name: "x"})
	if err == nil || len(a.all()) != 1 || len(b.all()) != 1 {
		t.Fatalf("err=%v a=%d b=%d", err, len(a.all()), len(b.all()))
	}
}
