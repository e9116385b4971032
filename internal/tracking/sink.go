// internal/tracking/sink.go
//
// Event sinks.  HTTPSink posts JSON to an analytics collector, LogSink
// writes through zap, and MultiSink fans out to several sinks.
//
//------------------------------------------------------------------------------

package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Sink receives events from the tracker worker.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Send implements Sink.
func (f SinkFunc) Send(ctx context.Context, ev Event) error { return f(ctx, ev) }

// ---- HTTP -----------------------------------------------------------------

// HTTPSink posts each event as JSON:
//
//	{"event":"donation_success","data":{…},"timestamp":"…","url":"…",
//	 "category":"donation","label":"25","value":25,"id":"…"}
//
// Transport errors and 5xx responses are retried a few times.
type HTTPSink struct {
	url    string
	header http.Header
	client *retryablehttp.Client
}

// NewHTTPSink builds a sink for endpoint.  header is sent with every post
// (e.g. an API key) and may be nil.
func NewHTTPSink(endpoint string, header http.Header, retries int) *HTTPSink {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.Logger = nil
	return &HTTPSink{url: endpoint, header: header, client: rc}
}

// Send implements Sink.
func (s *HTTPSink) Send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.url, body)
	if err != nil {
		return err
	}
	for k, vs := range s.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("analytics endpoint: status %d", resp.StatusCode)
	}
	return nil
}

// ---- Log ------------------------------------------------------------------

// LogSink writes events to the process logger at info level.
type LogSink struct{}

// Send implements Sink.
func (LogSink) Send(_ context.Context, ev Event) error {
	zap.S().Infow("event",
		"event", ev.Name,
		"category", ev.Category,
		"label", ev.Label,
		"value", ev.Value,
		"data", ev.Data,
		"url", ev.URL,
	)
	return nil
}

// ---- Fan-out --------------------------------------------------------------

// MultiSink delivers to every sink and joins their errors.
type MultiSink []Sink

// Send implements Sink.
func (m MultiSink) Send(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
