// internal/tracking/tracker.go
//
// HotBoxHair – fire-and-forget analytics events.
//
// Context
//   Pages and the submission controller report named events (donation
//   attempts, amount selections, scroll milestones).  Tracking must never
//   slow down or break the thing being tracked, so Track only copies the
//   event onto a bounded queue and returns.  One background worker hands
//   events to the configured Sink.
//
// Workflow
//   •  Track builds an Event: a copy of the payload, the analytics triple
//      (category, label, value), and request metadata from requestinfo.
//   •  Queue full or tracker closed → the event is dropped and counted.
//   •  Sink errors are logged and counted, never returned.
//   •  With no Sink the tracker writes one debug log line per event.
//   •  Close drains the queue, bounded by ctx.
//
// Notes
//   •  Oxford commas, two spaces after periods.
//
//------------------------------------------------------------------------------

package tracking

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hotboxhair/site/internal/metrics"
	"github.com/hotboxhair/site/internal/requestinfo"
)

// DefaultCategory is used when neither the payload nor Options name one.
const DefaultCategory = "site"

// Event is one tracked occurrence.  It is write-once.
type Event struct {
	ID        string         `json:"id"`
	Name      string         `json:"event"`
	Category  string         `json:"category"`
	Label     string         `json:"label"`
	Value     float64        `json:"value"`
	Data      map[string]any `json:"data"`
	URL       string         `json:"url,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Options tune a Tracker.  Zero values pick the defaults shown.
type Options struct {
	QueueSize   int           // 512
	SendTimeout time.Duration // 5s per sink call
	Category    string        // DefaultCategory
}

// Tracker is safe for concurrent use.
type Tracker struct {
	sink     Sink
	timeout  time.Duration
	category string

	mu     sync.RWMutex // guards closed against concurrent send on queue
	closed bool
	queue  chan Event
	done   chan struct{}
}

// New starts a tracker.  sink may be nil.
func New(sink Sink, opts Options) *Tracker {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 512
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	if opts.Category == "" {
		opts.Category = DefaultCategory
	}

	t := &Tracker{
		sink:     sink,
		timeout:  opts.SendTimeout,
		category: opts.Category,
		done:     make(chan struct{}),
	}
	if sink == nil {
		close(t.done)
		return t
	}
	t.queue = make(chan Event, opts.QueueSize)
	go t.run()
	return t
}

// Track records name with payload.  It never blocks and never fails.
func (t *Tracker) Track(ctx context.Context, name string, payload map[string]any) {
	ev := t.build(ctx, name, payload)

	if t.sink == nil {
		zap.S().Debugw("tracked event", "event", ev.Name, "label", ev.Label, "value", ev.Value, "data", ev.Data)
		metrics.TrackedEventsTotal.WithLabelValues(ev.Name).Inc()
		return
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		metrics.TrackerDroppedTotal.Inc()
		return
	}
	select {
	case t.queue <- ev:
		metrics.TrackedEventsTotal.WithLabelValues(ev.Name).Inc()
		metrics.TrackerQueueDepth.Set(float64(len(t.queue)))
	default:
		metrics.TrackerDroppedTotal.Inc()
		zap.S().Debugw("tracker queue full, event dropped", "event", ev.Name)
	}
}

// Close stops intake and waits until queued events were handed to the sink.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		if t.queue != nil {
			close(t.queue)
		}
	}
	t.mu.Unlock()

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tracker drain: %w", ctx.Err())
	}
}

func (t *Tracker) run() {
	defer close(t.done)
	for ev := range t.queue {
		metrics.TrackerQueueDepth.Set(float64(len(t.queue)))
		t.deliver(ev)
	}
}

// deliver calls the sink and swallows whatever happens there.
func (t *Tracker) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.TrackerSinkErrorsTotal.Inc()
			zap.S().Errorw("tracking sink panic", "event", ev.Name, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := t.sink.Send(ctx, ev); err != nil {
		metrics.TrackerSinkErrorsTotal.Inc()
		zap.S().Warnw("tracking sink failed", "event", ev.Name, "err", err)
	}
}

// -----------------------------------------------------------------------------
// Event construction
// -----------------------------------------------------------------------------

func (t *Tracker) build(ctx context.Context, name string, payload map[string]any) Event {
	data := make(map[string]any, len(payload)+3)
	for k, v := range payload {
		data[k] = v
	}

	ev := Event{
		ID:        uuid.NewString(),
		Name:      name,
		Category:  t.category,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	if c, ok := data["category"].(string); ok && c != "" {
		ev.Category = c
		delete(data, "category")
	}
	ev.Label, ev.Value = labelValue(data)

	if ctx != nil {
		if info := requestinfo.FromContext(ctx); info != nil {
			if info.URL != nil {
				ev.URL = info.URL.String()
			}
			setIfEmpty(data, "browser", info.UA.Browser)
			setIfEmpty(data, "device", info.UA.Device)
			setIfEmpty(data, "country", info.Geo.CountryISO)
			setIfEmpty(data, "source", info.Campaign.Source)
			setIfEmpty(data, "medium", info.Campaign.Medium)
			setIfEmpty(data, "campaign", info.Campaign.Name)
		}
	}
	return ev
}

// labelValue derives the analytics label and value: the amount when there
// is one, else the payment method, else "unknown"; value is the numeric
// amount or 0.
func labelValue(data map[string]any) (string, float64) {
	if amt := str(data["amount"]); amt != "" {
		v, _ := strconv.ParseFloat(amt, 64)
		return amt, v
	}
	if m := str(data["method"]); m != "" {
		return m, 0
	}
	return "unknown", 0
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func setIfEmpty(m map[string]any, k, v string) {
	if v == "" {
		return
	}
	if _, ok := m[k]; !ok {
		m[k] = v
	}
}
