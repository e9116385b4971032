// internal/message/message.go
//
// HotBoxHair – Outbound message queue.
//
// Context
//   Form actions and the donation service send emails (receipts, contact
//   notifications) and webhooks.  None of that may hold up the HTTP
//   response, so callers enqueue a job and an Outbox worker delivers it in
//   the background.
//
// Workflow
//   •  NewOutbox starts Workers goroutines draining a bounded channel.
//   •  EnqueueEmail / EnqueueWebhook return ErrQueueFull instead of
//      blocking, and ErrClosed after Close.
//   •  Emails go through a Mailer (SMTP or log-only).  Webhooks go through
//      go-retryablehttp, which retries 5xx and transport errors with
//      exponential backoff.
//   •  Close stops intake and waits for queued jobs, bounded by ctx.
//
// Style
//   Two-space sentence spacing, Oxford comma, concise inline notes.
//
//------------------------------------------------------------------------------

package message

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/hotboxhair/site/internal/metrics"
)

// Email represents a basic outbound email job.
type Email struct {
	To      []string
	Subject string
	Text    string
	HTML    string // optional; sent as the alternative part when set
}

// Webhook is an HTTP call to make on the caller's behalf.
type Webhook struct {
	Method string // defaults to POST
	URL    string
	Header http.Header
	Body   []byte
}

var (
	ErrQueueFull = errors.New("message queue full")
	ErrClosed    = errors.New("message queue closed")
)

// Mailer delivers one email.
type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

// LogMailer only logs; it is the default when no SMTP relay is configured.
type LogMailer struct{}

// Send implements Mailer.
func (LogMailer) Send(_ context.Context, msg Email) error {
	zap.S().Infow("email (log only)", "to", msg.To, "subject", msg.Subject, "len", len(msg.Text))
	return nil
}

// Options tune an Outbox.  Zero values pick the defaults shown.
type Options struct {
	QueueSize   int           // 256
	Workers     int           // 2
	SendTimeout time.Duration // 30s per job
	RetryMax    int           // 3 webhook retries
	HTTPClient  *http.Client  // underlying client for webhooks
}

type job struct {
	email *Email
	hook  *Webhook
}

// Outbox is a bounded background queue.  Safe for concurrent use.
type Outbox struct {
	mailer  Mailer
	http    *retryablehttp.Client
	timeout time.Duration

	mu     sync.RWMutex // guards closed against concurrent send on jobs
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
}

// NewOutbox starts the workers.  mailer may be nil for LogMailer.
func NewOutbox(mailer Mailer, opts Options) *Outbox {
	if mailer == nil {
		mailer = LogMailer{}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = 3
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = leveled{zap.S().Named("webhook")}
	if opts.HTTPClient != nil {
		rc.HTTPClient = opts.HTTPClient
	}

	o := &Outbox{
		mailer:  mailer,
		http:    rc,
		timeout: opts.SendTimeout,
		jobs:    make(chan job, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		o.wg.Add(1)
		go o.work()
	}
	return o
}

// EnqueueEmail queues msg for delivery.
func (o *Outbox) EnqueueEmail(_ context.Context, msg Email) error {
	if len(msg.To) == 0 {
		return errors.New("email has no recipients")
	}
	return o.enqueue(job{email: &msg})
}

// EnqueueWebhook queues an HTTP call.
func (o *Outbox) EnqueueWebhook(_ context.Context, hook Webhook) error {
	if hook.URL == "" {
		return errors.New("webhook has no url")
	}
	if hook.Method == "" {
		hook.Method = http.MethodPost
	}
	return o.enqueue(job{hook: &hook})
}

func (o *Outbox) enqueue(j job) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrClosed
	}
	select {
	case o.jobs <- j:
		return nil
	default:
		metrics.MessagesTotal.WithLabelValues(j.kind(), "dropped").Inc()
		return ErrQueueFull
	}
}

// Close stops intake and waits for the workers to drain the queue.
func (o *Outbox) Close(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.jobs)
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() { o.wg.Wait(); close(done) }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("outbox drain: %w", ctx.Err())
	}
}

// -----------------------------------------------------------------------------
// Worker
// -----------------------------------------------------------------------------

func (o *Outbox) work() {
	defer o.wg.Done()
	for j := range o.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		err := o.deliver(ctx, j)
		cancel()

		if err != nil {
			metrics.MessagesTotal.WithLabelValues(j.kind(), "failed").Inc()
			zap.S().Warnw("message delivery failed", "kind", j.kind(), "err", err)
			continue
		}
		metrics.MessagesTotal.WithLabelValues(j.kind(), "sent").Inc()
	}
}

func (o *Outbox) deliver(ctx context.Context, j job) error {
	if j.email != nil {
		return o.mailer.Send(ctx, *j.email)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, j.hook.Method, j.hook.URL, j.hook.Body)
	if err != nil {
		return err
	}
	for k, vs := range j.hook.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s %s: status %d", j.hook.Method, j.hook.URL, resp.StatusCode)
	}
	return nil
}

func (j job) kind() string {
	if j.email != nil {
		return "email"
	}
	return "webhook"
}

// leveled adapts a sugared logger to retryablehttp.LeveledLogger.
type leveled struct{ s *zap.SugaredLogger }

func (l leveled) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveled) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveled) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveled) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
