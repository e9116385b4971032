// internal/form/controller.go
//
// HotBoxHair – Forms subsystem: submission controller.
//
// Context
//   One Controller serves one form definition at one use site (the donation
//   page, the contact page).  It owns the lifecycle of a post:
//
//     Idle → Validating → Submitting → Succeeded | Failed
//                 ↘ Idle (rejected)
//
//   Everything a page script used to stash on the DOM (the original button
//   label, the current state, the message to show) lives on the Submission
//   value returned by Submit, so handlers render from it and nothing is
//   shared between requests except the in-flight set.
//
// Workflow
//   1.  Guards (CSRF, timing) and the Form Validator run.  Any failure ends
//       the post in Idle with Rejected set; the backend and the tracker are
//       not touched.
//   2.  Strategy.Prepare may turn the clean values into a use-site payload
//       (e.g. a donation) and may still reject.
//   3.  The form instance token is claimed; a concurrent duplicate gets
//       ErrInFlight.  The token is held until the backend call returns,
//       even when the timeout has already failed the post.
//   4.  Submitting: button disabled with the busy label, “attempt” tracked,
//       backend awaited as a single result.  The request context's
//       cancellation does not reach the backend; Options.SubmitTimeout does.
//   5.  Succeeded or Failed: button restored, message set, event tracked,
//       and on success exactly one Navigation scheduled.
//
// Notes
//   •  No retries.  A failed post is retried by the user submitting again.
//   •  Tracker calls never block and never fail the post.
//
//------------------------------------------------------------------------------

package form

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hotboxhair/site/internal/logger"
	"github.com/hotboxhair/site/internal/metrics"
)

// -----------------------------------------------------------------------------
// States
// -----------------------------------------------------------------------------

// State is a step in the submission lifecycle.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateSubmitting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText lets states appear by name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText accepts the names MarshalText produces.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StateFailed; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown form state %q", b)
}

// -----------------------------------------------------------------------------
// Collaborators
// -----------------------------------------------------------------------------

// Backend performs the actual submission.  It must treat sub as read-only.
type Backend interface {
	Submit(ctx context.Context, sub *Submission) error
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, sub *Submission) error

// Submit implements Backend.
func (f BackendFunc) Submit(ctx context.Context, sub *Submission) error { return f(ctx, sub) }

// Tracker receives fire-and-forget events.  Implementations must not block.
type Tracker interface {
	Track(ctx context.Context, name string, payload map[string]any)
}

// Strategy configures a Controller for one use site.  Zero values fall back
// to generic behaviour.
type Strategy struct {
	AttemptEvent string // default "form_submit_attempt"
	SuccessEvent string // default "form_submit_success"
	FailureEvent string // default "form_submit_error"

	// Prepare runs after a clean validation pass and may set sub.Data.  A
	// non-nil error rejects the post with the error text as form message.
	Prepare func(sub *Submission) error

	// Payload builds the tracked payload.  Defaults to the form ID.
	Payload func(sub *Submission) map[string]any

	SuccessMessage func(sub *Submission) string
	FailureMessage func(sub *Submission, err error) string

	Redirect      string        // confirmation path; empty disables navigation
	RedirectDelay time.Duration // delay before navigating
}

// Options are the operational knobs of a Controller.
type Options struct {
	Guards        []Guard
	SubmitTimeout time.Duration // 0 waits for the backend indefinitely
}

// Default user-facing outcome messages.
const (
	MsgSuccess  = "Thank you!  Your submission has been received."
	MsgFailure  = "There was an error processing your submission.  Please try again."
	MsgInFlight = "This form is already being submitted.  Please wait."
)

// ErrInFlight is returned when the same form instance is posted while an
// earlier post of it is still submitting.
var ErrInFlight = errors.New("form submission already in flight")

// SubmissionError wraps a backend failure.
type SubmissionError struct {
	FormID string
	Err    error
}

func (e *SubmissionError) Error() string { return fmt.Sprintf("submit form %s: %v", e.FormID, e.Err) }
func (e *SubmissionError) Unwrap() error { return e.Err }

// IsValidationError reports whether err came from a rejected validation pass.
func IsValidationError(err error) bool {
	var ve validationError
	return errors.As(err, &ve)
}

// -----------------------------------------------------------------------------
// Submission
// -----------------------------------------------------------------------------

// Navigation is a delayed redirect to show after success.
type Navigation struct {
	URL     string `json:"url"`
	AfterMS int64  `json:"after_ms"`
}

// After returns the delay as a Duration.
func (n Navigation) After() time.Duration { return time.Duration(n.AfterMS) * time.Millisecond }

// Submission is the per-post context object.  Handlers render from it.
type Submission struct {
	ID          string
	FormID      string
	InstanceID  string
	Values      map[string]any // clean values from the validation pass
	Data        any            // use-site payload set by Strategy.Prepare
	Report      Report
	Annotations Annotations

	State    State
	History  []State
	Rejected bool

	Button        ButtonState
	OriginalLabel string
	Message       string
	Err           error
	Navigation    *Navigation

	Started  time.Time
	Finished time.Time
}

func (s *Submission) transition(to State) {
	s.State = to
	s.History = append(s.History, to)
}

// Succeeded reports whether the backend accepted the submission.
func (s *Submission) Succeeded() bool { return s.State == StateSucceeded }

// Value returns a clean value as a string, or "" when absent.
func (s *Submission) Value(name string) string {
	switch v := s.Values[name].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// -----------------------------------------------------------------------------
// Controller
// -----------------------------------------------------------------------------

// Controller drives submissions of one form definition.
type Controller struct {
	def      *FormDef
	backend  Backend
	tracker  Tracker
	strategy Strategy
	opts     Options

	busy sync.Map // instance token → struct{}
}

// NewController wires a controller.  tracker may be nil.
func NewController(def *FormDef, backend Backend, tracker Tracker, strategy Strategy, opts Options) *Controller {
	if strategy.AttemptEvent == "" {
		strategy.AttemptEvent = "form_submit_attempt"
	}
	if strategy.SuccessEvent == "" {
		strategy.SuccessEvent = "form_submit_success"
	}
	if strategy.FailureEvent == "" {
		strategy.FailureEvent = "form_submit_error"
	}
	return &Controller{def: def, backend: backend, tracker: tracker, strategy: strategy, opts: opts}
}

// Def returns the form definition the controller serves.
func (c *Controller) Def() *FormDef { return c.def }

// Idle returns the button state of a freshly rendered form.
func (c *Controller) Idle() ButtonState { return ButtonState{Label: c.def.SubmitLabel()} }

// Submit runs one post through the lifecycle and returns its final state.
func (c *Controller) Submit(ctx context.Context, posted url.Values) *Submission {
	log := logger.FromContext(ctx)

	sub := &Submission{
		ID:            uuid.NewString(),
		FormID:        c.def.ID,
		InstanceID:    posted.Get(fieldInstance),
		Annotations:   make(Annotations),
		OriginalLabel: c.def.SubmitLabel(),
		Started:       time.Now(),
	}
	sub.Button = ButtonState{Label: sub.OriginalLabel}
	sub.History = []State{StateIdle}
	sub.transition(StateValidating)

	// ---- Validating ------------------------------------------------------

	guarded := true
	for _, g := range c.opts.Guards {
		if msg := g(posted); msg != "" {
			sub.Annotations.Annotate(invalid("", msg))
			guarded = false
			break
		}
	}

	sub.Report = Validate(c.def, posted, sub.Annotations)
	sub.Values = sub.Report.Values
	if sub.Report.Valid() {
		metrics.FormValidationTotal.WithLabelValues(c.def.ID, "valid").Inc()
	} else {
		metrics.FormValidationTotal.WithLabelValues(c.def.ID, "invalid").Inc()
	}

	switch {
	case !guarded:
		return c.reject(sub, "guard", validationError{Results: []ValidationResult{sub.Annotations[""]}})
	case !sub.Report.Valid():
		log.Debugw("form rejected", "form", c.def.ID, "errors", len(sub.Report.Errors()))
		return c.reject(sub, "invalid", validationError{Results: sub.Report.Errors()})
	}

	if c.strategy.Prepare != nil {
		if err := c.strategy.Prepare(sub); err != nil {
			res := invalid("", err.Error())
			sub.Annotations.Annotate(res)
			return c.reject(sub, "prepare", validationError{Results: []ValidationResult{res}})
		}
	}

	release := func() {}
	if sub.InstanceID != "" {
		if _, loaded := c.busy.LoadOrStore(sub.InstanceID, struct{}{}); loaded {
			sub.Annotations.Annotate(invalid("", MsgInFlight))
			return c.reject(sub, "in_flight", ErrInFlight)
		}
		release = func() { c.busy.Delete(sub.InstanceID) }
	}

	// ---- Submitting ------------------------------------------------------

	sub.transition(StateSubmitting)
	sub.Button = ButtonState{Label: c.def.BusyLabel(), Disabled: true, Busy: true}
	c.track(ctx, c.strategy.AttemptEvent, sub)

	metrics.SubmissionsInFlight.Inc()
	start := time.Now()
	err := c.await(ctx, sub, release)
	metrics.SubmissionDuration.WithLabelValues(c.def.ID).Observe(time.Since(start).Seconds())
	metrics.SubmissionsInFlight.Dec()

	sub.Button = ButtonState{Label: sub.OriginalLabel}
	sub.Finished = time.Now()

	// ---- Outcome ---------------------------------------------------------

	if err != nil {
		sub.transition(StateFailed)
		sub.Err = &SubmissionError{FormID: c.def.ID, Err: err}
		sub.Message = MsgFailure
		if c.strategy.FailureMessage != nil {
			sub.Message = c.strategy.FailureMessage(sub, err)
		}
		metrics.SubmissionTotal.WithLabelValues(c.def.ID, "failed").Inc()
		log.Warnw("form submission failed", "form", c.def.ID, "submission", sub.ID, "err", err)
		c.track(ctx, c.strategy.FailureEvent, sub)
		return sub
	}

	sub.transition(StateSucceeded)
	sub.Message = MsgSuccess
	if c.strategy.SuccessMessage != nil {
		sub.Message = c.strategy.SuccessMessage(sub)
	}
	if c.strategy.Redirect != "" {
		sub.Navigation = &Navigation{URL: c.strategy.Redirect, AfterMS: c.strategy.RedirectDelay.Milliseconds()}
	}
	metrics.SubmissionTotal.WithLabelValues(c.def.ID, "succeeded").Inc()
	log.Infow("form submitted", "form", c.def.ID, "submission", sub.ID, "took", sub.Finished.Sub(sub.Started))
	c.track(ctx, c.strategy.SuccessEvent, sub)
	return sub
}

// reject ends a post in Idle without touching the backend or the tracker.
func (c *Controller) reject(sub *Submission, reason string, err error) *Submission {
	sub.transition(StateIdle)
	sub.Rejected = true
	sub.Err = err
	sub.Finished = time.Now()
	metrics.FormRejectedTotal.WithLabelValues(c.def.ID, reason).Inc()
	return sub
}

// await runs the backend and waits for its single result.  A panic inside
// the backend is reported as an error.  release runs when the backend
// returns, which may be after a timeout has already failed the post.
func (c *Controller) await(ctx context.Context, sub *Submission, release func()) error {
	runCtx := context.WithoutCancel(ctx)
	if c.opts.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, c.opts.SubmitTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("backend panic: %v", r)
			}
			release()
			done <- err
		}()
		err = c.backend.Submit(runCtx, sub)
	}()

	select {
	case err := <-done:
		return err
	case <-runCtx.Done():
		return fmt.Errorf("waiting for backend: %w", runCtx.Err())
	}
}

func (c *Controller) track(ctx context.Context, name string, sub *Submission) {
	if c.tracker == nil {
		return
	}
	var payload map[string]any
	if c.strategy.Payload != nil {
		payload = c.strategy.Payload(sub)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if _, ok := payload["form"]; !ok {
		payload["form"] = c.def.ID
	}
	c.tracker.Track(ctx, name, payload)
}
