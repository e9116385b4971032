// internal/form/controller_test.go
//
// Unit-tests for the submission controller.
//
// Context
// -------
// fakeTracker records event names; backends are BackendFunc closures that
// count calls and can block, fail, or panic on demand.  The cases cover:
//
//   • Scenario A: a valid post reaches Succeeded once, with the busy button
//     visible to the backend and one navigation scheduled
//   • Scenario B: an invalid post never reaches the backend or the tracker
//   • Failed outcome, timeout, backend panic, and request cancellation
//   • Duplicate post of the same form instance while the first is in flight
//
// Run: go test ./internal/form -run Controller -v

package form

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeTracker struct {
	mu     sync.Mutex
	events []string
	last   map[string]any
}

func (f *fakeTracker) Track(_ context.Context, name string, payload map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, name)
	f.last = payload
}

func (f *fakeTracker) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func donationStrategy() Strategy {
	return Strategy{
		AttemptEvent: "donation_attempt",
		SuccessEvent: "donation_success",
		FailureEvent: "donation_error",
		Payload: func(sub *Submission) map[string]any {
			return map[string]any{"amount": sub.Value("amount")}
		},
		SuccessMessage: func(sub *Submission) string {
			return fmt.Sprintf("Your donation of $%s has been processed successfully.", sub.Value("amount"))
		},
		Redirect:      "/thank-you.html",
		RedirectDelay: 3 * time.Second,
	}
}

var validDonation = url.Values{"amount": {"25"}, "email": {"a@b.com"}, "name": {"Jane Doe"}}

func TestController_ScenarioA(t *testing.T) {
	fd := mustParse(t, donateYAML)
	tr := &fakeTracker{}

	var calls int32
	var seen ButtonState
	backend := BackendFunc(func(_ context.Context, sub *Submission) error {
		atomic.AddInt32(&calls, 1)
		seen = sub.Button
		return nil
	})

	c := NewController(fd, backend, tr, donationStrategy(), Options{})
	sub := c.Submit(context.Background(), validDonation)

	if sub.State != StateSucceeded || sub.Rejected || sub.Err != nil {
		t.Fatalf("state=%s rejected=%v err=%v", sub.State, sub.Rejected, sub.Err)
	}
	if calls != 1 {
		t.Fatalf("backend calls = %d, want 1", calls)
	}
	if !seen.Disabled || seen.Label != "Processing..." {
		t.Fatalf("button during submit = %+v", seen)
	}
	if sub.Button.Disabled || sub.Button.Label != "Donate Now" {
		t.Fatalf("button after submit = %+v", sub.Button)
	}
	if want := "Your donation of $25 has been processed successfully."; sub.Message != want {
		t.Fatalf("message = %q", sub.Message)
	}
	if sub.Navigation == nil || sub.Navigation.URL != "/thank-you.html" || sub.Navigation.After() != 3*time.Second {
		t.Fatalf("navigation = %+v", sub.Navigation)
	}

	wantHist := []State{StateIdle, StateValidating, StateSubmitting, StateSucceeded}
	if !reflect.DeepEqual(sub.History, wantHist) {
		t.Fatalf("history = %v", sub.History)
	}
	if got := tr.names(); !reflect.DeepEqual(got, []string{"donation_attempt", "donation_success"}) {
		t.Fatalf("events = %v", got)
	}
}

func TestController_InvalidNeverSubmits(t *testing.T) {
	fd := mustParse(t, donateYAML)
	tr := &fakeTracker{}
	var calls int32
	backend := BackendFunc(func(context.Context, *Submission) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	c := NewController(fd, backend, tr, donationStrategy(), Options{})
	sub := c.Submit(context.Background(), url.Values{"amount": {""}, "email": {""}, "name": {"J"}})

	if sub.State != StateIdle || !sub.Rejected {
		t.Fatalf("state=%s rejected=%v", sub.State, sub.Rejected)
	}
	if !IsValidationError(sub.Err) {
		t.Fatalf("err = %v, want validation error", sub.Err)
	}
	if calls != 0 {
		t.Fatalf("backend called %d times", calls)
	}
	if got := tr.names(); len(got) != 0 {
		t.Fatalf("events emitted on rejection: %v", got)
	}
	if len(sub.Annotations) != 3 {
		t.Fatalf("annotations = %#v", sub.Annotations)
	}
	if sub.Navigation != nil {
		t.Fatal("navigation scheduled for a rejected post")
	}
}

func TestController_Failed(t *testing.T) {
	fd := mustParse(t, donateYAML)
	tr := &fakeTracker{}
	errDeclined := errors.New("declined")

	c := NewController(fd, BackendFunc(func(context.Context, *Submission) error { return errDeclined }),
		tr, donationStrategy(), Options{})
	sub := c.Submit(context.Background(), validDonation)

	if sub.State != StateFailed {
		t.Fatalf("state = %s", sub.State)
	}
	var se *SubmissionError
	if !errors.As(sub.Err, &se) || !errors.Is(sub.Err, errDeclined) {
		t.Fatalf("err = %v", sub.Err)
	}
	if sub.Message != MsgFailure || sub.Button.Disabled || sub.Navigation != nil {
		t.Fatalf("unexpected outcome: %+v", sub)
	}
	if got := tr.names(); !reflect.DeepEqual(got, []string{"donation_attempt", "donation_error"}) {
		t.Fatalf("events = %v", got)
	}
}

func TestController_Timeout(t *testing.T) {
	fd := mustParse(t, donateYAML)
	backend := BackendFunc(func(ctx context.Context, _ *Submission) error {
		<-ctx.Done()
		return ctx.Err()
	})

	c := NewController(fd, backend, nil, Strategy{}, Options{SubmitTimeout: 20 * time.Millisecond})
	sub := c.Submit(context.Background(), validDonation)
	if sub.State != StateFailed || !errors.Is(sub.Err, context.DeadlineExceeded) {
		t.Fatalf("state=%s err=%v", sub.State, sub.Err)
	}
}

func TestController_BackendPanic(t *testing.T) {
	fd := mustParse(t, donateYAML)
	c := NewController(fd, BackendFunc(func(context.Context, *Submission) error { panic("boom") }),
		nil, Strategy{}, Options{})
	if sub := c.Submit(context.Background(), validDonation); sub.State != StateFailed {
		t.Fatalf("state = %s", sub.State)
	}
}

func TestController_RequestCancelDoesNotAbort(t *testing.T) {
	fd := mustParse(t, donateYAML)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	backend := BackendFunc(func(ctx context.Context, _ *Submission) error { return ctx.Err() })
	c := NewController(fd, backend, nil, Strategy{}, Options{})
	if sub := c.Submit(ctx, validDonation); sub.State != StateSucceeded {
		t.Fatalf("state = %s, err = %v", sub.State, sub.Err)
	}
}

func TestController_InFlightGuard(t *testing.T) {
	fd := mustParse(t, donateYAML)
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int32

	backend := BackendFunc(func(context.Context, *Submission) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(entered)
			<-release
		}
		return nil
	})
	c := NewController(fd, backend, nil, Strategy{}, Options{})

	posted := url.Values{}
	for k, v := range validDonation {
		posted[k] = v
	}
	posted.Set(fieldInstance, "instance-1")

	first := make(chan *Submission, 1)
	go func() { first <- c.Submit(context.Background(), posted) }()
	<-entered

	dup := c.Submit(context.Background(), posted)
	if !errors.Is(dup.Err, ErrInFlight) || !dup.Rejected || dup.Annotations.Message("") != MsgInFlight {
		t.Fatalf("duplicate: err=%v rejected=%v", dup.Err, dup.Rejected)
	}

	// A different instance of the same form is independent.
	other := url.Values{}
	for k, v := range posted {
		other[k] = v
	}
	other.Set(fieldInstance, "instance-2")
	if sub := c.Submit(context.Background(), other); sub.State != StateSucceeded {
		t.Fatalf("other instance state = %s", sub.State)
	}

	close(release)
	if sub := <-first; sub.State != StateSucceeded {
		t.Fatalf("first state = %s", sub.State)
	}
	if calls != 2 {
		t.Fatalf("backend calls = %d, want 2", calls)
	}

	// The instance is free again once the first post finished.
	if sub := c.Submit(context.Background(), posted); sub.State != StateSucceeded {
		t.Fatalf("resubmit state = %s", sub.State)
	}
}

func TestController_InFlightAfterTimeout(t *testing.T) {
	fd := mustParse(t, donateYAML)
	unblock := make(chan struct{})
	returned := make(chan struct{})
	var calls int32

	backend := BackendFunc(func(context.Context, *Submission) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			defer close(returned)
			<-unblock
		}
		return nil
	})
	c := NewController(fd, backend, nil, Strategy{}, Options{SubmitTimeout: 20 * time.Millisecond})

	posted := url.Values{}
	for k, v := range validDonation {
		posted[k] = v
	}
	posted.Set(fieldInstance, "instance-slow")

	if sub := c.Submit(context.Background(), posted); sub.State != StateFailed || !errors.Is(sub.Err, context.DeadlineExceeded) {
		t.Fatalf("first: state=%s err=%v", sub.State, sub.Err)
	}

	// The backend is still running, so the instance stays taken.
	dup := c.Submit(context.Background(), posted)
	if !errors.Is(dup.Err, ErrInFlight) || !dup.Rejected {
		t.Fatalf("re-post during slow backend: err=%v rejected=%v", dup.Err, dup.Rejected)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("backend calls = %d, want 1", n)
	}

	close(unblock)
	<-returned
	deadline := time.Now().Add(time.Second)
	for {
		if _, busy := c.busy.Load("instance-slow"); !busy {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("instance still held after the backend returned")
		}
		time.Sleep(time.Millisecond)
	}
	if sub := c.Submit(context.Background(), posted); sub.State != StateSucceeded {
		t.Fatalf("resubmit state = %s, err = %v", sub.State, sub.Err)
	}
}

func TestController_PrepareRejects(t *testing.T) {
	fd := mustParse(t, donateYAML)
	var calls int32
	st := Strategy{Prepare: func(*Submission) error { return errors.New("Unsupported currency") }}
	c := NewController(fd, BackendFunc(func(context.Context, *Submission) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}), nil, st, Options{})

	sub := c.Submit(context.Background(), validDonation)
	if !sub.Rejected || calls != 0 || sub.Annotations.Message("") != "Unsupported currency" {
		t.Fatalf("rejected=%v calls=%d ann=%#v", sub.Rejected, calls, sub.Annotations)
	}
}

func TestController_GuardRejects(t *testing.T) {
	fd := mustParse(t, donateYAML)
	c := NewController(fd, BackendFunc(func(context.Context, *Submission) error { return nil }),
		nil, Strategy{}, Options{Guards: []Guard{CSRFGuard()}})

	sub := c.Submit(context.Background(), validDonation)
	if !sub.Rejected || sub.Annotations.Message("") == "" {
		t.Fatalf("expected CSRF rejection, got %+v", sub)
	}
	if !IsValidationError(sub.Err) {
		t.Fatalf("err = %v", sub.Err)
	}
}

func TestStateString(t *testing.T) {
	if StateSubmitting.String() != "submitting" || State(42).String() != "state(42)" {
		t.Fatal("unexpected State.String output")
	}
}
