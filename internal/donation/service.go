// internal/donation/service.go
//
// HotBoxHair – donation service.
//
// Context
//   Service is the submission Backend of the donation form.  Strategy
//   returns the matching controller configuration (event names, tracked
//   payload, messages, and the thank-you redirect), so the donation page
//   and the JSON endpoint share one controller.
//
// Workflow (Submit)
//   1.  Record the donation as pending (when a repository is configured).
//   2.  Charge it through the Processor.
//   3.  Mark the record succeeded or failed.
//   4.  On success, queue the receipt email.  A queueing error is logged;
//       the money has moved, so the donation still counts as succeeded.
//
//------------------------------------------------------------------------------

package donation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hotboxhair/site/internal/form"
	"github.com/hotboxhair/site/internal/logger"
	"github.com/hotboxhair/site/internal/message"
	"github.com/hotboxhair/site/internal/metrics"
)

// Mailer is the part of message.Outbox the service uses.
type Mailer interface {
	EnqueueEmail(ctx context.Context, msg message.Email) error
}

// Options configure a Service.
type Options struct {
	Currency      string        // ISO 4217, default "USD"
	Redirect      string        // confirmation page, default "/thank-you.html"
	RedirectDelay time.Duration // default 3s
	ReceiptFrom   string        // organisation name used in the receipt
}

// Service charges and records donations.
type Service struct {
	processor Processor
	repo      *Repository
	mailer    Mailer
	opts      Options
}

// NewService wires the collaborators.  repo and mailer may be nil.
func NewService(p Processor, repo *Repository, mailer Mailer, opts Options) *Service {
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	if opts.Redirect == "" {
		opts.Redirect = "/thank-you.html"
	}
	if opts.RedirectDelay <= 0 {
		opts.RedirectDelay = 3 * time.Second
	}
	if opts.ReceiptFrom == "" {
		opts.ReceiptFrom = "HotBoxHair"
	}
	return &Service{processor: p, repo: repo, mailer: mailer, opts: opts}
}

// Submit implements form.Backend.
func (s *Service) Submit(ctx context.Context, sub *form.Submission) error {
	d, ok := sub.Data.(*Submission)
	if !ok {
		var err error
		if d, err = FromValues(sub.Values); err != nil {
			return err
		}
	}
	log := logger.FromContext(ctx)

	now := time.Now().UTC()
	rec := &Record{
		ID:          sub.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Email:       d.Email,
		Name:        d.Name,
		AmountCents: d.Amount.Cents(),
		Currency:    s.opts.Currency,
		Type:        string(d.Type),
		Method:      string(d.Method),
		Recurring:   d.Recurring,
		Status:      StatusPending,
	}
	if s.repo != nil {
		if err := s.repo.Insert(ctx, rec); err != nil {
			return err
		}
	}

	charge := Charge{
		Reference: sub.ID,
		Amount:    d.Amount.Cents(),
		Currency:  s.opts.Currency,
		Method:    d.Method,
		Recurring: d.Recurring,
		Email:     d.Email,
		Name:      d.Name,
	}
	charge.IdemKey = IdempotencyKey(sub.InstanceID, sub.ID, charge)
	receipt, chargeErr := s.processor.Charge(ctx, charge)

	if s.repo != nil {
		status, failure := StatusSucceeded, ""
		if chargeErr != nil {
			status, failure = StatusFailed, chargeErr.Error()
		}
		if err := s.repo.UpdateStatus(ctx, rec.ID, status, receipt.GatewayRef, failure); err != nil {
			log.Errorw("donation status update failed", "donation", rec.ID, "status", status, "err", err)
		}
	}
	if chargeErr != nil {
		return chargeErr
	}

	metrics.DonationCentsTotal.WithLabelValues(string(d.Type)).Add(float64(d.Amount.Cents()))
	log.Infow("donation succeeded", "donation", rec.ID, "amount", d.Amount.String(), "type", d.Type, "method", d.Method)

	if s.mailer != nil && d.Email != "" {
		if err := s.mailer.EnqueueEmail(ctx, s.receipt(rec.ID, d)); err != nil {
			log.Warnw("donation receipt not queued", "donation", rec.ID, "err", err)
		}
	}
	return nil
}

func (s *Service) receipt(id string, d *Submission) message.Email {
	kind := "one-time donation"
	if d.Recurring {
		kind = "recurring monthly donation"
	}
	text := fmt.Sprintf(
		"Dear %s,\n\nThank you for your %s of $%s to %s.\n\nReference: %s\nPayment method: %s\n\nWith gratitude,\n%s\n",
		d.Name, kind, d.Amount, s.opts.ReceiptFrom, id, d.Method, s.opts.ReceiptFrom,
	)
	return message.Email{
		To:      []string{d.Email},
		Subject: fmt.Sprintf("Thank you for your donation to %s", s.opts.ReceiptFrom),
		Text:    text,
	}
}

// ---- Controller strategy --------------------------------------------------

// Strategy returns the controller configuration for the donation form.
func (s *Service) Strategy() form.Strategy {
	return form.Strategy{
		AttemptEvent: "donation_attempt",
		SuccessEvent: "donation_success",
		FailureEvent: "donation_error",

		Prepare: func(sub *form.Submission) error {
			d, err := FromValues(sub.Values)
			if err != nil {
				return err
			}
			sub.Data = d
			return nil
		},

		Payload: func(sub *form.Submission) map[string]any {
			p := map[string]any{"category": "donation"}
			d, ok := sub.Data.(*Submission)
			if !ok {
				return p
			}
			p["amount"] = d.Amount.String()
			p["type"] = string(d.Type)
			p["method"] = string(d.Method)
			if sub.State == form.StateSubmitting {
				p["recurring"] = d.Recurring
			}
			return p
		},

		SuccessMessage: func(sub *form.Submission) string {
			amt := sub.Value(FieldAmount)
			if d, ok := sub.Data.(*Submission); ok {
				amt = d.Amount.String()
			}
			return fmt.Sprintf("Your donation of $%s has been processed successfully.  "+
				"You will receive a confirmation email shortly.", amt)
		},

		FailureMessage: func(_ *form.Submission, err error) string {
			if errors.Is(err, ErrDeclined) {
				return "Your payment was declined.  Please check your details or choose another payment method."
			}
			return "We could not process your donation right now.  Please try again in a few minutes."
		},

		Redirect:      s.opts.Redirect,
		RedirectDelay: s.opts.RedirectDelay,
	}
}
