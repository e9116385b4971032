// internal/form/actions.go
//
// HotBoxHair – Forms subsystem: post-submit actions.
//
// Context
//   A FormDef may declare actions.  ActionRunner is the generic submission
//   Backend for forms whose whole job is “record it and tell someone”, such
//   as the contact form.  The definition may declare:
//
//     •  email    queue a notification with the clean values
//     •  store    insert a JSON row into a MySQL table
//     •  webhook  queue an HTTP call with the clean values as JSON
//
//   Emails and webhooks go through the Outbox so the response is not held
//   up by a mail relay.
//
// Workflow
//   1. Every action's parameters are checked before any action runs.
//   2. Store actions run first.  A failed insert fails the submission with
//      nothing queued, so a retry never repeats a notification.
//   3. Email and webhook actions are queued; their errors are joined.
//
// Notes
//   •  Without a database the store action is skipped with a warning,
//      matching the database section of the configuration.
//
// Style
//   Two-space sentence spacing, Oxford comma, concise inline notes.
//
//------------------------------------------------------------------------------

package form

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hotboxhair/site/internal/logger"
	"github.com/hotboxhair/site/internal/message"
)

// Enqueuer is the part of message.Outbox the actions use.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, msg message.Email) error
	EnqueueWebhook(ctx context.Context, hook message.Webhook) error
}

// SubmissionTableDDL creates the default table of the store action.
const SubmissionTableDDL = `CREATE TABLE IF NOT EXISTS form_submission (
  id           CHAR(36)     NOT NULL PRIMARY KEY,
  form_id      VARCHAR(128) NOT NULL,
  submitted_at DATETIME(6)  NOT NULL,
  data         JSON         NOT NULL,
  KEY idx_form_submission_form (form_id, submitted_at)
)`

var tableNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,63}$`)

// ActionRunner executes the actions of a form definition.  DB may be nil
// when no form uses the store action.
type ActionRunner struct {
	DB     *sqlx.DB
	Outbox Enqueuer
}

// Submit implements Backend by running the actions of the submission's
// form.
func (ar *ActionRunner) Submit(ctx context.Context, sub *Submission) error {
	fd, ok := GetFormDef(sub.FormID)
	if !ok {
		return fmt.Errorf("actions: form %q not registered", sub.FormID)
	}
	if err := ar.Check(fd); err != nil {
		return err
	}
	log := logger.FromContext(ctx)

	for _, ac := range fd.Actions {
		if ac.Type != "store" {
			continue
		}
		if err := ar.runStore(ctx, fd, ac.Params, sub); err != nil {
			log.Errorw("form action failed", "form", fd.ID, "action", ac.Type, "err", err)
			return fmt.Errorf("store action: %w", err)
		}
	}

	var errs []error
	for _, ac := range fd.Actions {
		var err error
		switch ac.Type {
		case "store":
			continue
		case "email":
			err = ar.runEmail(ctx, fd, ac.Params, sub)
		case "webhook":
			err = ar.runWebhook(ctx, ac.Params, sub)
		default:
			log.Warnw("form action skipped", "form", fd.ID, "action", ac.Type)
			continue
		}
		if err != nil {
			log.Errorw("form action failed", "form", fd.ID, "action", ac.Type, "err", err)
			errs = append(errs, fmt.Errorf("%s action: %w", ac.Type, err))
		}
	}
	return errors.Join(errs...)
}

// Check reports action parameters that could never succeed with this
// runner.  Components call it at Init; Submit calls it before running
// anything.
func (ar *ActionRunner) Check(fd *FormDef) error {
	var errs []error
	for _, ac := range fd.Actions {
		p := ac.Params
		switch ac.Type {
		case "email":
			if ar.Outbox == nil {
				errs = append(errs, errors.New("email action: no outbox configured"))
			}
			if len(stringList(p["to"])) == 0 {
				errs = append(errs, errors.New("email action: 'to' parameter missing or empty"))
			}
		case "store":
			if table, _ := p["table"].(string); table != "" && !tableNameRe.MatchString(table) {
				errs = append(errs, fmt.Errorf("store action: invalid table name %q", table))
			}
		case "webhook":
			if ar.Outbox == nil {
				errs = append(errs, errors.New("webhook action: no outbox configured"))
			}
			if u, _ := p["url"].(string); u == "" {
				errs = append(errs, errors.New("webhook action: requires 'url'"))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("actions: form %q: %w", fd.ID, errors.Join(errs...))
	}
	return nil
}

// -----------------------------------------------------------------------------
// Email action
// -----------------------------------------------------------------------------

func (ar *ActionRunner) runEmail(ctx context.Context, fd *FormDef, p map[string]any, sub *Submission) error {
	to := stringList(p["to"])

	subject, _ := p["subject"].(string)
	if subject == "" {
		subject = fmt.Sprintf("Website form submission: %s", fd.Title)
	}

	var body strings.Builder
	for _, f := range fd.Fields {
		if v := sub.Value(f.Name); v != "" {
			fmt.Fprintf(&body, "%s: %s\n", f.Label, v)
		}
	}
	fmt.Fprintf(&body, "\nSubmission %s at %s\n", sub.ID, sub.Started.UTC().Format(time.RFC3339))

	return ar.Outbox.EnqueueEmail(ctx, message.Email{To: to, Subject: subject, Text: body.String()})
}

// -----------------------------------------------------------------------------
// Store action
// -----------------------------------------------------------------------------

func (ar *ActionRunner) runStore(ctx context.Context, fd *FormDef, p map[string]any, sub *Submission) error {
	if ar.DB == nil {
		logger.FromContext(ctx).Warnw("store action skipped: no database", "form", fd.ID, "submission", sub.ID)
		return nil
	}
	table, _ := p["table"].(string)
	if table == "" {
		table = "form_submission"
	}

	j, err := json.Marshal(sub.Values)
	if err != nil {
		return err
	}

	_, err = ar.DB.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, form_id, submitted_at, data) VALUES (?, ?, ?, ?)`, table),
		sub.ID, fd.ID, sub.Started.UTC(), j,
	)
	return err
}

// -----------------------------------------------------------------------------
// Webhook action
// -----------------------------------------------------------------------------

func (ar *ActionRunner) runWebhook(ctx context.Context, p map[string]any, sub *Submission) error {
	url, _ := p["url"].(string)
	method, _ := p["method"].(string)

	payload, err := json.Marshal(map[string]any{
		"form":       sub.FormID,
		"submission": sub.ID,
		"values":     sub.Values,
	})
	if err != nil {
		return err
	}

	hdr := http.Header{}
	for k, v := range p {
		if strings.HasPrefix(k, "header.") {
			hdr.Set(strings.TrimPrefix(k, "header."), fmt.Sprint(v))
		}
	}
	return ar.Outbox.EnqueueWebhook(ctx, message.Webhook{Method: strings.ToUpper(method), URL: url, Header: hdr, Body: payload})
}

// stringList accepts a YAML scalar or sequence of strings.
func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []any:
		var out []string
		for _, e := range t {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	}
	return nil
}
