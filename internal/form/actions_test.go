// internal/form/actions_test.go
//
// Unit-tests for ActionRunner using sqlmock and a recording outbox.
//
// Run: go test ./internal/form -run Action -v

package form

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/hotboxhair/site/internal/message"
)

type recordingOutbox struct {
	mu     sync.Mutex
	emails []message.Email
	hooks  []message.Webhook
	err    error
}

func (r *recordingOutbox) EnqueueEmail(_ context.Context, m message.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails = append(r.emails, m)
	return r.err
}

func (r *recordingOutbox) EnqueueWebhook(_ context.Context, h message.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, h)
	return r.err
}

const contactActionsYAML = `
id: acttest/contact
title: Contact
fields:
  - name: name
    label: Name
    type: text
    required: true
  - name: email
    label: Email
    type: email
    required: true
actions:
  - type: email
    to: [owner@example.com]
    subject: New enquiry
  - type: store
  - type: webhook
    url: https://hooks.example.com/contact
    header.X-Token: abc
`

func testSubmission() *Submission {
	return &Submission{
		ID:      "11111111-2222-3333-4444-555555555555",
		FormID:  "acttest/contact",
		Values:  map[string]any{"name": "Jane", "email": "a@b.com"},
		Started: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestActionRunner_AllActions(t *testing.T) {
	Register(mustParse(t, contactActionsYAML))

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO form_submission (id, form_id, submitted_at, data) VALUES (?, ?, ?, ?)`,
	)).
		WithArgs("11111111-2222-3333-4444-555555555555", "acttest/contact", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	out := &recordingOutbox{}
	ar := &ActionRunner{DB: sqlx.NewDb(db, "mysql"), Outbox: out}

	if err := ar.Submit(context.Background(), testSubmission()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}

	if len(out.emails) != 1 || out.emails[0].Subject != "New enquiry" || out.emails[0].To[0] != "owner@example.com" {
		t.Fatalf("emails = %#v", out.emails)
	}
	if !strings.Contains(out.emails[0].Text, "Name: Jane") {
		t.Fatalf("email body = %q", out.emails[0].Text)
	}
	if len(out.hooks) != 1 || out.hooks[0].Header.Get("X-Token") != "abc" {
		t.Fatalf("hooks = %#v", out.hooks)
	}
	if !strings.Contains(string(out.hooks[0].Body), `"submission":"11111111-2222-3333-4444-555555555555"`) {
		t.Fatalf("hook body = %s", out.hooks[0].Body)
	}
}

func TestActionRunner_JoinsQueueErrors(t *testing.T) {
	Register(mustParse(t, contactActionsYAML))

	queueErr := errors.New("queue full")
	ar := &ActionRunner{Outbox: &recordingOutbox{err: queueErr}} // no DB: store is skipped

	err := ar.Submit(context.Background(), testSubmission())
	if !errors.Is(err, queueErr) {
		t.Fatalf("err = %v, want queue error", err)
	}
	if !strings.Contains(err.Error(), "email action") || !strings.Contains(err.Error(), "webhook action") {
		t.Fatalf("err = %v, want both queue failures", err)
	}
	if strings.Contains(err.Error(), "store action") {
		t.Fatalf("err = %v, store should be skipped without a database", err)
	}
}

func TestActionRunner_NoDatabaseSkipsStore(t *testing.T) {
	Register(mustParse(t, contactActionsYAML))

	out := &recordingOutbox{}
	ar := &ActionRunner{Outbox: out}
	if err := ar.Submit(context.Background(), testSubmission()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(out.emails) != 1 || len(out.hooks) != 1 {
		t.Fatalf("emails = %d, hooks = %d", len(out.emails), len(out.hooks))
	}
}

func TestActionRunner_StoreFailureQueuesNothing(t *testing.T) {
	Register(mustParse(t, contactActionsYAML))

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO form_submission`)).WillReturnError(errors.New("disk full"))

	out := &recordingOutbox{}
	ar := &ActionRunner{DB: sqlx.NewDb(db, "mysql"), Outbox: out}
	if err := ar.Submit(context.Background(), testSubmission()); err == nil || !strings.Contains(err.Error(), "store action") {
		t.Fatalf("err = %v", err)
	}
	if len(out.emails) != 0 || len(out.hooks) != 0 {
		t.Fatalf("queued %d emails and %d hooks after a failed store", len(out.emails), len(out.hooks))
	}
}

func TestActionRunner_CheckRunsBeforeAnyAction(t *testing.T) {
	Register(mustParse(t, `
id: acttest/badtable
fields: [{name: x, label: X, type: text}]
actions:
  - type: email
    to: owner@example.com
  - type: store
    table: "x; DROP TABLE y"
`))
	db, mock, _ := sqlmock.New()
	defer db.Close()

	out := &recordingOutbox{}
	ar := &ActionRunner{DB: sqlx.NewDb(db, "mysql"), Outbox: out}
	sub := testSubmission()
	sub.FormID = "acttest/badtable"
	if err := ar.Submit(context.Background(), sub); err == nil || !strings.Contains(err.Error(), "invalid table name") {
		t.Fatalf("err = %v", err)
	}
	if len(out.emails) != 0 {
		t.Fatal("email queued despite a bad store action")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestActionRunner_CheckMissingOutbox(t *testing.T) {
	fd := mustParse(t, contactActionsYAML)
	err := (&ActionRunner{}).Check(fd)
	if err == nil || !strings.Contains(err.Error(), "email action: no outbox configured") ||
		!strings.Contains(err.Error(), "webhook action: no outbox configured") {
		t.Fatalf("err = %v", err)
	}
}
