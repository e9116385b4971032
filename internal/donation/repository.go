// internal/donation/repository.go
//
// HotBoxHair – donation records (MySQL via sqlx).
//
// Context
//   Every donation that reaches the processor is recorded first as
//   “pending” and then moved to “succeeded” or “failed”, so an interrupted
//   charge still leaves a trace for reconciliation.
//
//------------------------------------------------------------------------------

package donation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Record statuses.
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// TableDDL creates the donation table.
const TableDDL = `CREATE TABLE IF NOT EXISTS donation (
  id             CHAR(36)     NOT NULL PRIMARY KEY,
  created_at     DATETIME(6)  NOT NULL,
  updated_at     DATETIME(6)  NOT NULL,
  email          VARCHAR(254) NOT NULL,
  name           VARCHAR(200) NOT NULL,
  amount_cents   BIGINT       NOT NULL,
  currency       CHAR(3)      NOT NULL,
  donation_type  VARCHAR(16)  NOT NULL,
  payment_method VARCHAR(16)  NOT NULL,
  recurring      TINYINT(1)   NOT NULL DEFAULT 0,
  status         VARCHAR(16)  NOT NULL,
  gateway_ref    VARCHAR(128) NOT NULL DEFAULT '',
  failure        VARCHAR(255) NOT NULL DEFAULT '',
  KEY idx_donation_status (status, created_at)
)`

// ErrNotFound is returned by Get for an unknown ID.
var ErrNotFound = errors.New("donation not found")

// Record is one row of the donation table.
type Record struct {
	ID          string    `db:"id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	Email       string    `db:"email"`
	Name        string    `db:"name"`
	AmountCents int64     `db:"amount_cents"`
	Currency    string    `db:"currency"`
	Type        string    `db:"donation_type"`
	Method      string    `db:"payment_method"`
	Recurring   bool      `db:"recurring"`
	Status      string    `db:"status"`
	GatewayRef  string    `db:"gateway_ref"`
	Failure     string    `db:"failure"`
}

// Repository persists donation records.
type Repository struct {
	db *sqlx.DB
}

// NewRepository wraps db.
func NewRepository(db *sqlx.DB) *Repository { return &Repository{db: db} }

// Insert writes a new record.
func (r *Repository) Insert(ctx context.Context, rec *Record) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO donation (id, created_at, updated_at, email, name, amount_cents, currency, donation_type, payment_method, recurring, status, gateway_ref, failure) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt, rec.UpdatedAt, rec.Email, rec.Name, rec.AmountCents, rec.Currency,
		rec.Type, rec.Method, rec.Recurring, rec.Status, rec.GatewayRef, rec.Failure,
	)
	if err != nil {
		return fmt.Errorf("insert donation %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateStatus moves a record to status.  failure is truncated to the
// column width.
func (r *Repository) UpdateStatus(ctx context.Context, id, status, gatewayRef, failure string) error {
	if len(failure) > 255 {
		failure = failure[:255]
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE donation SET status = ?, gateway_ref = ?, failure = ?, updated_at = ? WHERE id = ?`,
		status, gatewayRef, failure, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update donation %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update donation %s: %w", id, ErrNotFound)
	}
	return nil
}

// Get loads one record.
func (r *Repository) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := r.db.GetContext(ctx, &rec, `SELECT * FROM donation WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get donation %s: %w", id, err)
	}
	return &rec, nil
}
