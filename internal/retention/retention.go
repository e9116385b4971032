// internal/retention/retention.go
//
// Scheduled deletion of stored contact submissions.
//
// Context
// -------
// The contact form's store action keeps every message in form_submission.
// Those rows carry names, email addresses, and phone numbers, so they are
// kept only for database.retention.  Donation rows are financial records
// and are left alone.
//
// Workflow
// --------
//   1. serve builds a Pruner when a database is open and retention > 0.
//   2. Start runs one pass immediately, then on database.prune_schedule
//      (robfig/cron syntax, default "@daily").
//   3. Stop waits for a running pass before the database closes.
//
//------------------------------------------------------------------------------

package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hotboxhair/site/internal/metrics"
)

// Table is the only table the pruner touches.
const Table = "form_submission"

// passTimeout bounds one pruning pass.
const passTimeout = 2 * time.Minute

// Pruner deletes submissions older than MaxAge.
type Pruner struct {
	db     *sqlx.DB
	maxAge time.Duration
	now    func() time.Time
}

func NewPruner(db *sqlx.DB, maxAge time.Duration) *Pruner {
	return &Pruner{db: db, maxAge: maxAge, now: time.Now}
}

// Prune runs one pass and reports the number of deleted rows.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	cutoff := p.now().UTC().Add(-p.maxAge)
	res, err := p.db.ExecContext(ctx, `DELETE FROM form_submission WHERE submitted_at < ?`, cutoff)
	if err != nil {
		metrics.PruneErrorsTotal.Inc()
		return 0, fmt.Errorf("retention: prune %s: %w", Table, err)
	}
	n, _ := res.RowsAffected()
	metrics.PrunedRowsTotal.WithLabelValues(Table).Add(float64(n))
	return n, nil
}

// Scheduler runs a Pruner on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.SugaredLogger
}

// Start validates schedule, prunes once, and starts the cron loop.
func Start(ctx context.Context, p *Pruner, schedule string, log *zap.SugaredLogger) (*Scheduler, error) {
	s := &Scheduler{cron: cron.New(), log: log}

	pass := func() {
		ctx, cancel := context.WithTimeout(context.Background(), passTimeout)
		defer cancel()
		n, err := p.Prune(ctx)
		if err != nil {
			s.log.Warnw("retention pass failed", "err", err)
			return
		}
		s.log.Infow("retention pass", "table", Table, "deleted", n, "max_age", p.maxAge)
	}
	if _, err := s.cron.AddFunc(schedule, pass); err != nil {
		return nil, fmt.Errorf("retention: schedule %q: %w", schedule, err)
	}

	if ctx.Err() == nil {
		pass()
	}
	s.cron.Start()
	return s, nil
}

// Stop halts the schedule and waits for a running pass, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
