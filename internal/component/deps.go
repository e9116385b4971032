// internal/component/deps.go
package component

import (
	"github.com/jmoiron/sqlx"

	"github.com/hotboxhair/site/internal/config"
	"github.com/hotboxhair/site/internal/form"
	"github.com/hotboxhair/site/internal/message"
	"github.com/hotboxhair/site/internal/tracking"
	"github.com/hotboxhair/site/internal/view"
)

// Deps exposes process-wide resources to Components during Init.  DB is nil
// when no database is configured.
type Deps struct {
	Config  *config.Config
	DB      *sqlx.DB
	Outbox  *message.Outbox
	Tracker *tracking.Tracker
	Views   *view.Engine
}

// FormOptions returns the controller options every form shares: the CSRF
// and timing guards plus the submit timeout from configuration.
func (d Deps) FormOptions() form.Options {
	f := d.Config.Forms
	return form.Options{
		Guards:        []form.Guard{form.CSRFGuard(), form.TimingGuard(f.MinSubmitTime, f.MaxSubmitAge)},
		SubmitTimeout: f.SubmitTimeout,
	}
}
