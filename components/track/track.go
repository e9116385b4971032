// components/track/track.go
//
// HotBoxHair track component – the browser beacon endpoint.
//
// Context
//   Interactions that only the browser sees (choosing a payment method,
//   switching to a monthly gift, scrolling) are posted here and relayed to
//   the tracker.  The event name comes from a fixed list so the analytics
//   backend is never fed arbitrary labels.
//
// Routes
//   POST /api/track   {"event": "...", "data": {...}}   → 202
//
// Notes
//   • The endpoint answers 202 as soon as the event is queued.  A full
//     tracker queue drops the event silently.
//   • Cross-origin posts are allowed for the origins in http.cors_origins.
//
//------------------------------------------------------------------------------

package track

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/hotboxhair/site/internal/component"
	"github.com/hotboxhair/site/internal/form"
	"github.com/hotboxhair/site/internal/logger"
	"github.com/hotboxhair/site/internal/view"
)

const maxBeacon = 8 << 10

var _ component.Component = (*Component)(nil)

// Beacon is one posted event.
type Beacon struct {
	Event    string         `json:"event"    validate:"required,oneof=page_view amount_selected payment_method_selected donation_type_changed scroll_25 scroll_50 scroll_75"`
	Category string         `json:"category" validate:"omitempty,max=64"`
	Page     string         `json:"page"     validate:"omitempty,max=512"`
	Data     map[string]any `json:"data"     validate:"max=20"`
}

// Component relays beacons to the tracker.
type Component struct {
	tracker form.Tracker
	origins []string
	v       *validator.Validate
}

// Name returns the canonical component key.
func (c *Component) Name() string { return "track" }

// Migrations returns nothing; beacons are not stored locally.
func (c *Component) Migrations() []string { return nil }

// Init keeps the tracker and the allowed origins.
func (c *Component) Init(d component.Deps) error {
	if d.Tracker != nil {
		c.tracker = d.Tracker
	}
	c.origins = d.Config.HTTP.CORSOrigins
	c.v = validator.New(validator.WithRequiredStructEnabled())
	return nil
}

// Routes builds and returns the router mounted at “/”.
func (c *Component) Routes() chi.Router {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		if len(c.origins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: c.origins,
				AllowedMethods: []string{http.MethodPost, http.MethodOptions},
				AllowedHeaders: []string{"Content-Type"},
				MaxAge:         300,
			}))
		}
		r.Post("/api/track", c.handleTrack)
		r.Options("/api/track", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	})
	return r
}

func init() { component.Register(&Component{}) }

func (c *Component) handleTrack(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var b Beacon
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBeacon))
	if err := dec.Decode(&b); err != nil {
		_ = view.JSON(w, http.StatusBadRequest, map[string]string{"error": "bad JSON body"})
		return
	}
	if err := c.v.Struct(b); err != nil {
		log.Debugw("beacon rejected", "event", b.Event, "err", err)
		_ = view.JSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	if c.tracker != nil {
		payload := make(map[string]any, len(b.Data)+2)
		for k, v := range b.Data {
			payload[k] = v
		}
		payload["category"] = b.Category
		if payload["category"] == "" {
			payload["category"] = "engagement"
		}
		if b.Page != "" {
			payload["page"] = b.Page
		}
		c.tracker.Track(r.Context(), b.Event, payload)
	}
	w.WriteHeader(http.StatusAccepted)
}
