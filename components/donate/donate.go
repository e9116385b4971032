// components/donate/donate.go
//
// HotBoxHair donation component – donation page, JSON endpoint, and the
// confirmation page.
//
// Context
//   The page is rendered entirely server-side.  Each post runs through one
//   form.Controller; the handler then re-renders the form with the
//   controller's annotations and button state, or shows the success
//   message and schedules the move to /thank-you.html with a meta refresh.
//   The JSON endpoint serves the same controller for script-driven pages.
//
// Routes
//   GET  /donate            page (optional ?amount= preselects a preset)
//   POST /donate            HTML post
//   GET  /api/donate        form meta for script clients
//   POST /api/donate        JSON or form-encoded post, JSON answer
//   GET  /thank-you.html    confirmation page
//
//------------------------------------------------------------------------------

package donate

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hotboxhair/site/internal/component"
	"github.com/hotboxhair/site/internal/donation"
	"github.com/hotboxhair/site/internal/form"
	"github.com/hotboxhair/site/internal/logger"
	"github.com/hotboxhair/site/internal/view"
)

// FormID is the registry key of the donation form.
const FormID = "donation/donate"

//go:embed forms/*.yaml
var formsFS embed.FS

//go:embed templates/*.html
var templatesFS embed.FS

// Compile-time assertion: *Component satisfies component.Component.
var _ component.Component = (*Component)(nil)

// Component serves the donation flow.
type Component struct {
	ctrl    *form.Controller
	views   *view.Engine
	tracker form.Tracker
	repo    *donation.Repository
}

/*────────────────── component.Component methods ───────────────────────────*/

// Name returns the canonical component key.
func (c *Component) Name() string { return "donation" }

// Migrations returns the donation table.
func (c *Component) Migrations() []string { return []string{donation.TableDDL} }

// Init builds the processor, the service, and the controller.
func (c *Component) Init(d component.Deps) error {
	fd, ok := form.GetFormDef(FormID)
	if !ok {
		return fmt.Errorf("donation: form %q not registered", FormID)
	}

	dc := d.Config.Donation
	var proc donation.Processor
	switch dc.Processor {
	case "webhook":
		proc = donation.NewWebhook(dc.WebhookURL, []byte(dc.WebhookSecret), dc.Timeout)
	default:
		proc = donation.Simulated{Delay: dc.Delay}
	}

	if d.DB != nil {
		c.repo = donation.NewRepository(d.DB)
	}
	var mailer donation.Mailer
	if d.Outbox != nil {
		mailer = d.Outbox
	}
	svc := donation.NewService(proc, c.repo, mailer, donation.Options{
		Currency:      dc.Currency,
		Redirect:      dc.Redirect,
		RedirectDelay: dc.RedirectDelay,
		ReceiptFrom:   dc.ReceiptFrom,
	})

	if d.Tracker != nil {
		c.tracker = d.Tracker
	}
	c.ctrl = form.NewController(fd, svc, c.tracker, svc.Strategy(), d.FormOptions())
	c.views = d.Views
	c.views.Register(c.Name(), templatesFS)
	return nil
}

// Routes builds and returns the router mounted at “/”.
func (c *Component) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/donate", c.handleDonateGET)
	r.Post("/donate", c.handleDonatePOST)
	r.Get("/api/donate", c.handleAPIGet)
	r.Post("/api/donate", c.handleAPIPost)
	r.Get("/thank-you.html", c.handleThankYou)
	return r
}

// Register component and its embedded form at program start.
func init() {
	forms, err := fs.Sub(formsFS, "forms")
	if err != nil {
		panic(err)
	}
	form.MustRegisterFS(forms)
	component.Register(&Component{})
}

/*──────────────────────────── Page data ────────────────────────────────────*/

type pill struct {
	Amount string
	Active bool
}

type pageData struct {
	Form      template.HTML
	Presets   []pill
	Message   string
	Succeeded bool
	Redirect  string
}

func presets(selected string) []pill {
	out := make([]pill, 0, len(donation.Presets))
	for _, a := range donation.Presets {
		s := a.String()
		out = append(out, pill{Amount: s, Active: s == selected})
	}
	return out
}

/*──────────────────────────── Handlers ─────────────────────────────────────*/

func (c *Component) handleDonateGET(w http.ResponseWriter, r *http.Request) {
	prefill := map[string]string{}
	if q := r.URL.Query().Get(donation.FieldAmount); q != "" {
		if a, err := donation.ParseAmount(q); err == nil {
			prefill[donation.FieldAmount] = a.String()
			c.trackEngagement(r, "amount_selected", map[string]any{"amount": a.String()})
		}
	}
	c.trackEngagement(r, "page_view", map[string]any{"page": r.URL.Path})

	c.renderForm(w, r, http.StatusOK, prefill, nil, "")
}

func (c *Component) handleDonatePOST(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sub := c.ctrl.Submit(r.Context(), r.PostForm)

	if sub.Succeeded() {
		p := view.NewPage(r, "Thank you | HotBoxHair", pageData{
			Message:   sub.Message,
			Succeeded: true,
			Redirect:  sub.Navigation.URL,
		})
		p.Head.Refresh(sub.Navigation.After(), sub.Navigation.URL)
		c.render(w, r, http.StatusOK, "donate", p)
		return
	}

	msg := ""
	if !sub.Rejected {
		msg = sub.Message
	}
	c.renderForm(w, r, statusFor(sub), form.Echo(c.ctrl.Def(), r.PostForm), sub, msg)
}

func (c *Component) handleThankYou(w http.ResponseWriter, r *http.Request) {
	c.render(w, r, http.StatusOK, "thank-you", view.NewPage(r, "Thank you | HotBoxHair", nil))
}

/*──────────────────────────── Rendering ────────────────────────────────────*/

// renderForm shows the form.  sub carries the annotations and button state
// of the last post, or is nil for a fresh page.
func (c *Component) renderForm(w http.ResponseWriter, r *http.Request, status int, prefill map[string]string, sub *form.Submission, msg string) {
	opts := form.RenderOptions{
		Action:  "/donate",
		Prefill: prefill,
		Help:    donation.Descriptions(),
	}
	if sub != nil {
		opts.Annotations = sub.Annotations
		opts.Summary = sub.Rejected
		btn := sub.Button
		opts.Button = &btn
		// Same instance token: a second post of this page stays guarded.
		opts.InstanceID = sub.InstanceID
	}

	html, err := form.RenderForm(c.ctrl.Def(), opts)
	if err != nil {
		logger.FromContext(r.Context()).Errorw("donation form render failed", "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	p := view.NewPage(r, "Donate | HotBoxHair", pageData{
		Form:    html,
		Presets: presets(prefill[donation.FieldAmount]),
		Message: msg,
	})
	p.Head.Description("Support HotBoxHair with a one-time or monthly donation.")
	c.render(w, r, status, "donate", p)
}

func (c *Component) render(w http.ResponseWriter, r *http.Request, status int, name string, p *view.Page) {
	if err := c.views.RenderStatus(w, status, c.Name(), name, p); err != nil {
		logger.FromContext(r.Context()).Errorw("donation template failed", "template", name, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

/*──────────────────────────── Helpers ──────────────────────────────────────*/

// statusFor maps a finished submission to an HTTP status.
func statusFor(sub *form.Submission) int {
	switch {
	case sub.Succeeded():
		return http.StatusOK
	case errors.Is(sub.Err, form.ErrInFlight):
		return http.StatusConflict
	case sub.Rejected:
		return http.StatusUnprocessableEntity
	case errors.Is(sub.Err, donation.ErrDeclined):
		return http.StatusPaymentRequired
	default:
		return http.StatusBadGateway
	}
}

// trackEngagement records the page-level events the donation page used to
// send from the browser.
func (c *Component) trackEngagement(r *http.Request, name string, payload map[string]any) {
	if c.tracker == nil {
		return
	}
	payload["category"] = "engagement"
	payload["form"] = FormID
	c.tracker.Track(r.Context(), name, payload)
}
