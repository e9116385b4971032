// components/contact/contact.go
//
// HotBoxHair contact component – the contact page and its JSON endpoint.
//
// Context
//   The contact form is driven entirely by its definition: the posted
//   values are validated against forms/contact.yaml and handed to
//   form.ActionRunner, which mails the front desk and stores the row.
//   Nothing here knows about the individual fields.
//
// Routes
//   GET  /contact        page
//   POST /contact        HTML post
//   POST /api/contact    JSON or form-encoded post, JSON answer
//
//------------------------------------------------------------------------------

package contact

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hotboxhair/site/internal/component"
	"github.com/hotboxhair/site/internal/form"
	"github.com/hotboxhair/site/internal/logger"
	"github.com/hotboxhair/site/internal/view"
)

// FormID is the registry key of the contact form.
const FormID = "contact/contact"

//go:embed forms/*.yaml
var formsFS embed.FS

//go:embed templates/*.html
var templatesFS embed.FS

var _ component.Component = (*Component)(nil)

// Component serves the contact page.
type Component struct {
	ctrl  *form.Controller
	views *view.Engine
}

// Name returns the canonical component key.
func (c *Component) Name() string { return "contact" }

// Migrations returns the table of the store action.
func (c *Component) Migrations() []string { return []string{form.SubmissionTableDDL} }

// Init wires the controller to an ActionRunner.
func (c *Component) Init(d component.Deps) error {
	fd, ok := form.GetFormDef(FormID)
	if !ok {
		return fmt.Errorf("contact: form %q not registered", FormID)
	}

	runner := &form.ActionRunner{DB: d.DB}
	if d.Outbox != nil {
		runner.Outbox = d.Outbox
	}
	if err := runner.Check(fd); err != nil {
		return fmt.Errorf("contact: %w", err)
	}
	if d.DB == nil {
		zap.S().Warnw("contact submissions will not be stored: no database configured", "form", FormID)
	}
	var tracker form.Tracker
	if d.Tracker != nil {
		tracker = d.Tracker
	}

	c.ctrl = form.NewController(fd, runner, tracker, form.Strategy{
		SuccessMessage: func(*form.Submission) string {
			return "Thanks for getting in touch.  We will reply within two working days."
		},
	}, d.FormOptions())
	c.views = d.Views
	c.views.Register(c.Name(), templatesFS)
	return nil
}

// Routes builds and returns the router mounted at “/”.
func (c *Component) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/contact", c.handleGET)
	r.Post("/contact", c.handlePOST)
	r.Post("/api/contact", c.handleAPIPost)
	return r
}

func init() {
	forms, err := fs.Sub(formsFS, "forms")
	if err != nil {
		panic(err)
	}
	form.MustRegisterFS(forms)
	component.Register(&Component{})
}

type pageData struct {
	Intro     string
	Form      template.HTML
	Message   string
	Succeeded bool
}

func (c *Component) handleGET(w http.ResponseWriter, r *http.Request) {
	c.renderForm(w, r, http.StatusOK, nil, nil)
}

func (c *Component) handlePOST(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sub := c.ctrl.Submit(r.Context(), r.PostForm)

	if sub.Succeeded() {
		c.render(w, r, http.StatusOK, view.NewPage(r, "Contact | HotBoxHair", pageData{Message: sub.Message, Succeeded: true}))
		return
	}
	c.renderForm(w, r, statusFor(sub), form.Echo(c.ctrl.Def(), r.PostForm), sub)
}

func (c *Component) handleAPIPost(w http.ResponseWriter, r *http.Request) {
	posted, err := form.DecodePost(w, r)
	if err != nil {
		_ = view.JSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	sub := c.ctrl.Submit(r.Context(), posted)
	if err := view.JSON(w, statusFor(sub), form.NewResult(c.ctrl.Def(), sub)); err != nil {
		logger.FromContext(r.Context()).Errorw("contact json write failed", "err", err)
	}
}

func (c *Component) renderForm(w http.ResponseWriter, r *http.Request, status int, prefill map[string]string, sub *form.Submission) {
	opts := form.RenderOptions{Action: "/contact", Prefill: prefill}
	msg := ""
	if sub != nil {
		opts.Annotations = sub.Annotations
		opts.Summary = sub.Rejected
		btn := sub.Button
		opts.Button = &btn
		opts.InstanceID = sub.InstanceID
		if !sub.Rejected {
			msg = sub.Message
		}
	}

	html, err := form.RenderForm(c.ctrl.Def(), opts)
	if err != nil {
		logger.FromContext(r.Context()).Errorw("contact form render failed", "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	p := view.NewPage(r, "Contact | HotBoxHair", pageData{Intro: c.ctrl.Def().Intro, Form: html, Message: msg})
	p.Head.Description("Get in touch with the HotBoxHair team.")
	c.render(w, r, status, p)
}

func (c *Component) render(w http.ResponseWriter, r *http.Request, status int, p *view.Page) {
	if err := c.views.RenderStatus(w, status, c.Name(), "contact", p); err != nil {
		logger.FromContext(r.Context()).Errorw("contact template failed", "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func statusFor(sub *form.Submission) int {
	switch {
	case sub.Succeeded():
		return http.StatusOK
	case errors.Is(sub.Err, form.ErrInFlight):
		return http.StatusConflict
	case sub.Rejected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
