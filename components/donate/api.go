// components/donate/api.go
//
// JSON endpoints of the donation component.
//
// GET /api/donate returns what a script-driven page needs to build and post
// the form: field list, presets, payment-method help, and the hidden meta
// values (CSRF token, render timestamp, instance token).
//
// POST /api/donate accepts either a JSON object or a form-encoded body and
// answers with the final state of the submission.

package donate

import (
	"net/http"

	"github.com/hotboxhair/site/internal/donation"
	"github.com/hotboxhair/site/internal/form"
	"github.com/hotboxhair/site/internal/logger"
	"github.com/hotboxhair/site/internal/view"
)

type apiField struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Required bool     `json:"required,omitempty"`
	Default  string   `json:"default,omitempty"`
	Options  []string `json:"options,omitempty"`
}

type apiForm struct {
	ID      string            `json:"id"`
	Title   string            `json:"title"`
	Button  form.ButtonState  `json:"button"`
	Fields  []apiField        `json:"fields"`
	Meta    map[string]string `json:"meta"`
	Presets []string          `json:"presets"`
	Methods map[string]string `json:"methods"`
}

func (c *Component) handleAPIGet(w http.ResponseWriter, r *http.Request) {
	fd := c.ctrl.Def()
	out := apiForm{
		ID:      fd.ID,
		Title:   fd.Title,
		Button:  c.ctrl.Idle(),
		Meta:    form.HiddenFields(""),
		Methods: donation.Descriptions(),
	}
	for _, f := range fd.Fields {
		out.Fields = append(out.Fields, apiField{
			Name: f.Name, Label: f.Label, Type: f.Type,
			Required: f.Required, Default: f.Default, Options: f.Options,
		})
	}
	for _, a := range donation.Presets {
		out.Presets = append(out.Presets, a.String())
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (c *Component) handleAPIPost(w http.ResponseWriter, r *http.Request) {
	posted, err := form.DecodePost(w, r)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	sub := c.ctrl.Submit(r.Context(), posted)
	writeJSON(w, r, statusFor(sub), form.NewResult(c.ctrl.Def(), sub))
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := view.JSON(w, status, v); err != nil {
		logger.FromContext(r.Context()).Errorw("donation json write failed", "err", err)
	}
}
