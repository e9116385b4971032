// internal/form/renderer.go
//
// HotBoxHair – Forms subsystem: HTML renderer.
//
// Context
//   RenderForm turns a FormDef plus the state of the current submission into
//   plain, accessible markup.  Everything the browser scripts used to mutate
//   is decided here instead:
//
//     •  an error element right after each invalid input, and the input
//        marked `aria-invalid` with class “invalid” (red border in CSS),
//     •  an aggregated error list at the top when Summary is set,
//     •  the submit button's label and disabled state,
//     •  hidden inputs for the CSRF token, render timestamp, and the form
//        instance token used by the in-flight guard.
//
// Style
//   No framework classes.  Each input gets id="fld-{name}" and is wrapped in
//   <div class="form-field">.
//
//------------------------------------------------------------------------------

package form

import (
	"fmt"
	"html"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Hidden meta inputs.
const (
	fieldCSRF     = "csrf_token"
	fieldRenderTS = "render_ts"
	fieldInstance = "form_instance"
)

// renderable lists the field types writeField knows how to emit.
var renderable = map[string]bool{
	TypeText: true, TypeEmail: true, TypeTel: true, TypeNumber: true,
	TypePassword: true, TypeDate: true, TypeTextarea: true, TypeSelect: true,
	TypeRadio: true, TypeCheckbox: true, TypeHidden: true,
}

// ButtonState is the submit control as the user should see it.
type ButtonState struct {
	Label    string `json:"label"`
	Disabled bool   `json:"disabled"`
	Busy     bool   `json:"busy"`
}

// RenderOptions bundles the per-render inputs.
type RenderOptions struct {
	Action      string            // form action URL
	Prefill     map[string]string // values to show, keyed by field name
	Annotations Annotations       // field errors from the last pass
	Summary     bool              // also list every error above the fields
	Button      *ButtonState      // nil renders the idle label
	Help        map[string]string // per-option help text, keyed by option value
	InstanceID  string            // reuse on re-render; blank mints a new one
}

// InstanceFieldName is the posted name of the form instance token.
func InstanceFieldName() string { return fieldInstance }

// HiddenFields returns the meta values a client must post back: a CSRF
// token, the render timestamp, and the form instance token.  A blank
// instanceID mints a new one.  JSON clients fetch these instead of parsing
// the rendered form.
func HiddenFields(instanceID string) map[string]string {
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	return map[string]string{
		fieldCSRF:     csrfGenerateToken(),
		fieldRenderTS: strconv.FormatInt(time.Now().UnixMicro(), 10),
		fieldInstance: instanceID,
	}
}

// RenderForm returns the markup for fd.
func RenderForm(fd *FormDef, opts RenderOptions) (template.HTML, error) {
	var b strings.Builder

	fmt.Fprintf(&b, `<form class="site-form" id="form-%s" method="post" action="%s" novalidate>`+"\n",
		html.EscapeString(strings.ReplaceAll(fd.ID, "/", "-")), html.EscapeString(opts.Action))

	if opts.Summary || opts.Annotations.Message("") != "" {
		writeSummary(&b, fd, opts.Annotations, opts.Summary)
	}

	for i := range fd.Fields {
		if err := writeField(&b, &fd.Fields[i], opts); err != nil {
			return "", err
		}
	}

	meta := HiddenFields(opts.InstanceID)
	for _, k := range []string{fieldCSRF, fieldRenderTS, fieldInstance} {
		fmt.Fprintf(&b, `<input type="hidden" name="%s" value="%s">`+"\n", k, html.EscapeString(meta[k]))
	}

	writeButton(&b, fd, opts.Button)
	b.WriteString(`</form>`)
	return template.HTML(b.String()), nil
}

// writeSummary emits the aggregated list: form-level messages first, then
// field messages in definition order.
func writeSummary(b *strings.Builder, fd *FormDef, ann Annotations, fields bool) {
	var msgs []string
	if m := ann.Message(""); m != "" {
		msgs = append(msgs, m)
	}
	if fields {
		for _, f := range fd.Fields {
			if m := ann.Message(f.Name); m != "" {
				msgs = append(msgs, m)
			}
		}
	}
	if len(msgs) == 0 {
		return
	}
	b.WriteString(`<div class="form-errors" role="alert">` + "\n")
	for _, m := range msgs {
		b.WriteString(`<div class="error-message">` + html.EscapeString(m) + `</div>` + "\n")
	}
	b.WriteString(`</div>` + "\n")
}

// writeField emits one field, its label, and its annotation.
func writeField(b *strings.Builder, f *FieldDef, opts RenderOptions) error {
	val := f.Default
	if v, ok := opts.Prefill[f.Name]; ok {
		val = v
	}
	msg := opts.Annotations.Message(f.Name)

	id := "fld-" + html.EscapeString(f.Name)
	name := html.EscapeString(f.Name)

	if f.Type == TypeHidden {
		b.WriteString(`<input type="hidden" id="` + id + `" name="` + name + `" value="` + html.EscapeString(val) + `">` + "\n")
		return nil
	}

	b.WriteString(`<div class="form-field">` + "\n")
	b.WriteString(`<label for="` + id + `">` + html.EscapeString(f.Label) + `</label>` + "\n")

	// Shared trailing attributes.
	var attrs strings.Builder
	if f.Required {
		attrs.WriteString(` required`)
	}
	if msg != "" {
		attrs.WriteString(` aria-invalid="true" aria-describedby="err-` + name + `" class="invalid"`)
	}

	switch f.Type {
	case TypeText, TypeEmail, TypeTel, TypeNumber, TypePassword, TypeDate:
		b.WriteString(`<input id="` + id + `" name="` + name + `" type="` + f.Type + `"`)
		if f.Placeholder != "" {
			b.WriteString(` placeholder="` + html.EscapeString(f.Placeholder) + `"`)
		}
		if f.MinLength > 0 {
			b.WriteString(` minlength="` + strconv.Itoa(f.MinLength) + `"`)
		}
		if f.MaxLength > 0 {
			b.WriteString(` maxlength="` + strconv.Itoa(f.MaxLength) + `"`)
		}
		if f.Pattern != "" {
			b.WriteString(` pattern="` + html.EscapeString(f.Pattern) + `"`)
		}
		if f.Type == TypeNumber {
			b.WriteString(` step="any"`)
		}
		if val != "" && f.Type != TypePassword {
			b.WriteString(` value="` + html.EscapeString(val) + `"`)
		}
		b.WriteString(attrs.String() + `>` + "\n")

	case TypeTextarea:
		b.WriteString(`<textarea id="` + id + `" name="` + name + `"`)
		if f.MaxLength > 0 {
			b.WriteString(` maxlength="` + strconv.Itoa(f.MaxLength) + `"`)
		}
		if f.Placeholder != "" {
			b.WriteString(` placeholder="` + html.EscapeString(f.Placeholder) + `"`)
		}
		b.WriteString(attrs.String() + `>` + html.EscapeString(val) + `</textarea>` + "\n")

	case TypeSelect:
		b.WriteString(`<select id="` + id + `" name="` + name + `"` + attrs.String() + `>` + "\n")
		for _, opt := range f.Options {
			sel := ""
			if val == opt {
				sel = ` selected`
			}
			b.WriteString(`<option value="` + html.EscapeString(opt) + `"` + sel + `>` + html.EscapeString(opt) + `</option>` + "\n")
		}
		b.WriteString(`</select>` + "\n")

	case TypeCheckbox:
		checked := ""
		if val != "" && !strings.EqualFold(val, "false") {
			checked = ` checked`
		}
		b.WriteString(`<input id="` + id + `" name="` + name + `" type="checkbox"` + checked + attrs.String() + `>` + "\n")

	case TypeRadio:
		for i, opt := range f.Options {
			rid := fmt.Sprintf("%s-%d", id, i)
			checked := ""
			if val == opt {
				checked = ` checked`
			}
			b.WriteString(`<div class="radio-option">` + "\n")
			b.WriteString(`<input id="` + rid + `" name="` + name + `" type="radio" value="` + html.EscapeString(opt) + `"` + checked + attrs.String() + `>` + "\n")
			b.WriteString(`<label for="` + rid + `">` + html.EscapeString(opt) + `</label>` + "\n")
			if help := opts.Help[opt]; help != "" {
				b.WriteString(`<span class="option-help">` + html.EscapeString(help) + `</span>` + "\n")
			}
			b.WriteString(`</div>` + "\n")
		}

	default:
		return fmt.Errorf("writeField: unsupported field type %q in form field %s", f.Type, f.Name)
	}

	if msg != "" {
		b.WriteString(`<div class="field-error" id="err-` + name + `" role="alert">` + html.EscapeString(msg) + `</div>` + "\n")
	}
	b.WriteString(`</div>` + "\n")
	return nil
}

func writeButton(b *strings.Builder, fd *FormDef, st *ButtonState) {
	label, attrs := fd.SubmitLabel(), ""
	if st != nil {
		if st.Label != "" {
			label = st.Label
		}
		if st.Disabled {
			attrs += ` disabled`
		}
		if st.Busy {
			attrs += ` class="loading" aria-busy="true"`
		}
	}
	b.WriteString(`<button type="submit"` + attrs + `>` + html.EscapeString(label) + `</button>` + "\n")
}

// csrfGenerateToken falls back to an always-invalid token when the random
// source fails, so the post is rejected by CSRFGuard instead of the render
// erroring out.
func csrfGenerateToken() string {
	token, err := GenerateToken()
	if err != nil {
		return fmt.Sprintf("unavailable-%d", time.Now().UnixNano())
	}
	return token
}
