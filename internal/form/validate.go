// internal/form/validate.go
//
// HotBoxHair – Forms subsystem: server-side form validation.
//
// Context
//   When the browser posts a form, Validate walks every field of the
//   definition exactly once, validates it, and hands the result to an
//   Annotator so the page can show (or clear) the message next to the input.
//   No field is skipped after an earlier failure; the user sees every problem
//   in one round trip.
//
// Workflow
//   •  FieldDef.Validate runs ValidateField (field.go) and then the
//      definition-driven constraints: length, pattern, number bounds, and
//      option membership.  A definition-level `error` message replaces the
//      message of any failure.
//   •  Validate aggregates the results into a Report and collects the clean
//      values of valid fields.
//   •  Guards (CSRF, timing) produce form-level results with an empty
//      FieldName.  They run beside, not instead of, field validation.
//
//------------------------------------------------------------------------------

package form

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// -----------------------------------------------------------------------------
// Annotations
// -----------------------------------------------------------------------------

// Annotator receives one result per field per validation pass.  A valid
// result clears any earlier annotation for that field.
type Annotator interface {
	Annotate(r ValidationResult)
}

// AnnotatorFunc adapts a function to Annotator.
type AnnotatorFunc func(ValidationResult)

// Annotate implements Annotator.
func (f AnnotatorFunc) Annotate(r ValidationResult) { f(r) }

// Annotations is the field-name keyed set the renderer reads.  Form-level
// messages are stored under the empty key.
type Annotations map[string]ValidationResult

// Annotate implements Annotator.
func (a Annotations) Annotate(r ValidationResult) {
	if r.Valid {
		delete(a, r.FieldName)
		return
	}
	a[r.FieldName] = r
}

// Message returns the error for name, or "" when the field is clean.
func (a Annotations) Message(name string) string {
	if a == nil {
		return ""
	}
	return a[name].Message
}

// -----------------------------------------------------------------------------
// Report
// -----------------------------------------------------------------------------

// Report is the aggregate of one validation pass.
type Report struct {
	Results []ValidationResult
	Values  map[string]any // clean values of valid, non-empty fields
}

// Valid reports whether every result passed.
func (r Report) Valid() bool {
	for _, res := range r.Results {
		if !res.Valid {
			return false
		}
	}
	return true
}

// Errors returns only the failed results, in visiting order.
func (r Report) Errors() []ValidationResult {
	var out []ValidationResult
	for _, res := range r.Results {
		if !res.Valid {
			out = append(out, res)
		}
	}
	return out
}

// Messages returns the failure messages, in visiting order.
func (r Report) Messages() []string {
	var out []string
	for _, res := range r.Errors() {
		out = append(out, res.Message)
	}
	return out
}

// Result returns the result recorded for name.
func (r Report) Result(name string) (ValidationResult, bool) {
	for _, res := range r.Results {
		if res.FieldName == name {
			return res, true
		}
	}
	return ValidationResult{}, false
}

// validationError wraps a failed Report so handlers can tell user errors from
// system failures via errors.As / IsValidationError.
type validationError struct{ Results []ValidationResult }

func (ve validationError) Error() string { return "form validation failed" }

// -----------------------------------------------------------------------------
// Public API
// -----------------------------------------------------------------------------

// Validate checks posted against every field of fd, annotating each one.
// ann may be nil.
func Validate(fd *FormDef, posted url.Values, ann Annotator) Report {
	rep := Report{
		Results: make([]ValidationResult, 0, len(fd.Fields)),
		Values:  make(map[string]any, len(fd.Fields)),
	}

	for i := range fd.Fields {
		f := &fd.Fields[i]
		raw := posted.Get(f.Name)

		res := f.Validate(raw)
		rep.Results = append(rep.Results, res)
		if ann != nil {
			ann.Annotate(res)
		}
		if res.Valid {
			if v, ok := f.clean(raw); ok {
				rep.Values[f.Name] = v
			}
		}
	}
	return rep
}

// Validate checks one raw value against the field definition.
func (f *FieldDef) Validate(raw string) ValidationResult {
	res := ValidateField(Field{Name: f.Name, Value: raw, Type: f.Type, Required: f.Required})
	if res.Valid {
		val := strings.TrimSpace(raw)
		if val != "" {
			if msg := f.constraints(val); msg != "" {
				res = invalid(f.Name, msg)
			}
		}
	}
	if !res.Valid && f.ErrorMsg != "" {
		res.Message = f.ErrorMsg
	}
	return res
}

// constraints applies the rules a definition may add on top of the base
// field rules.  It returns "" when val passes.
func (f *FieldDef) constraints(val string) string {
	if msg := lengthCheck(f, val); msg != "" {
		return msg
	}
	if f.Pattern != "" && !f.pattern().MatchString(val) {
		return "Input does not match required format."
	}

	switch f.Type {
	case TypeNumber:
		n, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return "Please enter a number."
		}
		if f.GT != nil && n <= *f.GT {
			return fmt.Sprintf("Must be greater than %s.", strconv.FormatFloat(*f.GT, 'f', -1, 64))
		}
	case TypeDate:
		if _, err := time.Parse("2006-01-02", val); err != nil {
			return "Please enter a valid date."
		}
	case TypeSelect, TypeRadio:
		if !optionAllowed(f.Options, val) {
			return "Please choose one of the listed options."
		}
	}
	return ""
}

// clean converts a validated raw value to what business logic consumes.
// Empty optional values are dropped.
func (f *FieldDef) clean(raw string) (any, bool) {
	if f.Type == TypeCheckbox {
		return raw != "", true
	}
	val := strings.TrimSpace(raw)
	if val == "" {
		return nil, false
	}
	if f.Type == TypeTel {
		return NormalizePhone(val), true
	}
	return val, true
}

func (f *FieldDef) pattern() *regexp.Regexp {
	if f.re != nil {
		return f.re
	}
	return regexp.MustCompile(f.Pattern) // definitions built in code skip the load-time compile
}

// lengthCheck validates minlength / maxlength in runes.
func lengthCheck(f *FieldDef, s string) string {
	n := utf8.RuneCountInString(s)
	if f.MinLength > 0 && n < f.MinLength {
		return fmt.Sprintf("Must be at least %d characters.", f.MinLength)
	}
	if f.MaxLength > 0 && n > f.MaxLength {
		return fmt.Sprintf("Must be at most %d characters.", f.MaxLength)
	}
	return ""
}

func optionAllowed(opts []string, v string) bool {
	for _, o := range opts {
		if o == v {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Form-level guards
// -----------------------------------------------------------------------------

// Guard inspects the raw post for form-level problems.  It returns a
// user-visible message, or "" when the post is acceptable.
type Guard func(posted url.Values) string

// CSRFGuard rejects posts without a valid csrf_token.
func CSRFGuard() Guard {
	return func(posted url.Values) string {
		if tok := posted.Get(fieldCSRF); tok == "" || !VerifyToken(tok) {
			return "Security token invalid.  Please refresh and try again."
		}
		return ""
	}
}

// TimingGuard rejects posts submitted faster than min after render (bots) or
// later than max (stale pages).  A zero bound disables that side.
func TimingGuard(min, max time.Duration) Guard {
	return func(posted url.Values) string {
		tsRaw := posted.Get(fieldRenderTS)
		if tsRaw == "" {
			return "Timestamp missing.  Please reload the page."
		}
		ts, err := strconv.ParseInt(tsRaw, 10, 64)
		if err != nil {
			return "Bad timestamp.  Please retry."
		}
		delta := time.Since(time.UnixMicro(ts))
		switch {
		case min > 0 && delta < min:
			return "Form submitted too quickly.  Please enter the fields manually."
		case max > 0 && delta > max:
			return "Form expired.  Please reload and submit again."
		default:
			return ""
		}
	}
}
