// internal/form/field.go
//
// HotBoxHair – Forms subsystem: single-field validation.
//
// Context
//   ValidateField is the smallest unit of the pipeline.  It looks at one
//   posted value together with its declared type and required flag, and
//   decides valid or invalid with a human-readable message.  The rules run in
//   a fixed order and the first failure wins:
//
//     1.  required and blank after trimming
//     2.  email that does not look like local@domain.tld
//     3.  tel that, once whitespace (any Unicode space, NBSP included),
//         hyphens, and parentheses are stripped, is not
//         an optional "+" followed by up to sixteen digits without a leading 0
//
//   Anything else is valid.  FieldDef.Validate (validate.go) layers the
//   definition-driven constraints on top of these rules.
//
//------------------------------------------------------------------------------

package form

import (
	"regexp"
	"strings"
	"unicode"
)

// Field types understood by the validator and renderer.
const (
	TypeText     = "text"
	TypeEmail    = "email"
	TypeTel      = "tel"
	TypeNumber   = "number"
	TypePassword = "password"
	TypeDate     = "date"
	TypeTextarea = "textarea"
	TypeSelect   = "select"
	TypeRadio    = "radio"
	TypeCheckbox = "checkbox"
	TypeHidden   = "hidden"
)

// Default user-facing messages.
const (
	MsgRequired = "This field is required"
	MsgEmail    = "Please enter a valid email address"
	MsgPhone    = "Please enter a valid phone number"
)

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^[+]?[1-9][0-9]{0,15}$`)
)

// Field is one posted input together with the constraints that apply to it.
// It only lives for the duration of a validation pass.
type Field struct {
	Name     string
	Value    string
	Type     string
	Required bool
}

// ValidationResult is the outcome for one field.  Message is empty when
// Valid is true.  Form-level problems (CSRF, timing) carry an empty
// FieldName.
type ValidationResult struct {
	FieldName string `json:"field"`
	Valid     bool   `json:"valid"`
	Message   string `json:"message,omitempty"`
}

// ValidateField applies the required, email, and tel rules to f.
func ValidateField(f Field) ValidationResult {
	val := strings.TrimSpace(f.Value)

	switch {
	case f.Required && val == "":
		return invalid(f.Name, MsgRequired)
	case f.Type == TypeEmail && val != "" && !IsEmail(val):
		return invalid(f.Name, MsgEmail)
	case f.Type == TypeTel && val != "" && !IsPhone(val):
		return invalid(f.Name, MsgPhone)
	}
	return ValidationResult{FieldName: f.Name, Valid: true}
}

// IsEmail reports whether s has the local@domain.tld shape.
func IsEmail(s string) bool { return emailRe.MatchString(s) }

// IsPhone strips formatting characters and checks the remaining digits.
func IsPhone(s string) bool { return phoneRe.MatchString(NormalizePhone(s)) }

// NormalizePhone removes whitespace, hyphens, and parentheses, so
// "(555) 123-4567" becomes "5551234567".
func NormalizePhone(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' || r == '(' || r == ')' {
			return -1
		}
		return r
	}, s)
}

func invalid(name, msg string) ValidationResult {
	return ValidationResult{FieldName: name, Valid: false, Message: msg}
}
