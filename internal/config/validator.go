// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `Load` calls `validateStruct` immediately after it unmarshals the merged
// Koanf tree and applies defaults.  Any error aborts startup, so the binary
// never runs with partial or malformed configuration.
//
// Field tags cover the simple rules.  Rules spanning several fields are
// registered as struct-level validations below:
//
//   • donation.processor=webhook needs webhook_url (absolute URL) and
//     webhook_secret.
//   • database.dsn may carry at most one `%s` verb.
//   • mail.from is required once mail.smtp_addr is set.

package config

import (
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

//
// validator instance (package-level singleton)
//

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterStructValidation(donationRules, Donation{})
	val.RegisterStructValidation(databaseRules, Database{})
	val.RegisterStructValidation(mailRules, Mail{})
	return val
}

//
// struct-level rules
//

func donationRules(sl validator.StructLevel) {
	d := sl.Current().Interface().(Donation)
	if d.Processor != "webhook" {
		return
	}
	if u, err := url.Parse(d.WebhookURL); err != nil || u.Scheme == "" || u.Host == "" {
		sl.ReportError(d.WebhookURL, "WebhookURL", "webhook_url", "webhook_url", "")
	}
	if d.WebhookSecret == "" {
		sl.ReportError(d.WebhookSecret, "WebhookSecret", "webhook_secret", "required_with_webhook", "")
	}
}

func databaseRules(sl validator.StructLevel) {
	d := sl.Current().Interface().(Database)
	if strings.Count(d.DSN, "%s") > 1 {
		sl.ReportError(d.DSN, "DSN", "dsn", "single_verb", "")
	}
}

func mailRules(sl validator.StructLevel) {
	m := sl.Current().Interface().(Mail)
	if m.SMTPAddr != "" && m.From == "" {
		sl.ReportError(m.From, "From", "from", "required_with_smtp", "")
	}
}

//
// public API
//

// validateStruct returns the validation errors, or nil on success.
func validateStruct(c *Config) error {
	return v.Struct(c)
}
