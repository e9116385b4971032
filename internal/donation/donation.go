// internal/donation/donation.go
//
// HotBoxHair – donation domain types.
//
// Context
//   A donation post is validated by the forms subsystem like any other
//   form.  FromValues then turns the clean values into a Submission the
//   payment processor and the repository understand: an exact amount in
//   cents, a donation type, and a payment method.
//
// Notes
//   •  Amounts are integers of cents.  Floats never touch money.
//   •  Preset amounts drive the “pills” on the donation page and the
//      ?amount= preselection.
//
//------------------------------------------------------------------------------

package donation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Posted field names of the donation form.
const (
	FieldAmount    = "amount"
	FieldEmail     = "email"
	FieldName      = "name"
	FieldType      = "donation-type"
	FieldMethod    = "payment-method"
	FieldRecurring = "recurring"
)

// ---- Type -----------------------------------------------------------------

// Type is one-time or recurring.
type Type string

const (
	OneTime   Type = "one-time"
	Recurring Type = "recurring"
)

// ParseType accepts the posted value; blank means one-time.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case "", OneTime:
		return OneTime, nil
	case Recurring:
		return Recurring, nil
	}
	return "", fmt.Errorf("unknown donation type %q", s)
}

// ---- Payment method -------------------------------------------------------

// PaymentMethod is how the donor pays.
type PaymentMethod string

const (
	CreditCard   PaymentMethod = "credit-card"
	PayPal       PaymentMethod = "paypal"
	BankTransfer PaymentMethod = "bank-transfer"
)

// Methods lists the accepted payment methods in display order.
var Methods = []PaymentMethod{CreditCard, PayPal, BankTransfer}

var methodDescriptions = map[PaymentMethod]string{
	CreditCard:   "Enter your credit card information below.",
	PayPal:       "You will be redirected to PayPal to complete your donation.",
	BankTransfer: "Bank transfer information will be provided after form submission.",
}

// Description is the help text shown next to the method's radio button.
func (m PaymentMethod) Description() string { return methodDescriptions[m] }

// Descriptions maps method values to their help text, for the renderer.
func Descriptions() map[string]string {
	out := make(map[string]string, len(methodDescriptions))
	for m, d := range methodDescriptions {
		out[string(m)] = d
	}
	return out
}

// ParsePaymentMethod accepts the posted value; blank means credit card.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	if s == "" {
		return CreditCard, nil
	}
	m := PaymentMethod(s)
	if _, ok := methodDescriptions[m]; !ok {
		return "", fmt.Errorf("unknown payment method %q", s)
	}
	return m, nil
}

// ---- Amount ---------------------------------------------------------------

// Amount is a sum of money in cents.
type Amount int64

// MaxAmount caps a single online donation.
const MaxAmount Amount = 100_000_00

// Presets are the amounts offered as one-click pills.
var Presets = []Amount{25_00, 50_00, 100_00, 250_00}

var (
	ErrAmountFormat = errors.New("amount must be a number with at most two decimals")
	ErrAmountRange  = errors.New("amount out of range")
)

// ParseAmount reads "25", "25.5", or "25.50" (an optional leading "$" is
// tolerated) into cents.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	if s == "" {
		return 0, ErrAmountFormat
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFrac && (frac == "" || len(frac) > 2) {
		return 0, ErrAmountFormat
	}
	for len(frac) < 2 {
		frac += "0"
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w < 0 {
		return 0, ErrAmountFormat
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || f < 0 {
		return 0, ErrAmountFormat
	}
	if w > int64(MaxAmount/100) {
		return 0, ErrAmountRange
	}

	a := Amount(w*100 + f)
	if a <= 0 || a > MaxAmount {
		return 0, ErrAmountRange
	}
	return a, nil
}

// Cents returns the raw integer.
func (a Amount) Cents() int64 { return int64(a) }

// String formats whole dollars without decimals ("25") and anything else
// with two ("25.50").
func (a Amount) String() string {
	if a%100 == 0 {
		return strconv.FormatInt(int64(a/100), 10)
	}
	return fmt.Sprintf("%d.%02d", a/100, a%100)
}

// ---- Submission -----------------------------------------------------------

// Submission is a validated donation ready for the processor.
type Submission struct {
	Type      Type
	Amount    Amount
	Method    PaymentMethod
	Recurring bool
	Email     string
	Name      string
	Fields    map[string]any // every clean value, as posted
}

// FromValues builds a Submission from the clean values of a validation
// pass.  The error text is shown to the donor.
func FromValues(values map[string]any) (*Submission, error) {
	str := func(k string) string { s, _ := values[k].(string); return s }

	amt, err := ParseAmount(str(FieldAmount))
	switch {
	case errors.Is(err, ErrAmountRange):
		return nil, fmt.Errorf("Please enter an amount between $0.01 and $%s.", MaxAmount)
	case err != nil:
		return nil, errors.New("Please enter the amount in dollars and cents.")
	}

	typ, err := ParseType(str(FieldType))
	if err != nil {
		return nil, errors.New("Please choose a one-time or recurring donation.")
	}
	method, err := ParsePaymentMethod(str(FieldMethod))
	if err != nil {
		return nil, errors.New("Please choose a payment method.")
	}
	recurring, _ := values[FieldRecurring].(bool)

	return &Submission{
		Type:      typ,
		Amount:    amt,
		Method:    method,
		Recurring: recurring || typ == Recurring,
		Email:     str(FieldEmail),
		Name:      str(FieldName),
		Fields:    values,
	}, nil
}
