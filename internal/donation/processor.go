// internal/donation/processor.go
//
// HotBoxHair – payment processors.
//
// Context
//   The Service charges a donation through a Processor.  Two exist:
//
//     •  Simulated waits a fixed delay and approves everything.  This is how
//        the site has always behaved and is the default in development.
//     •  Webhook posts an HMAC-signed JSON charge request to a payment
//        gateway bridge and maps its answer onto ErrDeclined / ErrGateway.
//
// Error taxonomy
//   ErrDeclined   the gateway refused the payment (HTTP 402).  The donor
//                 can fix it (another card, another method).
//   ErrGateway    anything else: transport failure, timeout, or an
//                 unexpected status.  The donor can only retry later.
//
//   Charges are never retried automatically.  The idempotency key comes
//   from the form instance token, so re-posting the same page after a
//   timeout reaches the gateway with the same key and cannot double-charge.
//
//------------------------------------------------------------------------------

package donation

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
)

var (
	ErrDeclined = errors.New("payment declined")
	ErrGateway  = errors.New("payment gateway unavailable")
)

// Charge is what a processor is asked to collect.
type Charge struct {
	Reference string        `json:"reference"` // donation ID
	IdemKey   string        `json:"idempotency_key"`
	Amount    int64         `json:"amount_cents"`
	Currency  string        `json:"currency"`
	Method    PaymentMethod `json:"method"`
	Recurring bool          `json:"recurring"`
	Email     string        `json:"email"`
	Name      string        `json:"name"`
}

// Receipt is the processor's confirmation.
type Receipt struct {
	GatewayRef string `json:"id"`
	Status     string `json:"status"`
}

// Processor collects payments.
type Processor interface {
	Charge(ctx context.Context, c Charge) (Receipt, error)
}

// ---- Simulated ------------------------------------------------------------

// Simulated approves every charge after Delay.  Fail, when set, is returned
// instead, which lets tests and staging exercise the failure path.
type Simulated struct {
	Delay time.Duration
	Fail  error
}

// Charge implements Processor.
func (s Simulated) Charge(ctx context.Context, _ Charge) (Receipt, error) {
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return Receipt{}, fmt.Errorf("%w: %v", ErrGateway, ctx.Err())
		}
	}
	if s.Fail != nil {
		return Receipt{}, s.Fail
	}
	return Receipt{GatewayRef: "sim_" + uuid.NewString(), Status: "succeeded"}, nil
}

// ---- Webhook --------------------------------------------------------------

// Webhook charges through an HTTP gateway bridge.
//
// Request:  POST URL, body = Charge JSON,
//
//	X-Signature: hex(HMAC-SHA256(Secret, body))
//	Idempotency-Key: Charge.IdemKey, or Charge.Reference when blank
//
// Response: 2xx with Receipt JSON, 402 with {"error": "..."} on decline.
type Webhook struct {
	URL    string
	Secret []byte
	Client *http.Client
}

// NewWebhook returns a processor with a pooled client and the given
// per-request timeout.
func NewWebhook(url string, secret []byte, timeout time.Duration) *Webhook {
	c := cleanhttp.DefaultPooledClient()
	c.Timeout = timeout
	return &Webhook{URL: url, Secret: secret, Client: c}
}

// Charge implements Processor.
func (w *Webhook) Charge(ctx context.Context, c Charge) (Receipt, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return Receipt{}, fmt.Errorf("encode charge: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	req.Header.Set("Content-Type", "application/json")
	key := c.IdemKey
	if key == "" {
		key = c.Reference
	}
	req.Header.Set("Idempotency-Key", key)
	req.Header.Set("X-Signature", Sign(w.Secret, body))

	client := w.Client
	if client == nil {
		client = cleanhttp.DefaultClient()
	}
	resp, err := client.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusPaymentRequired:
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &e)
		if e.Error == "" {
			return Receipt{}, ErrDeclined
		}
		return Receipt{}, fmt.Errorf("%w: %s", ErrDeclined, e.Error)

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Receipt{}, fmt.Errorf("%w: status %d", ErrGateway, resp.StatusCode)
	}

	var rc Receipt
	if err := json.Unmarshal(raw, &rc); err != nil {
		return Receipt{}, fmt.Errorf("%w: bad receipt: %v", ErrGateway, err)
	}
	return rc, nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// IdempotencyKey derives the gateway key for one charge of one rendered
// form.  Posts of the same instance with the same amount, currency, method,
// and recurrence share a key; changing any of them starts a new charge.
// Without an instance token the donation ID is used.
func IdempotencyKey(instance, reference string, c Charge) string {
	if instance == "" {
		return reference
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s|%s|%t", instance, c.Amount, c.Currency, c.Method, c.Recurring)))
	return hex.EncodeToString(sum[:])
}
