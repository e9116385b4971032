// internal/form/renderer_test.go
//
// Unit-tests for RenderForm markup.
//
// Run: go test ./internal/form -run Render -v

package form

import (
	"strings"
	"testing"
)

func TestRenderForm_Annotations(t *testing.T) {
	fd := mustParse(t, donateYAML)
	ann := Annotations{
		"email": {FieldName: "email", Message: "Please enter a valid email address"},
		"":      {Message: "Security token invalid."},
	}

	out, err := RenderForm(fd, RenderOptions{
		Action:      "/donate",
		Prefill:     map[string]string{"name": `Jane "JD" <Doe>`},
		Annotations: ann,
		Summary:     true,
		InstanceID:  "inst-1",
	})
	if err != nil {
		t.Fatalf("RenderForm: %v", err)
	}
	html := string(out)

	mustContain := []string{
		`action="/donate"`,
		`<div class="form-errors" role="alert">`,
		`<div class="error-message">Security token invalid.</div>`,
		`<div class="error-message">Please enter a valid email address</div>`,
		`name="email" type="email" required aria-invalid="true"`,
		`<div class="field-error" id="err-email" role="alert">Please enter a valid email address</div>`,
		`value="Jane &#34;JD&#34; &lt;Doe&gt;"`,
		`name="form_instance" value="inst-1"`,
		`name="csrf_token"`,
		`name="render_ts"`,
		`<button type="submit">Donate Now</button>`,
	}
	for _, s := range mustContain {
		if !strings.Contains(html, s) {
			t.Errorf("missing %q in:\n%s", s, html)
		}
	}
	if strings.Contains(html, `id="err-name"`) {
		t.Error("valid field rendered with an error")
	}
}

func TestRenderForm_BusyButtonAndRadioHelp(t *testing.T) {
	fd := mustParse(t, `
id: test/radio
fields:
  - name: method
    label: Payment method
    type: radio
    options: [credit-card, paypal]
    default: paypal
`)
	out, err := RenderForm(fd, RenderOptions{
		Button: &ButtonState{Label: "Processing...", Disabled: true, Busy: true},
		Help:   map[string]string{"paypal": "You will be redirected to PayPal to complete your donation."},
	})
	if err != nil {
		t.Fatalf("RenderForm: %v", err)
	}
	html := string(out)

	if !strings.Contains(html, `<button type="submit" disabled class="loading" aria-busy="true">Processing...</button>`) {
		t.Errorf("busy button missing:\n%s", html)
	}
	if !strings.Contains(html, `value="paypal" checked`) {
		t.Error("default option not checked")
	}
	if !strings.Contains(html, `<span class="option-help">You will be redirected to PayPal`) {
		t.Error("option help missing")
	}
	if !strings.Contains(html, `name="form_instance" value="`) {
		t.Error("instance token missing")
	}
}

func TestHiddenFields(t *testing.T) {
	SetSecret([]byte("0123456789abcdef0123456789abcdef"))
	m := HiddenFields("")
	if m[fieldInstance] == "" || m[fieldRenderTS] == "" {
		t.Fatalf("meta = %v", m)
	}
	if !VerifyToken(m[fieldCSRF]) {
		t.Fatal("csrf token does not verify")
	}
	if HiddenFields("inst-9")[fieldInstance] != "inst-9" {
		t.Fatal("instance id not reused")
	}
}
