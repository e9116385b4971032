// internal/vault/vault_test.go
//
// Unit-tests for reference parsing and KV-v2 reads against a fake Vault
// served by httptest.
//
// Run: go test ./internal/vault -v

package vault

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseRef(t *testing.T) {
	path, key, err := ParseRef("vault:secret/hotbox/db#password")
	if err != nil || path != "secret/hotbox/db" || key != "password" {
		t.Fatalf("ParseRef = %q, %q, %v", path, key, err)
	}

	for _, bad := range []string{"secret/hotbox/db#password", "vault:secret/hotbox/db", "vault:secret#password", "vault:secret/db#"} {
		if _, _, err := ParseRef(bad); !errors.Is(err, ErrBadRef) {
			t.Errorf("ParseRef(%q) err = %v, want ErrBadRef", bad, err)
		}
	}
}

func TestSplitMount(t *testing.T) {
	m, rel := splitMount("secret/hotbox/db")
	if m != "secret" || rel != "hotbox/db" {
		t.Fatalf("splitMount = %q, %q", m, rel)
	}
}

const kvBody = `{
  "data": {
    "data": {"password": "s3cret", "port": 3306},
    "metadata": {"created_time": "2025-01-01T00:00:00Z", "deletion_time": "", "destroyed": false, "version": 1}
  }
}`

func TestResolve_FakeVault(t *testing.T) {
	var reads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/secret/data/hotbox/db" {
			http.NotFound(w, r)
			return
		}
		reads.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(kvBody))
	}))
	defer srv.Close()

	t.Setenv("VAULT_ADDR", srv.URL)
	t.Setenv("VAULT_TOKEN", "test-token")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := New(ctx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := c.Resolve(ctx, "vault:secret/hotbox/db#password")
	if err != nil || got != "s3cret" {
		t.Fatalf("Resolve = %q, %v", got, err)
	}
	if _, err := c.Resolve(ctx, "vault:secret/hotbox/db#password"); err != nil {
		t.Fatal(err)
	}
	if n := reads.Load(); n != 1 {
		t.Fatalf("vault read %d times, want 1 (cached)", n)
	}

	if _, err := c.GetKV(ctx, "secret/hotbox/db", "missing", 0); err == nil {
		t.Fatal("expected missing key error")
	}
	if _, err := c.GetKV(ctx, "secret/hotbox/db", "port", time.Minute); err == nil {
		t.Fatal("expected non-string error")
	}
}
