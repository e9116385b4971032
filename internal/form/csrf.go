// internal/form/csrf.go
//
// HotBoxHair – Forms subsystem: stateless CSRF tokens.
//
// Context
//   Every rendered form carries a hidden `csrf_token`.  The token is
//
//      base64url( nonce | unixMicro | HMAC_SHA256(secret, nonce+unixMicro) )
//
//   so the server can check authenticity and age without session storage,
//   which keeps multiple instances behind a load balancer interchangeable.
//
// Workflow
//   •  SetSecret installs the configured key (config `forms.csrf_key`, which
//      may be a Vault reference).  Without it the HOTBOX_CSRF_KEY variable is
//      tried, then a random per-process key.
//   •  GenerateToken is called once per render; VerifyToken by CSRFGuard.
//
//------------------------------------------------------------------------------

package form

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	nonceBytes   = 16
	tokenBytes   = nonceBytes + 8 + sha256.Size
	tokenMaxAge  = 2 * time.Hour
	secretEnvKey = "HOTBOX_CSRF_KEY"
	minSecretLen = 32
)

var (
	secretMu  sync.RWMutex
	secretKey []byte
)

// SetSecret installs the HMAC key.  Keys shorter than 32 bytes are refused
// and the call reports false.
func SetSecret(key []byte) bool {
	if len(key) < minSecretLen {
		return false
	}
	secretMu.Lock()
	secretKey = append([]byte(nil), key...)
	secretMu.Unlock()
	return true
}

// GenerateToken creates a new CSRF token.
func GenerateToken() (string, error) {
	sec := fetchSecret()

	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf[:nonceBytes]); err != nil {
		return "", err
	}
	binary.BigEndian.PutUint64(buf[nonceBytes:nonceBytes+8], uint64(time.Now().UnixMicro()))

	mac := hmac.New(sha256.New, sec)
	mac.Write(buf[:nonceBytes+8])
	copy(buf[nonceBytes+8:], mac.Sum(nil))

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// VerifyToken reports whether tok passes the HMAC and age checks.
func VerifyToken(tok string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil || len(raw) != tokenBytes {
		return false
	}

	issued := time.UnixMicro(int64(binary.BigEndian.Uint64(raw[nonceBytes : nonceBytes+8])))
	if time.Since(issued) > tokenMaxAge || time.Until(issued) > time.Minute {
		return false // expired, or clock skew beyond a minute
	}

	mac := hmac.New(sha256.New, fetchSecret())
	mac.Write(raw[:nonceBytes+8])
	return hmac.Equal(raw[nonceBytes+8:], mac.Sum(nil))
}

// fetchSecret returns the installed key, falling back to the environment
// and finally to an ephemeral random key.
func fetchSecret() []byte {
	secretMu.RLock()
	sec := secretKey
	secretMu.RUnlock()
	if sec != nil {
		return sec
	}

	secretMu.Lock()
	defer secretMu.Unlock()
	if secretKey != nil {
		return secretKey
	}
	if env := os.Getenv(secretEnvKey); env != "" {
		if b, err := base64.RawURLEncoding.DecodeString(env); err == nil && len(b) >= minSecretLen {
			secretKey = b
			return secretKey
		}
	}
	secretKey = make([]byte, minSecretLen)
	_, _ = rand.Read(secretKey)
	zap.S().Warnw("csrf key not configured, using random key", "env", secretEnvKey)
	return secretKey
}
