// internal/vault/vault.go
//
// Secrets from HashiCorp Vault.
//
// Context
// -------
// Production keeps the database password, the SMTP password, the payment
// webhook secret, and the analytics key in a KV-v2 mount.  Config values of
// the form
//
//	vault:<mount>/<path>#<key>      e.g. vault:secret/hotbox/db#password
//
// are replaced at load time through Client.Resolve, which satisfies
// config.SecretResolver.
//
// Workflow
// --------
//   1. cmd/web calls New when VAULT_ADDR is set.  VAULT_TOKEN, or
//      ~/.vault-token, authenticates.
//   2. config.Load hands every vault: string to Resolve.
//   3. A goroutine keeps the token renewed until the context ends.
//
// Notes
// -----
// • Whole secrets are cached, so several keys of one secret cost one read.
// • Concurrent reads of the same secret share a single request.

package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RefPrefix starts every reference accepted by Resolve.
const RefPrefix = "vault:"

// ResolveTTL is how long Resolve caches a secret.
const ResolveTTL = 5 * time.Minute

// ErrBadRef is returned for references Resolve cannot parse.
var ErrBadRef = errors.New("vault: malformed reference")

// Enabled reports whether the environment points at a Vault server.
func Enabled() bool { return os.Getenv("VAULT_ADDR") != "" }

// Client reads KV-v2 secrets.  Safe for concurrent use.
type Client struct {
	api *vault.Client
	log *zap.SugaredLogger

	group singleflight.Group

	mu      sync.RWMutex
	secrets map[string]entry // secret path → data
}

type entry struct {
	data    map[string]any
	expires time.Time
}

// New builds a client from the VAULT_* environment and starts token
// renewal, which stops with ctx.
func New(ctx context.Context) (*Client, error) {
	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault: read environment: %w", err)
	}
	api, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault: new client: %w", err)
	}
	if tok := os.Getenv("VAULT_TOKEN"); tok != "" {
		api.SetToken(tok)
	}

	c := &Client{
		api:     api,
		log:     zap.S().Named("vault"),
		secrets: make(map[string]entry),
	}
	go c.keepRenewed(ctx)
	return c, nil
}

// Resolve returns the value a vault: reference names.
func (c *Client) Resolve(ctx context.Context, ref string) (string, error) {
	path, key, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	return c.GetKV(ctx, path, key, ResolveTTL)
}

// ParseRef splits a reference into its secret path and key.
func ParseRef(ref string) (path, key string, err error) {
	rest, ok := strings.CutPrefix(ref, RefPrefix)
	if !ok {
		return "", "", fmt.Errorf("%w: %q lacks the %q prefix", ErrBadRef, ref, RefPrefix)
	}
	path, key, ok = strings.Cut(rest, "#")
	if !ok || key == "" || !strings.Contains(path, "/") {
		return "", "", fmt.Errorf("%w: %q, want vault:<mount>/<path>#<key>", ErrBadRef, ref)
	}
	return path, key, nil
}

// GetKV returns one string key of a KV-v2 secret.  ttl > 0 caches the
// secret for that long; ttl <= 0 always reads through.
func (c *Client) GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error) {
	if secretPath == "" || key == "" {
		return "", errors.New("vault: secret path and key must be non-empty")
	}

	data, err := c.secret(ctx, secretPath, ttl)
	if err != nil {
		return "", err
	}
	raw, ok := data[key]
	if !ok {
		return "", fmt.Errorf("vault: key %q not found in %s", key, secretPath)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("vault: %s#%s is %T, not a string", secretPath, key, raw)
	}
	return s, nil
}

func (c *Client) secret(ctx context.Context, path string, ttl time.Duration) (map[string]any, error) {
	if ttl > 0 {
		c.mu.RLock()
		e, ok := c.secrets[path]
		c.mu.RUnlock()
		if ok && time.Now().Before(e.expires) {
			return e.data, nil
		}
	}

	v, err, _ := c.group.Do(path, func() (any, error) {
		mount, rel := splitMount(path)
		sec, err := c.api.KVv2(mount).Get(ctx, rel)
		if err != nil {
			return nil, fmt.Errorf("vault: read %s: %w", path, err)
		}
		return sec.Data, nil
	})
	if err != nil {
		return nil, err
	}
	data := v.(map[string]any)

	if ttl > 0 {
		c.mu.Lock()
		c.secrets[path] = entry{data: data, expires: time.Now().Add(ttl)}
		c.mu.Unlock()
	}
	return data, nil
}

// keepRenewed renews the client token for as long as ctx lives.  A token
// that cannot be renewed is re-checked hourly.
func (c *Client) keepRenewed(ctx context.Context) {
	for ctx.Err() == nil {
		sec, err := c.api.Auth().Token().RenewSelfWithContext(ctx, 0)
		switch {
		case err != nil:
			c.log.Warnw("token renewal failed", "err", err)
			sleep(ctx, 30*time.Second)
		case sec == nil || sec.Auth == nil || !sec.Auth.Renewable:
			c.log.Infow("token not renewable", "recheck", time.Hour)
			sleep(ctx, time.Hour)
		default:
			c.watch(ctx, sec)
		}
	}
}

func (c *Client) watch(ctx context.Context, sec *vault.Secret) {
	w, err := c.api.NewLifetimeWatcher(&vault.LifetimeWatcherInput{Secret: sec})
	if err != nil {
		c.log.Warnw("lifetime watcher", "err", err)
		sleep(ctx, 30*time.Second)
		return
	}
	go w.Start()
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-w.DoneCh():
			if err != nil {
				c.log.Warnw("token watcher stopped", "err", err)
			}
			sleep(ctx, 15*time.Second)
			return
		case r := <-w.RenewCh():
			if r != nil && r.Secret != nil && r.Secret.Auth != nil {
				c.log.Debugw("token renewed", "ttl_seconds", r.Secret.Auth.LeaseDuration)
			}
		}
	}
}

func splitMount(p string) (mount, rel string) {
	mount, rel, _ = strings.Cut(p, "/")
	return mount, rel
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
