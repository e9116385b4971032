// internal/config/loader.go
//
// Configuration loader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Optional `.env` file at `<root>/conf/.env`.
  2. `conf/global.yaml`.
  3. Environment variables prefixed `HOTBOX_`, where `__` maps to “.”
     (e.g., `HOTBOX_HTTP__LISTEN_ADDR → http.listen_addr`).

After merging, every string value of the form `vault:<mount>/<path>#<key>`
is replaced by the secret it names.  The tree is then unmarshalled into
typed structs, defaulted, validated, enriched with the runtime root path,
and cached in an `atomic.Pointer` for lock-free reads.

Logging
-------
Each stage logs through the global sugared logger (`zap.S()`), since Load
runs before the file logger exists.  Failures log at error level with the
stage name; success ends with one "config loaded" line.

Notes
-----
  • `rootDir()` climbs the cwd tree until it finds `conf/global.yaml`;
    this lets `go run ./cmd/web` work from any sub-directory.
  • A `vault:` reference without a resolver is a load error, never a
    silently empty secret.
*/
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HOTBOX_"

// VaultPrefix marks a value to be fetched from Vault.
const VaultPrefix = "vault:"

// SecretResolver turns a `vault:` reference into its secret.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

var current atomic.Pointer[Config]

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves HOTBOX_ROOT or climbs directories until conf/global.yaml
// is found.  Falls back to the executable heuristic for production layout.
func rootDir() string {
	if r := os.Getenv(EnvPrefix + "ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

// Root returns the directory Load would read from.
func Root() string { return rootDir() }

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads configuration from the discovered root.  sr may be nil when no
// value references Vault.
func Load(ctx context.Context, sr SecretResolver) (*Config, error) {
	return LoadFrom(ctx, rootDir(), sr)
}

// LoadFrom reads .env, YAML, env overrides, and secrets under root,
// validates, and caches the result.
func LoadFrom(ctx context.Context, root string, sr SecretResolver) (*Config, error) {
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	// HOTBOX_HTTP__LISTEN_ADDR → http.listen_addr
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, EnvPrefix), "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	if err := resolveSecrets(ctx, k, sr); err != nil {
		zap.S().Errorw("config secret resolution failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	applyDefaults(&cfg)
	cfg.Paths.Root = root
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"force_https", cfg.HTTP.ForceHTTPS,
		"processor", cfg.Donation.Processor,
		"database", cfg.Database.DSN != "",
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

// resolveSecrets swaps every `vault:` string for its secret.
func resolveSecrets(ctx context.Context, k *koanf.Koanf, sr SecretResolver) error {
	var refs []string
	for key, val := range k.All() {
		if s, ok := val.(string); ok && strings.HasPrefix(s, VaultPrefix) {
			refs = append(refs, key)
		}
	}
	if len(refs) == 0 {
		return nil
	}
	if sr == nil {
		return fmt.Errorf("config: %s references Vault but no resolver is configured", strings.Join(refs, ", "))
	}
	sort.Strings(refs)

	var errs []error
	for _, key := range refs {
		secret, err := sr.Resolve(ctx, k.String(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("config: resolve %s: %w", key, err))
			continue
		}
		if err := k.Set(key, secret); err != nil {
			errs = append(errs, err)
			continue
		}
		zap.S().Debugw("config secret resolved", "key", key)
	}
	return errors.Join(errs...)
}

// expandDSN substitutes password into a DSN template.
func expandDSN(dsn, password string) string {
	if dsn == "" || !strings.Contains(dsn, "%s") {
		return dsn
	}
	return fmt.Sprintf(dsn, password)
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func Get() *Config { return current.Load() }

// Reload re-reads the discovered root.
func Reload(ctx context.Context, sr SecretResolver) error {
	_, err := Load(ctx, sr)
	return err
}
