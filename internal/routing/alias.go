// internal/routing/alias.go
//
// Path aliases for legacy and friendly URLs.
//
// Context
// -------
// The site used to be a set of static pages (/donate.html, /contact.html,
// /index.html), and printed material still points at short links such as
// /give.  An AliasTable maps those paths onto the real routes before chi
// sees them.
//
// Workflow
// --------
//   1. cmd/web builds the table from http.aliases plus the built-in legacy
//      pages, and attaches the database when one is configured.
//   2. Middleware rewrites r.URL.Path on a hit; a miss passes through.
//   3. With a database, rows of route_alias are reloaded once the TTL
//      expires.  Configured aliases win over rows with the same path.
//
// Notes
// -----
// • A failed reload keeps the previous rows and logs a warning.
// • Oxford commas, two spaces after periods.

package routing

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// AliasTableDDL creates the optional table of database aliases.
const AliasTableDDL = `CREATE TABLE IF NOT EXISTS route_alias (
  alias_path  VARCHAR(255) NOT NULL PRIMARY KEY,
  target_path VARCHAR(255) NOT NULL
)`

// DefaultTTL bounds how stale database aliases may get.
const DefaultTTL = 5 * time.Minute

// Legacy maps the old static pages onto their routes.
var Legacy = map[string]string{
	"/index.html":   "/",
	"/donate.html":  "/donate",
	"/contact.html": "/contact",
}

// -----------------------------------------------------------------------------
// AliasTable
// -----------------------------------------------------------------------------

// AliasTable holds alias→target pairs.  Zero value is unusable; construct
// with NewAliasTable.
type AliasTable struct {
	mu       sync.RWMutex
	static   map[string]string
	rows     map[string]string
	loadedAt time.Time
	ttl      time.Duration
	db       *sqlx.DB
}

// NewAliasTable returns a table serving static.  db may be nil; ttl <= 0
// uses DefaultTTL.
func NewAliasTable(static map[string]string, db *sqlx.DB, ttl time.Duration) *AliasTable {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cp := make(map[string]string, len(static))
	for k, v := range static {
		cp[k] = v
	}
	return &AliasTable{static: cp, rows: map[string]string{}, db: db, ttl: ttl}
}

// Load refreshes the database aliases from route_alias.
func (t *AliasTable) Load(ctx context.Context) error {
	if t.db == nil {
		return nil
	}
	var pairs []struct {
		Alias  string `db:"alias_path"`
		Target string `db:"target_path"`
	}
	if err := t.db.SelectContext(ctx, &pairs, `SELECT alias_path, target_path FROM route_alias`); err != nil {
		return err
	}

	fresh := make(map[string]string, len(pairs))
	for _, p := range pairs {
		fresh[p.Alias] = p.Target
	}

	t.mu.Lock()
	t.rows = fresh
	t.loadedAt = time.Now()
	t.mu.Unlock()

	zap.S().Debugw("alias table load", "count", len(fresh))
	return nil
}

// Lookup returns the target of path.
func (t *AliasTable) Lookup(path string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if target, ok := t.static[path]; ok {
		return target, true
	}
	target, ok := t.rows[path]
	return target, ok
}

func (t *AliasTable) stale() bool {
	if t.db == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return time.Since(t.loadedAt) > t.ttl
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

// Middleware rewrites aliased paths before routing.
func Middleware(t *AliasTable) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if t.stale() {
				if err := t.Load(r.Context()); err != nil {
					zap.S().Warnw("alias table reload failed", "err", err)
					// Push the next attempt out by one TTL.
					t.mu.Lock()
					t.loadedAt = time.Now()
					t.mu.Unlock()
				}
			}

			if target, ok := t.Lookup(r.URL.Path); ok {
				original := r.URL.Path
				r.URL.Path = target
				r.URL.RawPath = ""
				r.RequestURI = r.URL.RequestURI()
				zap.S().Debugw("alias rewrite", "from", original, "to", target)
			}
			next.ServeHTTP(w, r)
		})
	}
}
