// internal/component/registry.go
//
// Site components: donate, contact, and track.
//
// Context
// -------
// A component owns one slice of the site.  It brings its own routes, forms,
// templates, and tables, and reaches the rest of the process only through
// Deps.  Packages under components/ call Register from init(); cmd/web
// blank-imports them.
//
// Workflow
// --------
//   1. serve applies Migrations() once the database is open.
//   2. Init(Deps) runs for every component, in name order.
//   3. Routes() are merged onto the root router, so two components may both
//      claim paths under "/".
//
// Notes
// -----
// • Registering a name twice keeps the later component.

package component

import (
	"cmp"
	"slices"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Component is one self-contained part of the site.  Migrations may be nil.
type Component interface {
	Name() string
	Init(Deps) error
	Routes() chi.Router
	Migrations() []string
}

var (
	mu   sync.RWMutex
	byID = make(map[string]Component)
)

// Register adds c to the process-wide set.
func Register(c Component) {
	mu.Lock()
	defer mu.Unlock()
	byID[c.Name()] = c
}

// All returns the registered components ordered by name.
func All() []Component {
	mu.RLock()
	list := make([]Component, 0, len(byID))
	for _, c := range byID {
		list = append(list, c)
	}
	mu.RUnlock()

	slices.SortFunc(list, func(a, b Component) int { return cmp.Compare(a.Name(), b.Name()) })
	return list
}

// Migrations concatenates every component's DDL in name order.
func Migrations() []string {
	var ddl []string
	for _, c := range All() {
		ddl = append(ddl, c.Migrations()...)
	}
	return ddl
}
