// internal/view/render.go
//
// Central view engine: template lookup, override chain, func-map injection,
// and an LRU of parsed *template.Template* sets.
//
// Public helpers
// --------------
//   - Render         – write rendered HTML to an http.ResponseWriter.
//   - RenderToString – return template.HTML (e-mails, fragments).
//
// Lookup precedence (first hit wins):
//   1. <override>/<comp>/<tpl>.html       on disk, for site operators
//   2. templates/<tpl>.html               in the component's embedded FS
//
// A set is the shared layouts, the component's partials (files whose name
// starts with “_”), and the one page file.  Pages therefore each define
// their own "content" block without clashing.
//
// Concurrency
// -----------
// Parsed sets are cached in an LRU keyed by comp::name.  Concurrent misses
// for the same key share one parse through singleflight.
//
// Style
// -----
// • Oxford commas, two spaces after periods.

package view

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/hotboxhair/site/internal/cache"
	"github.com/hotboxhair/site/internal/head"
	"github.com/hotboxhair/site/internal/requestinfo"
)

//go:embed layouts/*.html
var layoutFS embed.FS

// ErrNotFound is returned when no template matches.
var ErrNotFound = errors.New("view: template not found")

// Page is the data every template receives.
type Page struct {
	Head *head.Builder
	Info *requestinfo.RequestInfo
	Data any
}

// NewPage returns a Page for r with a fresh head builder.
func NewPage(r *http.Request, title string, data any) *Page {
	h := head.New()
	h.SetTitle(title)
	var info *requestinfo.RequestInfo
	if r != nil {
		info = requestinfo.FromContext(r.Context())
	}
	return &Page{Head: h, Info: info, Data: data}
}

// Engine renders component templates.
type Engine struct {
	override string // optional on-disk override root
	noCache  bool

	mu    sync.RWMutex
	comps map[string]fs.FS
	funcs template.FuncMap

	sets  *cache.LRU[string, *template.Template]
	group singleflight.Group
}

// Options configure an Engine.
type Options struct {
	OverrideDir string // "" disables on-disk overrides
	Capacity    int    // parsed sets kept; default 256
	NoCache     bool   // reparse on every render (development)
}

// New returns an empty engine.
func New(o Options) *Engine {
	if o.Capacity < 1 {
		o.Capacity = 256
	}
	return &Engine{
		override: o.OverrideDir,
		noCache:  o.NoCache,
		comps:    make(map[string]fs.FS),
		funcs:    baseFuncMap(),
		sets:     cache.New[string, *template.Template](o.Capacity),
	}
}

// Register makes fsys the template source of comp.  fsys must contain a
// templates/ directory.
func (e *Engine) Register(comp string, fsys fs.FS) {
	e.mu.Lock()
	e.comps[comp] = fsys
	e.mu.Unlock()
	e.sets.Purge()
}

// Funcs adds template functions.  Call before the first render.
func (e *Engine) Funcs(fm template.FuncMap) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, v := range fm {
		e.funcs[k] = v
	}
}

//
// public helpers
//

// Render executes comp/name with p and streams it to w.  Output is buffered
// so a template error never leaves a half-written page.
func (e *Engine) Render(w http.ResponseWriter, comp, name string, p *Page) error {
	return e.RenderStatus(w, http.StatusOK, comp, name, p)
}

// RenderStatus is Render with an explicit status code.  Nothing is written
// when the template fails.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, comp, name string, p *Page) error {
	var buf bytes.Buffer
	if err := e.execute(&buf, comp, name, p); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// RenderToString executes comp/name and returns the HTML.
func (e *Engine) RenderToString(comp, name string, p *Page) (template.HTML, error) {
	var buf bytes.Buffer
	if err := e.execute(&buf, comp, name, p); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func (e *Engine) execute(buf *bytes.Buffer, comp, name string, p *Page) error {
	t, err := e.load(comp, name)
	if err != nil {
		return err
	}
	if p == nil {
		p = &Page{}
	}
	if p.Head == nil {
		p.Head = head.New()
	}
	return t.ExecuteTemplate(buf, execName(t, name), p)
}

//
// internal: load
//

func (e *Engine) load(comp, name string) (*template.Template, error) {
	key := comp + "::" + name

	if !e.noCache {
		if t, ok := e.sets.Get(key); ok {
			return t, nil
		}
	}

	v, err, _ := e.group.Do(key, func() (any, error) {
		t, err := e.parse(comp, name)
		if err != nil {
			return nil, err
		}
		if !e.noCache {
			e.sets.Add(key, t)
		}
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*template.Template), nil
}

// parse builds the set for comp/name from the first source that has it.
func (e *Engine) parse(comp, name string) (*template.Template, error) {
	e.mu.RLock()
	src, ok := e.comps[comp]
	funcs := make(template.FuncMap, len(e.funcs))
	for k, v := range e.funcs {
		funcs[k] = v
	}
	e.mu.RUnlock()

	var fsys fs.FS
	dir := "templates"
	if e.override != "" {
		od := filepath.Join(e.override, comp)
		if _, err := os.Stat(filepath.Join(od, name+".html")); err == nil {
			fsys, dir = os.DirFS(od), "."
		}
	}
	if fsys == nil {
		if !ok {
			return nil, fmt.Errorf("%w: component %q not registered", ErrNotFound, comp)
		}
		if _, err := fs.Stat(src, path.Join(dir, name+".html")); err != nil {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, comp, name)
		}
		fsys = src
	}

	t, err := template.New(name).Funcs(funcs).ParseFS(layoutFS, "layouts/*.html")
	if err != nil {
		return nil, err
	}
	partials, err := fs.Glob(fsys, path.Join(dir, "_*.html"))
	if err != nil {
		return nil, err
	}
	files := append(partials, path.Join(dir, name+".html"))
	if t, err = t.ParseFS(fsys, files...); err != nil {
		return nil, fmt.Errorf("parse %s/%s: %w", comp, name, err)
	}
	return t, nil
}

//
// func-map builders
//

func baseFuncMap() template.FuncMap {
	fm := template.FuncMap{
		"dict":     dict,
		"lower":    strings.ToLower,
		"markdown": markdown,
	}
	for k, v := range uaFuncMap() {
		fm[k] = v
	}
	return fm
}

//
// helpers
//

// execName picks the template name to execute.
//
// Priority:
//  1. If the set has "<name>.html" (file-based template), run that.
//  2. Otherwise, fall back to "<name>" (root template defined via define).
func execName(t *template.Template, name string) string {
	if tmpl := t.Lookup(name + ".html"); tmpl != nil {
		return name + ".html"
	}
	return name
}

// dict builds a map in templates: {{ dict "k" 1 "k2" "v" }}.
func dict(kv ...any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		m[key] = kv[i+1]
	}
	return m
}
