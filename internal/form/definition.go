// internal/form/definition.go
//
// HotBoxHair – Forms subsystem: YAML definition loader.
//
// Context
//   Every HTML form on the site is declared in a YAML file: its identifier,
//   title, submit labels, fields, and post-submit actions.  Components embed
//   their default definitions and register them at init.  At start-up the
//   server may scan a site directory for “components/<comp>/forms/*.yaml”
//   overrides, which replace the embedded copy with the same ID.  The
//   validator, renderer, and controller all read definitions from this
//   registry, so there is one source of truth for field rules.
//
// Workflow
//   •  LoadFormDef / ParseFormDef turn YAML into a checked FormDef.
//   •  RegisterFS loads every YAML file inside an fs.FS (embedded defaults).
//   •  RegisterForms globs override directories on disk.
//   •  GetFormDef offers read-only access by ID.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------
// Data structures
// -----------------------------------------------------------------------------

// FormDef represents one form definition loaded from YAML.
//
// ID is namespaced by component, e.g. “donation/donate”.  Submit and Busy
// are the submit-button labels before and during submission.
type FormDef struct {
	ID      string      `yaml:"id"`
	Title   string      `yaml:"title"`
	Intro   string      `yaml:"intro"`  // Markdown shown above the form.
	Submit  string      `yaml:"submit"` // Button label.  Defaults to “Submit”.
	Busy    string      `yaml:"busy"`   // Label while submitting.  Defaults to “Processing...”.
	Fields  []FieldDef  `yaml:"fields"`
	Actions []ActionDef `yaml:"actions"` // Post-submit actions.  May be empty.
}

// FieldDef describes a single input control.  The server enforces the same
// rules the rendered HTML hints at.
type FieldDef struct {
	Name        string   `yaml:"name"`
	Label       string   `yaml:"label"`
	Type        string   `yaml:"type"`
	Placeholder string   `yaml:"placeholder"`
	Default     string   `yaml:"default"`
	Required    bool     `yaml:"required"`
	MinLength   int      `yaml:"minlength"` // 0 means unset.
	MaxLength   int      `yaml:"maxlength"` // 0 means unset.
	Pattern     string   `yaml:"pattern"`
	GT          *float64 `yaml:"gt"` // Exclusive lower bound for number fields.
	Options     []string `yaml:"options"`
	ErrorMsg    string   `yaml:"error"` // Replaces every failure message for this field.

	re *regexp.Regexp
}

// ActionDef configures an automated action executed after validation.
// Unknown keys are kept inline so new action kinds need no schema change.
type ActionDef struct {
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:",inline"`
}

// SubmitLabel returns the idle submit-button label.
func (fd *FormDef) SubmitLabel() string {
	if fd.Submit == "" {
		return "Submit"
	}
	return fd.Submit
}

// BusyLabel returns the label shown while a submission is in flight.
func (fd *FormDef) BusyLabel() string {
	if fd.Busy == "" {
		return "Processing..."
	}
	return fd.Busy
}

// Field returns the definition of the named field.
func (fd *FormDef) Field(name string) (*FieldDef, bool) {
	for i := range fd.Fields {
		if fd.Fields[i].Name == name {
			return &fd.Fields[i], true
		}
	}
	return nil, false
}

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*FormDef)
)

// GetFormDef returns a registered FormDef.  The boolean is false when the ID
// is unknown.
func GetFormDef(id string) (*FormDef, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fd, ok := registry[id]
	return fd, ok
}

// FormIDs lists registered IDs in sorted order.
func FormIDs() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Register inserts or replaces fd.  Callers must pass a checked definition.
func Register(fd *FormDef) {
	registryMu.Lock()
	registry[fd.ID] = fd
	registryMu.Unlock()
}

// MustRegisterFS is RegisterFS for component init functions.
func MustRegisterFS(fsys fs.FS) {
	if err := RegisterFS(fsys); err != nil {
		panic(err)
	}
}

// -----------------------------------------------------------------------------
// Loader API
// -----------------------------------------------------------------------------

// LoadFormDef parses one YAML file from disk.  It never touches the registry.
func LoadFormDef(path string) (*FormDef, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form file %s: %w", path, err)
	}
	return ParseFormDef(raw, path)
}

// ParseFormDef decodes and checks a definition.  src names the origin in
// error messages.
func ParseFormDef(raw []byte, src string) (*FormDef, error) {
	var fd FormDef
	if err := yaml.Unmarshal(raw, &fd); err != nil {
		return nil, fmt.Errorf("parse YAML %s: %w", src, err)
	}
	if err := validateFormDef(&fd, src); err != nil {
		return nil, err
	}
	return &fd, nil
}

// RegisterFS loads every “*.yaml” file found in fsys.
func RegisterFS(fsys fs.FS) error {
	return fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".yaml") {
			return nil
		}
		raw, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		fd, err := ParseFormDef(raw, path)
		if err != nil {
			return err
		}
		Register(fd)
		return nil
	})
}

// OverrideGlob selects override definitions below a base directory.
const OverrideGlob = "components/*/forms/**/*.{yaml,yml}"

// RegisterForms registers every file matching OverrideGlob under each base
// directory.  Later directories override earlier ones, and any directory
// overrides the embedded defaults.  Missing directories are skipped.
//
// Example:
//
//	err := form.RegisterForms([]string{"/var/hotbox"})
func RegisterForms(baseDirs []string) error {
	if len(baseDirs) == 0 {
		return errors.New("RegisterForms: no base directories provided")
	}

	for _, base := range baseDirs {
		if _, err := os.Stat(base); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		matches, err := doublestar.Glob(os.DirFS(base), OverrideGlob, doublestar.WithFilesOnly())
		if err != nil {
			return fmt.Errorf("RegisterForms: %s: %w", base, err)
		}
		sort.Strings(matches)
		for _, rel := range matches {
			path := filepath.Join(base, filepath.FromSlash(rel))
			fd, err := LoadFormDef(path)
			if err != nil {
				return err
			}
			Register(fd)
			zap.S().Debugw("form override loaded", "form", fd.ID, "file", path)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Structural checks
// -----------------------------------------------------------------------------

var knownActions = map[string]bool{
	"email":   true,
	"store":   true,
	"webhook": true,
}

func validateFormDef(fd *FormDef, src string) error {
	if fd.ID == "" {
		return fmt.Errorf("form definition %s: missing required 'id'", src)
	}
	if len(fd.Fields) == 0 {
		return fmt.Errorf("form definition %s: must have 'fields'", src)
	}

	seen := make(map[string]struct{}, len(fd.Fields))
	for i := range fd.Fields {
		f := &fd.Fields[i]
		if err := validateField(f, src); err != nil {
			return err
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("form %s: duplicate field name '%s'", src, f.Name)
		}
		seen[f.Name] = struct{}{}
	}

	// Unknown action types are allowed but flagged.
	for _, ac := range fd.Actions {
		if !knownActions[ac.Type] {
			zap.S().Warnw("unrecognized form action", "form", fd.ID, "action", ac.Type)
		}
	}
	return nil
}

func validateField(f *FieldDef, src string) error {
	if f.Name == "" {
		return fmt.Errorf("form %s: field missing 'name'", src)
	}
	if f.Type == "" {
		return fmt.Errorf("form %s: field '%s' missing 'type'", src, f.Name)
	}
	if f.Label == "" && f.Type != TypeHidden {
		return fmt.Errorf("form %s: field '%s' missing 'label'", src, f.Name)
	}
	if !renderable[f.Type] {
		return fmt.Errorf("form %s: field '%s' has unsupported type %q", src, f.Name, f.Type)
	}
	if (f.Type == TypeSelect || f.Type == TypeRadio) && len(f.Options) == 0 {
		return fmt.Errorf("form %s: field '%s' needs 'options'", src, f.Name)
	}
	if f.GT != nil && f.Type != TypeNumber {
		return fmt.Errorf("form %s: field '%s' uses 'gt' but is not a number", src, f.Name)
	}

	if f.Pattern != "" {
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return fmt.Errorf("form %s: field '%s' invalid regex pattern: %v", src, f.Name, err)
		}
		f.re = re
	}

	if f.MinLength < 0 || f.MaxLength < 0 {
		return fmt.Errorf("form %s: field '%s' minlength/maxlength cannot be negative", src, f.Name)
	}
	if f.MaxLength > 0 && f.MinLength > f.MaxLength {
		return fmt.Errorf("form %s: field '%s' minlength greater than maxlength", src, f.Name)
	}
	return nil
}
