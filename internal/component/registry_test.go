// internal/component/registry_test.go
//
// Run: go test ./internal/component -v

package component

import (
	"reflect"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hotboxhair/site/internal/config"
)

type stub struct {
	name string
	ddl  []string
}

func (s stub) Name() string         { return s.name }
func (s stub) Routes() chi.Router   { return chi.NewRouter() }
func (s stub) Migrations() []string { return s.ddl }
func (s stub) Init(Deps) error      { return nil }

func TestRegistry_SortedMigrations(t *testing.T) {
	Register(stub{name: "zz-test", ddl: []string{"CREATE TABLE z"}})
	Register(stub{name: "aa-test", ddl: []string{"CREATE TABLE a"}})

	var names []string
	for _, c := range All() {
		names = append(names, c.Name())
	}
	if names[0] != "aa-test" || names[len(names)-1] != "zz-test" {
		t.Fatalf("order = %v", names)
	}

	got := Migrations()
	if !reflect.DeepEqual(got[:1], []string{"CREATE TABLE a"}) || got[len(got)-1] != "CREATE TABLE z" {
		t.Fatalf("migrations = %v", got)
	}
}

func TestDeps_FormOptions(t *testing.T) {
	d := Deps{Config: &config.Config{Forms: config.Forms{SubmitTimeout: 5 * time.Second}}}
	o := d.FormOptions()
	if len(o.Guards) != 2 || o.SubmitTimeout != 5*time.Second {
		t.Fatalf("options = %+v", o)
	}
}
