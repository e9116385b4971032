// internal/view/render_test.go
//
// Unit-tests for the view engine: layout wrapping, partials, overrides, and
// the not-found path.
//
// Run: go test ./internal/view -v

package view

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/hotboxhair/site/internal/requestinfo"
)

var compFS = fstest.MapFS{
	"templates/page.html": {Data: []byte(`{{ template "base" . }}{{ define "content" }}<h1>{{ .Data }}</h1>{{ template "row" "x" }}{{ end }}`)},
	"templates/_row.html": {Data: []byte(`{{ define "row" }}<p class="row">{{ . }}</p>{{ end }}`)},
	"templates/bare.html": {Data: []byte(`<p>{{ device .Info }}</p>`)},
}

func TestRender_LayoutAndPartials(t *testing.T) {
	e := New(Options{})
	e.Register("demo", compFS)

	rr := httptest.NewRecorder()
	p := NewPage(httptest.NewRequest(http.MethodGet, "/", nil), "Donate", "Hello <you>")
	if err := e.Render(rr, "demo", "page", p); err != nil {
		t.Fatalf("Render: %v", err)
	}
	body := rr.Body.String()
	for _, want := range []string{"<title>Donate</title>", "<h1>Hello &lt;you&gt;</h1>", `<p class="row">x</p>`, "<!DOCTYPE html>"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content-type = %q", ct)
	}
}

func TestRender_Helpers(t *testing.T) {
	e := New(Options{})
	e.Register("demo", compFS)

	out, err := e.RenderToString("demo", "bare", &Page{Info: &requestinfo.RequestInfo{
		UA: requestinfo.UA{Browser: "Firefox", Device: "Phone"},
	}})
	if err != nil || string(out) != "<p>Phone</p>" {
		t.Fatalf("out = %q, err = %v", out, err)
	}

	out, err = e.RenderToString("demo", "bare", nil)
	if err != nil || string(out) != "<p></p>" {
		t.Fatalf("nil info: out = %q, err = %v", out, err)
	}
}

func TestRender_HelpersOnlyDevice(t *testing.T) {
	fm := uaFuncMap()
	if len(fm) != 1 {
		t.Fatalf("visitor helpers = %d, want only device", len(fm))
	}
	if _, ok := fm["device"]; !ok {
		t.Fatal("device helper missing")
	}
}

func TestRender_BodyDeviceClass(t *testing.T) {
	e := New(Options{})
	e.Register("demo", compFS)

	rr := httptest.NewRecorder()
	p := NewPage(httptest.NewRequest(http.MethodGet, "/", nil), "Home", "x")
	p.Info = &requestinfo.RequestInfo{UA: requestinfo.UA{Device: "Tablet"}}
	if err := e.Render(rr, "demo", "page", p); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(rr.Body.String(), `<body class="tablet">`) {
		t.Fatalf("body class missing: %s", rr.Body.String())
	}
}

func TestRender_Override(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "demo"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "demo", "bare.html"), []byte(`<p>custom</p>`), 0o644); err != nil {
		t.Fatal(err)
	}

	e := New(Options{OverrideDir: dir})
	e.Register("demo", compFS)
	out, err := e.RenderToString("demo", "bare", nil)
	if err != nil || string(out) != "<p>custom</p>" {
		t.Fatalf("out = %q, err = %v", out, err)
	}
}

func TestRender_NotFound(t *testing.T) {
	e := New(Options{})
	e.Register("demo", compFS)
	if _, err := e.RenderToString("demo", "missing", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if _, err := e.RenderToString("nope", "page", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestRender_ConcurrentSharesParse(t *testing.T) {
	e := New(Options{})
	e.Register("demo", compFS)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.RenderToString("demo", "page", &Page{Data: "x"}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if e.sets.Len() != 1 {
		t.Fatalf("cached sets = %d, want 1", e.sets.Len())
	}
}

func TestMarkdown(t *testing.T) {
	got := string(markdown("Write to [us](mailto:a@b.org) <script>x</script>"))
	if !strings.Contains(got, `<a href="mailto:a@b.org">us</a>`) || strings.Contains(got, "<script>") {
		t.Fatalf("markdown = %q", got)
	}
	if markdown("") != "" {
		t.Fatal("empty source should render nothing")
	}
}
