// Package head collects the tags a page wants inside <head>.  A Builder
// lives for one request: handlers fill it, and the base layout prints
// Title, Metas, Links, and JSON in that order.
//
// Single-valued tags (title, description, refresh) keep the last value
// set.  Free-form tags added through Meta, Link, and JSONLD are emitted
// once each, in insertion order.
package head

import (
	"fmt"
	"html/template"
	"strings"
	"sync"
	"time"
)

type kind uint8

const (
	metaTag kind = iota
	linkTag
	jsonLD
)

// Builder is safe for concurrent use.
type Builder struct {
	mu          sync.Mutex
	title       string
	description string
	refresh     string
	tags        [3][]string
	seen        map[string]bool
}

func New() *Builder {
	return &Builder{seen: map[string]bool{}}
}

// SetTitle sets the page title.
func (b *Builder) SetTitle(t string) {
	b.mu.Lock()
	b.title = t
	b.mu.Unlock()
}

// Description sets <meta name="description">.
func (b *Builder) Description(d string) {
	b.mu.Lock()
	b.description = d
	b.mu.Unlock()
}

// Refresh makes the browser navigate to url after d, rounded to whole
// seconds.  The donation page uses it to reach the confirmation page.
func (b *Builder) Refresh(d time.Duration, url string) {
	secs := int(d.Round(time.Second).Seconds())
	b.mu.Lock()
	b.refresh = fmt.Sprintf("%d;url=%s", secs, url)
	b.mu.Unlock()
}

// Meta, Link, and JSONLD take pre-built markup.  JSONLD takes the bare
// JSON document.
func (b *Builder) Meta(tag string)  { b.push(metaTag, tag) }
func (b *Builder) Link(tag string)  { b.push(linkTag, tag) }
func (b *Builder) JSONLD(js string) { b.push(jsonLD, js) }

func (b *Builder) push(k kind, s string) {
	key := string(rune('0'+k)) + s
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seen[key] {
		return
	}
	b.seen[key] = true
	b.tags[k] = append(b.tags[k], s)
}

// Title renders <title>, or nothing when unset.
func (b *Builder) Title() template.HTML {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.title == "" {
		return ""
	}
	return template.HTML("<title>" + template.HTMLEscapeString(b.title) + "</title>")
}

// Metas renders the refresh tag first, then the description, then Meta
// tags.
func (b *Builder) Metas() template.HTML {
	b.mu.Lock()
	defer b.mu.Unlock()
	var sb strings.Builder
	if b.refresh != "" {
		fmt.Fprintf(&sb, `<meta http-equiv="refresh" content="%s">`, template.HTMLEscapeString(b.refresh))
	}
	if b.description != "" {
		fmt.Fprintf(&sb, `<meta name="description" content="%s">`, template.HTMLEscapeString(b.description))
	}
	for _, t := range b.tags[metaTag] {
		sb.WriteString(t)
	}
	return template.HTML(sb.String())
}

func (b *Builder) Links() template.HTML {
	b.mu.Lock()
	defer b.mu.Unlock()
	return template.HTML(strings.Join(b.tags[linkTag], ""))
}

// JSON renders each JSON-LD document in its own script element.
func (b *Builder) JSON() template.HTML {
	b.mu.Lock()
	defer b.mu.Unlock()
	var sb strings.Builder
	for _, js := range b.tags[jsonLD] {
		sb.WriteString(`<script type="application/ld+json">` + js + `</script>`)
	}
	return template.HTML(sb.String())
}
