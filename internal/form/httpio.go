// internal/form/httpio.go
//
// Request decoding and response shaping shared by form handlers.

package form

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
)

// MaxPostBytes caps the body DecodePost will read.
const MaxPostBytes = 64 << 10

// DecodePost reads a JSON object or a form-encoded body into url.Values.
// JSON true becomes "on" (a checked box), false and null are omitted.
func DecodePost(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxPostBytes)

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "application/json" {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("bad form body: %w", err)
		}
		return r.PostForm, nil
	}

	var raw map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("bad JSON body: %w", err)
	}

	out := make(url.Values, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			out.Set(k, t)
		case json.Number:
			out.Set(k, t.String())
		case bool:
			if t {
				out.Set(k, "on")
			}
		case nil:
		default:
			return nil, fmt.Errorf("field %q: unsupported JSON type %T", k, v)
		}
	}
	return out, nil
}

// ErrorList flattens the failed annotations: form-level first, then fields
// in definition order.
func ErrorList(fd *FormDef, ann Annotations) []ValidationResult {
	var out []ValidationResult
	if res, ok := ann[""]; ok && !res.Valid {
		out = append(out, res)
	}
	for _, f := range fd.Fields {
		if res, ok := ann[f.Name]; ok && !res.Valid {
			out = append(out, res)
		}
	}
	return out
}

// Echo returns the posted values of fd's fields for re-rendering.  Absent
// checkboxes are echoed as unchecked.
func Echo(fd *FormDef, posted url.Values) map[string]string {
	out := make(map[string]string, len(fd.Fields))
	for _, f := range fd.Fields {
		if vs, ok := posted[f.Name]; ok && len(vs) > 0 {
			out[f.Name] = vs[0]
		} else if f.Type == TypeCheckbox {
			out[f.Name] = ""
		}
	}
	return out
}

// Result is the JSON answer to a post.
type Result struct {
	Submission string             `json:"submission"`
	State      State              `json:"state"`
	Message    string             `json:"message,omitempty"`
	Errors     []ValidationResult `json:"errors,omitempty"`
	Button     ButtonState        `json:"button"`
	Navigation *Navigation        `json:"navigation,omitempty"`
}

// NewResult builds the JSON answer for sub.  Errors are listed only when
// the post was rejected before reaching the backend.
func NewResult(fd *FormDef, sub *Submission) Result {
	res := Result{
		Submission: sub.ID,
		State:      sub.State,
		Message:    sub.Message,
		Button:     sub.Button,
		Navigation: sub.Navigation,
	}
	if sub.Rejected {
		res.Errors = ErrorList(fd, sub.Annotations)
	}
	return res
}
