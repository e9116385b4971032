// internal/view/json.go
package view

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// JSON writes v as the response body.  The body is encoded before the
// header goes out, so an encoding error leaves w untouched.
func JSON(w http.ResponseWriter, status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}
