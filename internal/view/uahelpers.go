// internal/view/uahelpers.go
//
// Visitor helpers for templates.  They accept a nil *RequestInfo (pages
// rendered outside a request) and return "".
package view

import (
	"html/template"

	"github.com/hotboxhair/site/internal/requestinfo"
)

func uaFuncMap() template.FuncMap {
	return template.FuncMap{
		// device is the body class the stylesheet keys on.
		"device": func(i *requestinfo.RequestInfo) string {
			if i == nil {
				return ""
			}
			return i.UA.Device
		},
	}
}
