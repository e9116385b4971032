// internal/middleware/accesslog.go
//
// Access logging and request-scoped loggers.
//
// Context
// -------
// AccessLog must run after chi's RequestID middleware.  It stores a logger
// tagged with the request id in the context (logger.FromContext picks it
// up in handlers, the form controller, and the donation service), then
// writes one line per request and feeds the HTTP Prometheus collectors.
//
// Notes
// -----
// • The route label is chi's pattern ("/api/track"), never the raw path,
//   so label cardinality stays bounded.  Unmatched requests use "unmatched".
// • 5xx responses log at WARN, everything else at DEBUG for /healthz and
//   /metrics, INFO otherwise.

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hotboxhair/site/internal/logger"
	"github.com/hotboxhair/site/internal/metrics"
)

// AccessLog logs each request through base (zap.S() when nil).
func AccessLog(base *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			root := base
			if root == nil {
				root = zap.S()
			}
			reqLog := root.With("req", chimw.GetReqID(r.Context()))
			r = r.WithContext(logger.WithContext(r.Context(), reqLog))

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			took := time.Since(start)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(route).Observe(took.Seconds())

			fields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"took", took,
				"remote", r.RemoteAddr,
			}
			switch {
			case status >= 500:
				reqLog.Warnw("http request", fields...)
			case r.URL.Path == "/healthz" || r.URL.Path == "/metrics":
				reqLog.Debugw("http request", fields...)
			default:
				reqLog.Infow("http request", fields...)
			}
		})
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
