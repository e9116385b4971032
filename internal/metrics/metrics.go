// Package metrics holds Prometheus instruments that are used across the
// site.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ---- HTTP -------------------------------------------------------------

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route pattern, method, and status code.",
		}, []string{"route", "method", "code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"})

	// ---- Forms ------------------------------------------------------------

	FormValidationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form_validation_total",
			Help: "Validation passes by form and result (valid, invalid).",
		}, []string{"form", "result"})

	FormRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form_rejected_total",
			Help: "Posts refused before reaching the backend, by form and reason.",
		}, []string{"form", "reason"})

	// ---- Submissions ------------------------------------------------------

	SubmissionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form_submission_total",
			Help: "Backend submissions by form and outcome (succeeded, failed).",
		}, []string{"form", "outcome"})

	SubmissionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "form_submission_duration_seconds",
			Help:    "Time spent waiting for the submission backend.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 2.5, 5, 10, 30},
		}, []string{"form"})

	SubmissionsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "form_submissions_in_flight",
			Help: "Submissions currently waiting on a backend.",
		})

	DonationCentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donation_cents_total",
			Help: "Cumulative donated amount in cents, by donation type.",
		}, []string{"type"})

	// ---- Outbound messages ------------------------------------------------

	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_messages_total",
			Help: "Outbound jobs by kind (email, webhook) and result (sent, failed, dropped).",
		}, []string{"kind", "result"})

	// ---- Tracking ---------------------------------------------------------

	TrackedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracked_events_total",
			Help: "Events accepted by the tracker, by event name.",
		}, []string{"event"})

	TrackerDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_dropped_total",
			Help: "Events dropped because the tracker queue was full or closed.",
		})

	TrackerSinkErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_sink_errors_total",
			Help: "Sink deliveries that returned an error.",
		})

	TrackerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_queue_depth",
			Help: "Events waiting in the tracker queue.",
		})

	// ---- Retention --------------------------------------------------------

	PrunedRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_pruned_rows_total",
			Help: "Rows deleted by the retention job, by table.",
		}, []string{"table"})

	PruneErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "retention_prune_errors_total",
			Help: "Retention runs that failed.",
		})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		FormValidationTotal,
		FormRejectedTotal,
		SubmissionTotal,
		SubmissionDuration,
		SubmissionsInFlight,
		DonationCentsTotal,
		MessagesTotal,
		TrackedEventsTotal,
		TrackerDroppedTotal,
		TrackerSinkErrorsTotal,
		TrackerQueueDepth,
		PrunedRowsTotal,
		PruneErrorsTotal,
	)
}
