// Package metrics holds the console's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_http_requests_total",
			Help: "HTTP requests served by the console.",
		},
		[]string{"route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "console_http_duration_seconds",
			Help:    "HTTP request duration.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "console_upstream_duration_seconds",
			Help:    "Duration of calls to the appointment service.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "outcome"},
	)

	rescheduleOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_reschedule_total",
			Help: "Reschedule attempts by outcome.",
		},
		[]string{"outcome"},
	)

	conflictPairs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "console_conflict_pairs",
			Help: "Double-booked appointment pairs in the current snapshot.",
		},
	)

	snapshotSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "console_snapshot_appointments",
			Help: "Appointments in the current snapshot.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, upstreamDuration, rescheduleOutcomes, conflictPairs, snapshotSize)
}

// ObserveUpstream records one call to the appointment service.
func ObserveUpstream(op string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	upstreamDuration.WithLabelValues(op, outcome).Observe(time.Since(started).Seconds())
}

// RescheduleOutcome counts a reschedule attempt: committed, conflict,
// invalid or failed.
func RescheduleOutcome(outcome string) {
	rescheduleOutcomes.WithLabelValues(outcome).Inc()
}

func SetConflictPairs(n int) {
	conflictPairs.Set(float64(n))
}

func SetSnapshotSize(n int) {
	snapshotSize.Set(float64(n))
}

// Middleware instruments requests by chi route pattern so path parameters
// do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
