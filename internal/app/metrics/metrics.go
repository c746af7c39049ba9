// Package metrics exposes the application's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "habitloop",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "habitloop",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "habitloop",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	checkinsRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "habitloop",
			Subsystem: "checkins",
			Name:      "recorded_total",
			Help:      "Total number of new check-ins recorded.",
		},
	)

	checkinsDuplicate = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "habitloop",
			Subsystem: "checkins",
			Name:      "duplicate_total",
			Help:      "Total number of check-in requests that hit an existing row.",
		},
	)

	xpAwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "habitloop",
			Subsystem: "gamification",
			Name:      "xp_awarded_total",
			Help:      "Total XP credited across all users.",
		},
	)

	achievementsUnlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "habitloop",
			Subsystem: "gamification",
			Name:      "achievements_unlocked_total",
			Help:      "Total achievements unlocked, by achievement code.",
		},
		[]string{"achievement"},
	)

	reconcileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "habitloop",
			Subsystem: "gamification",
			Name:      "reconcile_runs_total",
			Help:      "Total profile reconciliation runs.",
		},
		[]string{"success"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		checkinsRecorded,
		checkinsDuplicate,
		xpAwarded,
		achievementsUnlocked,
		reconcileRuns,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordCheckIn records a check-in attempt and the XP it earned.
func RecordCheckIn(created bool, xp int) {
	if !created {
		checkinsDuplicate.Inc()
		return
	}
	checkinsRecorded.Inc()
	if xp > 0 {
		xpAwarded.Add(float64(xp))
	}
}

// RecordAchievement records an achievement unlock.
func RecordAchievement(code string) {
	if code == "" {
		code = "unknown"
	}
	achievementsUnlocked.WithLabelValues(code).Inc()
}

// RecordReconcile records a reconciliation run.
func RecordReconcile(success bool) {
	result := "false"
	if success {
		result = "true"
	}
	reconcileRuns.WithLabelValues(result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses resource identifiers so metric labels stay low
// cardinality.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "habits" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/habits"
	}
	if len(parts) == 2 {
		return "/habits/:id"
	}
	return "/habits/:id/" + parts[2]
}
