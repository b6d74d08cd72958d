package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "canvas",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "canvas",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "canvas",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "canvas",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "canvas",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limit policy.",
		},
		[]string{"policy"},
	)

	attachmentBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "canvas",
			Subsystem: "attachments",
			Name:      "uploaded_bytes_total",
			Help:      "Bytes accepted by attachment uploads.",
		},
	)

	attachmentUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "canvas",
			Subsystem: "attachments",
			Name:      "uploads_total",
			Help:      "Attachment uploads by target entity.",
		},
		[]string{"entity"},
	)

	reviewsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "canvas",
			Subsystem: "reviews",
			Name:      "created_total",
			Help:      "Monthly reviews created.",
		},
	)

	pdfExports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "canvas",
			Subsystem: "pdf",
			Name:      "exports_total",
			Help:      "PDF exports by outcome.",
		},
		[]string{"outcome"},
	)

	pdfDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "canvas",
			Subsystem: "pdf",
			Name:      "render_duration_seconds",
			Help:      "Duration of PDF rendering.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	healthSweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "canvas",
			Subsystem: "jobs",
			Name:      "health_sweeps_total",
			Help:      "Health cache sweeps by result.",
		},
		[]string{"success"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		logins,
		rateLimited,
		attachmentBytes,
		attachmentUploads,
		reviewsCreated,
		pdfExports,
		pdfDuration,
		healthSweeps,
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
		path := routeTemplate(r)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordLogin counts a login attempt outcome.
func RecordLogin(outcome string) {
	logins.WithLabelValues(outcome).Inc()
}

// RecordRateLimited counts a rejected request for policy.
func RecordRateLimited(policy string) {
	if policy == "" {
		policy = "default"
	}
	rateLimited.WithLabelValues(policy).Inc()
}

// RecordUpload counts an accepted attachment.
func RecordUpload(entity string, size int64) {
	attachmentUploads.WithLabelValues(entity).Inc()
	if size > 0 {
		attachmentBytes.Add(float64(size))
	}
}

// RecordReviewCreated counts a persisted monthly review.
func RecordReviewCreated() {
	reviewsCreated.Inc()
}

// RecordPDFExport records a PDF export attempt.
func RecordPDFExport(duration time.Duration, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	pdfExports.WithLabelValues(outcome).Inc()
	if duration > 0 {
		pdfDuration.Observe(duration.Seconds())
	}
}

// RecordHealthSweep records a scheduled health recomputation.
func RecordHealthSweep(success bool) {
	healthSweeps.WithLabelValues(strconv.FormatBool(success)).Inc()
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

// routeTemplate labels requests by their mux route so ids do not explode
// label cardinality.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return canonicalPath(r.URL.Path)
}

func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "api" || len(parts) == 1 {
		return "/" + parts[0]
	}
	return "/api/" + parts[1]
}
