package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	core "github.com/openmuni/grievance-core/internal/app/core/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "grievance",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grievance",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "grievance",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to 2.56s
		},
		[]string{"method", "path"},
	)

	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grievance",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Total number of ApplyTransition outcomes.",
		},
		[]string{"from", "to", "result"},
	)

	escalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grievance",
			Subsystem: "scheduler",
			Name:      "escalations_total",
			Help:      "Total number of complaint escalations performed by a tick.",
		},
		[]string{"to_level"},
	)

	tickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "grievance",
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one scheduler tick.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"outcome"},
	)

	intakeTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grievance",
			Subsystem: "intake",
			Name:      "turns_total",
			Help:      "Total number of intake conversation turns processed, by resulting phase.",
		},
		[]string{"phase"},
	)

	classifierCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grievance",
			Subsystem: "classifier",
			Name:      "calls_total",
			Help:      "Total number of classifier adapter calls, by outcome.",
		},
		[]string{"outcome"},
	)

	observationCollectors sync.Map
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		transitionsTotal,
		escalationsTotal,
		tickDuration,
		intakeTurnsTotal,
		classifierCallsTotal,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
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

// RecordTransition records the outcome of one ApplyTransition call.
func RecordTransition(from, to, result string) {
	transitionsTotal.WithLabelValues(from, to, result).Inc()
}

// RecordEscalation records one completed escalation step.
func RecordEscalation(toLevel string) {
	escalationsTotal.WithLabelValues(toLevel).Inc()
}

// RecordTick records the duration and outcome of one scheduler tick.
func RecordTick(outcome string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	tickDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordIntakeTurn records one processed conversation turn, labeled by the
// phase the session is in after processing.
func RecordIntakeTurn(phase string) {
	if phase == "" {
		phase = "unknown"
	}
	intakeTurnsTotal.WithLabelValues(phase).Inc()
}

// RecordClassifierCall records one classifier adapter call outcome
// ("ok", "timeout", "degraded").
func RecordClassifierCall(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	classifierCallsTotal.WithLabelValues(outcome).Inc()
}

type observationCollector struct {
	gauge *prometheus.GaugeVec
	hist  *prometheus.HistogramVec
}

// ObservationHooks creates core observation hooks backed by Prometheus metrics.
func ObservationHooks(namespace, subsystem, name string) core.ObservationHooks {
	key := namespace + ":" + subsystem + ":" + name
	var collector observationCollector
	if entry, ok := observationCollectors.Load(key); ok {
		collector = entry.(observationCollector)
	} else {
		collector = createObservationCollector(namespace, subsystem, name)
		observationCollectors.Store(key, collector)
	}
	return core.ObservationHooks{
		OnStart: func(ctx context.Context, meta map[string]string) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Inc()
		},
		OnComplete: func(ctx context.Context, meta map[string]string, err error, duration time.Duration) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Dec()
			status := "success"
			if err != nil {
				status = "error"
			}
			collector.hist.WithLabelValues(label, status).Observe(duration.Seconds())
		},
	}
}

func createObservationCollector(namespace, subsystem, name string) observationCollector {
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_in_flight",
			Help:      "Current operations in flight for " + subsystem,
		},
		[]string{"resource"},
	)
	hist := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_duration_seconds",
			Help:      "Duration of operations for " + subsystem,
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"resource", "status"},
	)
	Registry.MustRegister(gauge, hist)
	return observationCollector{gauge: gauge, hist: hist}
}

func metaLabel(meta map[string]string) string {
	if meta == nil {
		return "unknown"
	}
	if id, ok := meta["complaint_id"]; ok && id != "" {
		return id
	}
	if id, ok := meta["session_key"]; ok && id != "" {
		return id
	}
	return "unknown"
}

// ResolutionHooks captures proof-upload / resolve / signoff / dispute timing.
func ResolutionHooks() core.ObservationHooks {
	return ObservationHooks("grievance", "resolution", "operations")
}

// ClassifierHooks captures classifier adapter call timing.
func ClassifierHooks() core.ObservationHooks {
	return ObservationHooks("grievance", "classifier", "requests")
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

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 {
		return "/"
	}
	if parts[0] != "complaints" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/complaints"
	}
	if len(parts) == 2 {
		return "/complaints/:id"
	}
	resource := parts[2]
	return "/complaints/:id/" + resource
}
