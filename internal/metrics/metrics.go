package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheOperation identifies the principal-set cache method being instrumented.
type CacheOperation string

const (
	// CacheOperationLookup records principal-set cache lookup calls.
	CacheOperationLookup CacheOperation = "lookup"
	// CacheOperationStore records principal-set cache store attempts.
	CacheOperationStore CacheOperation = "store"
)

// CacheLookupOutcome captures the result of a cache lookup.
type CacheLookupOutcome string

const (
	// CacheLookupHit indicates the lookup reused a cached principal set.
	CacheLookupHit CacheLookupOutcome = "hit"
	// CacheLookupMiss indicates no cached principal set was present.
	CacheLookupMiss CacheLookupOutcome = "miss"
	// CacheLookupError indicates the lookup failed due to an error.
	CacheLookupError CacheLookupOutcome = "error"
)

// CacheStoreOutcome captures the result of a cache store attempt.
type CacheStoreOutcome string

const (
	// CacheStoreStored indicates the cache entry was persisted.
	CacheStoreStored CacheStoreOutcome = "stored"
	// CacheStoreError indicates the store operation failed.
	CacheStoreError CacheStoreOutcome = "error"
)

// Recorder publishes Prometheus metrics for the authz engine.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	checks       *prometheus.CounterVec
	checkLatency *prometheus.HistogramVec

	cacheOperations *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec

	validationFailures *prometheus.CounterVec
	reloads            *prometheus.CounterVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a dedicated
// registry is created so multiple recorders can coexist without conflicting with
// the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	checks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repoauthz",
		Subsystem: "check",
		Name:      "requests_total",
		Help:      "Total access checks evaluated, by repository and decision.",
	}, []string{"repo", "decision"})

	checkLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "repoauthz",
		Subsystem: "check",
		Name:      "duration_seconds",
		Help:      "Latency distribution for completed access checks.",
		Buckets:   []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
	}, []string{"repo", "decision"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repoauthz",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Principal-set cache operations executed by the engine.",
	}, []string{"operation", "result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "repoauthz",
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Latency distribution for principal-set cache operations.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"operation", "result"})

	validationFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repoauthz",
		Subsystem: "config",
		Name:      "validation_failures_total",
		Help:      "Authz configuration loads that failed, by failing stage.",
	}, []string{"kind"})

	reloads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repoauthz",
		Subsystem: "config",
		Name:      "reloads_total",
		Help:      "Authz configuration hot-reload cycles, by result.",
	}, []string{"result"})

	reg.MustRegister(checks, checkLatency, cacheOperations, cacheLatency, validationFailures, reloads)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:           reg,
		handler:            handler,
		checks:             checks,
		checkLatency:       checkLatency,
		cacheOperations:    cacheOperations,
		cacheLatency:       cacheLatency,
		validationFailures: validationFailures,
		reloads:            reloads,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveCheck records the outcome and latency of a completed access check.
func (r *Recorder) ObserveCheck(repo string, allowed bool, duration time.Duration) {
	if r == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	repoLabel := normalizeLabel(repo)
	r.checks.WithLabelValues(repoLabel, decision).Inc()
	r.checkLatency.WithLabelValues(repoLabel, decision).Observe(duration.Seconds())
}

// ObserveCacheLookup records the result of a principal-set cache lookup.
func (r *Recorder) ObserveCacheLookup(result CacheLookupOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(CacheLookupMiss)
	}
	r.observeCache(CacheOperationLookup, resultLabel, duration)
}

// ObserveCacheStore records the result of a principal-set cache store attempt.
func (r *Recorder) ObserveCacheStore(result CacheStoreOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(CacheStoreError)
	}
	r.observeCache(CacheOperationStore, resultLabel, duration)
}

func (r *Recorder) observeCache(operation CacheOperation, result string, duration time.Duration) {
	opLabel := string(operation)
	if opLabel == "" {
		opLabel = string(CacheOperationLookup)
	}
	resLabel := normalizeLabel(result)
	r.cacheOperations.WithLabelValues(opLabel, resLabel).Inc()
	r.cacheLatency.WithLabelValues(opLabel, resLabel).Observe(duration.Seconds())
}

// ObserveValidationFailure records a failed authz configuration load, tagged
// with the caller-supplied kind label (authzd passes the failing stage:
// "load", "validate" or "reload").
func (r *Recorder) ObserveValidationFailure(kind string) {
	if r == nil {
		return
	}
	r.validationFailures.WithLabelValues(normalizeLabel(kind)).Inc()
}

// ObserveReload records a hot-reload cycle outcome ("ok" or "error").
func (r *Recorder) ObserveReload(ok bool) {
	if r == nil {
		return
	}
	result := "error"
	if ok {
		result = "ok"
	}
	r.reloads.WithLabelValues(result).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
