package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Commit outcomes reported by RecordSessionCommit
const (
	CommitSaved    = "saved"
	CommitNoop     = "noop"
	CommitConflict = "conflict"
	CommitError    = "error"
)

type moduleMetrics struct {
	sessionLoadDuration   prometheus.Histogram
	sessionLoadTotal      *prometheus.CounterVec
	sessionCommitDuration prometheus.Histogram
	sessionCommitTotal    *prometheus.CounterVec
	sessionRemoveTotal    *prometheus.CounterVec
	sessionMutationTotal  *prometheus.CounterVec
	sessionsPurgedTotal   prometheus.Counter

	storeOpDuration *prometheus.HistogramVec
	storeErrorTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			sessionLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "docsess_session_load_duration_seconds",
					Help:    "Session load duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionLoadTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "docsess_session_load_total",
					Help: "Session loads by result (found, missing, error).",
				},
				[]string{"result"},
			),
			sessionCommitDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "docsess_session_commit_duration_seconds",
					Help:    "Session commit duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionCommitTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "docsess_session_commit_total",
					Help: "Session commits by outcome.",
				},
				[]string{"outcome"},
			),
			sessionRemoveTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "docsess_session_remove_total",
					Help: "Session removals by status.",
				},
				[]string{"status"},
			),
			sessionMutationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "docsess_session_mutation_total",
					Help: "Mutator calls by operator and status.",
				},
				[]string{"operator", "status"},
			),
			sessionsPurgedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "docsess_sessions_purged_total",
					Help: "Idle sessions removed by the sweeper.",
				},
			),
			storeOpDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "docsess_store_operation_duration_seconds",
					Help:    "Document store call duration in seconds by driver and operation.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"driver", "operation"},
			),
			storeErrorTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "docsess_store_errors_total",
					Help: "Document store call failures by driver and operation.",
				},
				[]string{"driver", "operation"},
			),
		}

		prometheus.MustRegister(
			m.sessionLoadDuration,
			m.sessionLoadTotal,
			m.sessionCommitDuration,
			m.sessionCommitTotal,
			m.sessionRemoveTotal,
			m.sessionMutationTotal,
			m.sessionsPurgedTotal,
			m.storeOpDuration,
			m.storeErrorTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordSessionLoad(duration time.Duration, result string) {
	m := getMetrics()
	m.sessionLoadDuration.Observe(duration.Seconds())
	m.sessionLoadTotal.WithLabelValues(result).Inc()
}

func RecordSessionCommit(duration time.Duration, outcome string) {
	m := getMetrics()
	m.sessionCommitTotal.WithLabelValues(outcome).Inc()
	if outcome != CommitNoop && outcome != CommitConflict {
		m.sessionCommitDuration.Observe(duration.Seconds())
	}
}

func RecordSessionRemove(success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.sessionRemoveTotal.WithLabelValues(status).Inc()
}

func RecordMutation(operator string, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.sessionMutationTotal.WithLabelValues(operator, status).Inc()
}

func RecordSessionsPurged(count int) {
	m := getMetrics()
	m.sessionsPurgedTotal.Add(float64(count))
}

func RecordStoreOperation(driver, operation string, duration time.Duration, err error) {
	m := getMetrics()
	m.storeOpDuration.WithLabelValues(driver, operation).Observe(duration.Seconds())
	if err != nil {
		m.storeErrorTotal.WithLabelValues(driver, operation).Inc()
	}
}
