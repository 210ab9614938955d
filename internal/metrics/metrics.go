package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful calls.
	OutcomeSuccess = "success"
	// OutcomeError labels failed calls (remote rejection, exhaustion, or transport failure).
	OutcomeError = "error"
)

var (
	remoteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procurement_bridge",
			Name:      "remote_requests_total",
			Help:      "Requests issued to the procurement API, partitioned by method and status class.",
		},
		[]string{"method", "status"},
	)

	remoteRequestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "procurement_bridge",
			Name:      "remote_request_seconds",
			Help:      "Procurement API request latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"method"},
	)

	transportRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procurement_bridge",
			Name:      "transport_retries_total",
			Help:      "Transport-level retries, partitioned by trigger.",
		},
		[]string{"reason"},
	)

	pagesFetchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procurement_bridge",
			Name:      "pages_fetched_total",
			Help:      "Collection pages merged into fetch results.",
		},
		[]string{"resource"},
	)

	writeAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procurement_bridge",
			Name:      "write_attempts_total",
			Help:      "Write candidates tried by the orchestrator, partitioned by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procurement_bridge",
			Name:      "cache_lookups_total",
			Help:      "Cache layer lookups, partitioned by collection and result.",
		},
		[]string{"collection", "result"},
	)

	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procurement_bridge",
			Name:      "operations_total",
			Help:      "Bridge operations handled, partitioned by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	operationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "procurement_bridge",
			Name:      "operation_seconds",
			Help:      "Bridge operation latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"operation"},
	)

	automationJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procurement_bridge",
			Name:      "automation_jobs_total",
			Help:      "UI-automation jobs by kind and terminal status.",
		},
		[]string{"kind", "status"},
	)
)

// Register attaches procurement-bridge collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		remoteRequestsTotal,
		remoteRequestSeconds,
		transportRetriesTotal,
		pagesFetchedTotal,
		writeAttemptsTotal,
		cacheLookupsTotal,
		operationsTotal,
		operationDurationSeconds,
		automationJobsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRemoteRequest records one HTTP exchange. status 0 means a transport error.
func ObserveRemoteRequest(method string, status int, duration time.Duration) {
	remoteRequestsTotal.WithLabelValues(method, statusClass(status)).Inc()
	if duration < 0 {
		duration = 0
	}
	remoteRequestSeconds.WithLabelValues(method).Observe(duration.Seconds())
}

// IncTransportRetry counts a retry triggered by reason (status code or "conn").
func IncTransportRetry(reason string) {
	transportRetriesTotal.WithLabelValues(reason).Inc()
}

// AddPagesFetched counts merged pages for a resource kind.
func AddPagesFetched(resource string, pages int) {
	if pages <= 0 {
		return
	}
	pagesFetchedTotal.WithLabelValues(resource).Add(float64(pages))
}

// ObserveWriteAttempt counts one write candidate.
func ObserveWriteAttempt(operation string, ok bool) {
	writeAttemptsTotal.WithLabelValues(operation, outcome(ok)).Inc()
}

// ObserveCacheLookup counts a cache hit or miss.
func ObserveCacheLookup(collection string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(collection, result).Inc()
}

// ObserveOperation records a bridge operation duration and outcome label.
func ObserveOperation(operation string, duration time.Duration, ok bool) {
	operationsTotal.WithLabelValues(operation, outcome(ok)).Inc()
	if duration < 0 {
		duration = 0
	}
	operationDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveJob counts an automation job reaching a status.
func ObserveJob(kind, status string) {
	automationJobsTotal.WithLabelValues(kind, status).Inc()
}

func outcome(ok bool) string {
	if ok {
		return OutcomeSuccess
	}
	return OutcomeError
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
