package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	operationCounter      *prometheus.CounterVec
	alertCounter          prometheus.Counter
	driftCounter          prometheus.Counter
	idempotencyCounter    *prometheus.CounterVec
	workerRunCounter      *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		operationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operation attempts by outcome",
		}, []string{"op", "result"})

		alertCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_large_transaction_alerts_total",
			Help: "Large-transaction alerts emitted",
		})

		driftCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_reconciliation_drift_total",
			Help: "Accounts whose balance diverged from their record history",
		})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			operationCounter,
			alertCounter,
			driftCounter,
			idempotencyCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementOperation(op, result string) {
	if operationCounter == nil {
		return
	}
	operationCounter.WithLabelValues(op, result).Inc()
}

func IncrementLargeTransactionAlert() {
	if alertCounter == nil {
		return
	}
	alertCounter.Inc()
}

func IncrementReconciliationDrift() {
	if driftCounter == nil {
		return
	}
	driftCounter.Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
