package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamelend_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gamelend_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// BorrowRequestOutcomes counts borrow request operations by outcome code.
	BorrowRequestOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamelend_borrow_request_outcomes_total",
		Help: "Borrow request operations by operation and outcome",
	}, []string{"operation", "outcome"})

	// LendingTransitions counts lending record status transitions.
	LendingTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamelend_lending_transitions_total",
		Help: "Lending record status transitions",
	}, []string{"from", "to"})

	// OverdueSweepRuns counts overdue sweep executions by result.
	OverdueSweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gamelend_overdue_sweep_runs_total",
		Help: "Overdue sweep executions by result",
	}, []string{"result"})

	// OverdueRecords is the number of overdue records seen by the last sweep.
	OverdueRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gamelend_overdue_records",
		Help: "Active lending records past their end date at the last sweep",
	})
)

// ObserveQuery records the latency of a database query.
func ObserveQuery(operation, table string, start time.Time) {
	DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		ObserveQuery(operation, table, start)
	}
}

// RecordOutcome counts a borrow request operation; outcome is "ok" or an error code.
func RecordOutcome(operation, outcome string) {
	BorrowRequestOutcomes.WithLabelValues(operation, outcome).Inc()
}
