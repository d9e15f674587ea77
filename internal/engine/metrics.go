package engine

import (
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// engineMetrics are the process counters of one Engine. Each Engine owns
// its own metrics.Set so that several engines can live in one process.
type engineMetrics struct {
	set *metrics.Set

	transactions      *metrics.Counter
	transactionErrors *metrics.Counter
	queries           *metrics.Counter
	queryErrors       *metrics.Counter
	queryDuration     *metrics.Histogram
	jobs              *metrics.Counter
}

func newEngineMetrics(e *Engine) *engineMetrics {
	set := metrics.NewSet()
	m := &engineMetrics{
		set:               set,
		transactions:      set.NewCounter("factdb_transactions_total"),
		transactionErrors: set.NewCounter("factdb_transaction_errors_total"),
		queries:           set.NewCounter("factdb_queries_total"),
		queryErrors:       set.NewCounter("factdb_query_errors_total"),
		queryDuration:     set.NewHistogram("factdb_query_duration_seconds"),
		jobs:              set.NewCounter("factdb_jobs_total"),
	}
	set.NewGauge("factdb_contexts_active", func() float64 {
		return float64(e.contexts.Size())
	})
	set.NewGauge("factdb_connections_open", func() float64 {
		return float64(e.conns.Size())
	})
	return m
}

func (m *engineMetrics) transacted(err error) {
	m.transactions.Inc()
	if err != nil {
		m.transactionErrors.Inc()
	}
}

func (m *engineMetrics) queried(start time.Time, err error) {
	m.queries.Inc()
	m.queryDuration.UpdateDuration(start)
	if err != nil {
		m.queryErrors.Inc()
	}
}

// WriteMetrics writes the engine's counters in Prometheus text format.
func (e *Engine) WriteMetrics(w io.Writer) {
	e.metrics.set.WritePrometheus(w)
}
