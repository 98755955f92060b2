package chain

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the Prometheus metrics for the chain.
type Metrics struct {
	txDuration  *prometheus.HistogramVec
	txTotal     *prometheus.CounterVec
	blockNumber prometheus.Gauge
	logsEmitted prometheus.Counter
}

// NewMetrics creates and registers the metrics for the chain.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		txDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "amm_transaction_duration_seconds",
			Help:    "Time taken to execute a transaction, committed or reverted.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		txTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amm_transactions_total",
			Help: "Total number of transactions, labeled by operation and result.",
		}, []string{"op", "result"}),
		blockNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "amm_block_number",
			Help: "Number of the head block.",
		}),
		logsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amm_logs_emitted_total",
			Help: "Total number of event logs committed.",
		}),
	}
	reg.MustRegister(m.txDuration, m.txTotal, m.blockNumber, m.logsEmitted)
	return m
}
