// Package metrics exports executor diagnostics and network events to
// Prometheus.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/altuslabsxyz/txexec/internal/executor"
	"github.com/altuslabsxyz/txexec/internal/types"
)

const namespace = "txexec"

// waitBuckets spans sub-second submissions to multi-minute confirmations.
var waitBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// Metrics implements executor.DiagnosticUpdater and records network events.
type Metrics struct {
	mu sync.Mutex
	d  executor.Diagnostics

	inQueue     prometheus.Gauge
	total       prometheus.Gauge
	outcomes    *prometheus.CounterVec
	waitSubmit  *prometheus.HistogramVec
	waitConfirm *prometheus.HistogramVec
	waitError   *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		inQueue: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transactions_in_queue",
			Help:      "Transactions queued and not yet started.",
		}),
		total: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transaction attempts that finished.",
		}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_outcomes_total",
			Help:      "Finished attempts by method and result.",
		}, []string{"method", "result"}),
		waitSubmit: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submit_wait_seconds",
			Help:      "Time from submission call to network acceptance.",
			Buckets:   waitBuckets,
		}, []string{"method"}),
		waitConfirm: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confirm_wait_seconds",
			Help:      "Time from submission call to confirmation.",
			Buckets:   waitBuckets,
		}, []string{"method"}),
		waitError: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "error_wait_seconds",
			Help:      "Time from execution start to failure.",
			Buckets:   waitBuckets,
		}, []string{"method"}),
	}
}

// UpdateDiagnostics implements executor.DiagnosticUpdater.
func (m *Metrics) UpdateDiagnostics(fn func(d *executor.Diagnostics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.d)
	m.inQueue.Set(float64(m.d.TransactionsInQueue))
	m.total.Set(float64(m.d.TotalTransactions))
}

// Snapshot returns the current counters.
func (m *Metrics) Snapshot() executor.Diagnostics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d
}

// ObserveEvent records ev. It has the executor.AfterTransaction signature.
func (m *Metrics) ObserveEvent(_ *types.Transaction, ev executor.NetworkEvent) {
	result := "success"
	if !ev.Succeeded() {
		result = "failure"
	}
	m.outcomes.WithLabelValues(ev.TxType, result).Inc()

	observe(m.waitSubmit, ev.TxType, ev.WaitSubmit)
	observe(m.waitConfirm, ev.TxType, ev.WaitConfirm)
	observe(m.waitError, ev.TxType, ev.WaitError)
}

func observe(h *prometheus.HistogramVec, method string, ms *int64) {
	if ms == nil {
		return
	}
	h.WithLabelValues(method).Observe((time.Duration(*ms) * time.Millisecond).Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

var _ executor.DiagnosticUpdater = (*Metrics)(nil)
