package app

import (
	"strconv"
	"time"

	weave "github.com/iov-one/escrowfactory"
	"github.com/iov-one/escrowfactory/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "escrowd"

// Metrics collects ledger statistics.
type Metrics struct {
	txs      *prometheus.CounterVec
	duration *prometheus.HistogramVec
	events   *prometheus.CounterVec
	height   prometheus.Gauge
}

// NewMetrics creates ledger metrics and registers them with given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		txs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "txs_total",
			Help:      "Processed transactions by phase, message path and result code.",
		}, []string{"phase", "path", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "tx_duration_seconds",
			Help:      "Time spent in the handler by message path.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase", "path"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Committed events by path.",
		}, []string{"path"}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "height",
			Help:      "Height of the last committed block.",
		}),
	}
	reg.MustRegister(m.txs, m.duration, m.events, m.height)
	return m
}

var _ weave.Decorator = (*Metrics)(nil)

// Check records the result of a check.
func (m *Metrics) Check(ctx weave.Context, store weave.KVStore, tx weave.Tx, next weave.Checker) (*weave.CheckResult, error) {
	start := time.Now()
	res, err := next.Check(ctx, store, tx)
	m.observe("check", weave.GetPath(tx), start, err)
	return res, err
}

// Deliver records the result of a delivery.
func (m *Metrics) Deliver(ctx weave.Context, store weave.KVStore, tx weave.Tx, next weave.Deliverer) (*weave.DeliverResult, error) {
	start := time.Now()
	res, err := next.Deliver(ctx, store, tx)
	m.observe("deliver", weave.GetPath(tx), start, err)
	return res, err
}

func (m *Metrics) observe(phase, path string, start time.Time, err error) {
	code, _ := errors.ABCIInfo(err, false)
	m.txs.WithLabelValues(phase, path, strconv.FormatUint(uint64(code), 10)).Inc()
	m.duration.WithLabelValues(phase, path).Observe(time.Since(start).Seconds())
}

// OnCommit counts committed events.
func (m *Metrics) OnCommit(ctx weave.Context, block Block) error {
	m.height.Set(float64(block.Height))
	for _, ev := range block.Events {
		m.events.WithLabelValues(ev.EventPath()).Inc()
	}
	return nil
}
