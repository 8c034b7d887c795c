package kvstore

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// storeMetrics holds Prometheus metrics for store operations. A nil
// *storeMetrics disables recording.
type storeMetrics struct {
	ops           *prometheus.CounterVec   // By operation and result
	latency       *prometheus.HistogramVec // By operation
	indexFailures prometheus.Counter
	indexedKeys   prometheus.GaugeFunc
}

// newStoreMetrics creates and registers the store metrics with registerer.
// Collectors already registered by another store on the same root are
// reused, including the indexed keys gauge, which keeps reading the index of
// the store that registered it.
func newStoreMetrics(registerer prometheus.Registerer, root string, indexed func() float64) (*storeMetrics, error) {
	if registerer == nil {
		return nil, nil
	}

	labels := prometheus.Labels{"root": root}
	m := &storeMetrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "friendkv",
			Subsystem:   "store",
			Name:        "operations_total",
			Help:        "Total number of store operations",
			ConstLabels: labels,
		}, []string{"operation", "result"}),

		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "friendkv",
			Subsystem:   "store",
			Name:        "operation_duration_seconds",
			Help:        "Store operation duration in seconds, including lock wait",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"operation"}),

		indexFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "friendkv",
			Subsystem:   "index",
			Name:        "persist_failures_total",
			Help:        "Total number of failed background key index writes",
			ConstLabels: labels,
		}),

		indexedKeys: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "friendkv",
			Subsystem:   "index",
			Name:        "keys",
			Help:        "Number of keys in the in-memory key index",
			ConstLabels: labels,
		}, indexed),
	}

	var err error
	if m.ops, err = register(registerer, m.ops); err != nil {
		return nil, err
	}
	if m.latency, err = register(registerer, m.latency); err != nil {
		return nil, err
	}
	if m.indexFailures, err = register(registerer, m.indexFailures); err != nil {
		return nil, err
	}
	if m.indexedKeys, err = register(registerer, m.indexedKeys); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](registerer prometheus.Registerer, c C) (C, error) {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, errors.Wrap(err, "failed to register metric")
	}
	return c, nil
}

func (m *storeMetrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ops.WithLabelValues(op, result).Inc()
	m.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *storeMetrics) indexFailed() {
	if m == nil {
		return
	}
	m.indexFailures.Inc()
}
