package record

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors updated by collections. One Metrics value may
// be shared by every collection of a process; series are labelled by
// collection name.
type Metrics struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	batchErrors *prometheus.CounterVec
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "redrec",
			Subsystem: "record",
			Name:      "operations_total",
			Help:      "Record operations by collection, operation and result.",
		}, []string{"collection", "op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "redrec",
			Subsystem: "record",
			Name:      "operation_duration_seconds",
			Help:      "Latency of record operations, including store round trips.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 9),
		}, []string{"collection", "op"}),
		batchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "redrec",
			Subsystem: "record",
			Name:      "batch_command_errors_total",
			Help:      "Failed commands inside otherwise delivered batches.",
		}, []string{"collection"}),
	}
}

// Register adds the collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.operations, m.duration, m.batchErrors} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// observe records one finished operation. Nil receivers are no-ops.
func (m *Metrics) observe(collection, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(collection, op).Observe(time.Since(start).Seconds())
	m.operations.WithLabelValues(collection, op, resultLabel(err)).Inc()
	var be *BatchError
	if errors.As(err, &be) {
		m.batchErrors.WithLabelValues(collection).Add(float64(len(be.Errs)))
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsValidationError(err):
		return "invalid"
	case IsBatchError(err):
		return "partial"
	case IsWriteConflict(err):
		return "conflict"
	case IsStoreUnavailable(err):
		return "unavailable"
	default:
		return "error"
	}
}
