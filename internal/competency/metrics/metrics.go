package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks record lifecycle transitions and engine latency.
type Metrics struct {
	RecordsCreated    prometheus.Counter
	RecordsDeleted    prometheus.Counter
	Transitions       *prometheus.CounterVec
	ReviewOutcomes    *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// New registers the competency metrics with the default registry. Call once.
func New() *Metrics {
	return &Metrics{
		RecordsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "qualtrack_records_created_total",
			Help: "Total number of competency records created",
		}),
		RecordsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "qualtrack_records_deleted_total",
			Help: "Total number of competency records deleted",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "qualtrack_record_transitions_total",
			Help: "Record status transitions by from and to status",
		}, []string{"from", "to"}),
		ReviewOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "qualtrack_record_reviews_total",
			Help: "Record review outcomes",
		}, []string{"outcome"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qualtrack_record_operation_duration_seconds",
			Help:    "Duration of lifecycle engine operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementCreated() {
	m.RecordsCreated.Inc()
}

func (m *Metrics) IncrementDeleted() {
	m.RecordsDeleted.Inc()
}

// ObserveTransition counts a status change. Unchanged statuses are ignored.
func (m *Metrics) ObserveTransition(from, to string) {
	if from == to {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncrementReview(outcome string) {
	m.ReviewOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveOperation records how long op took. Call with time.Now() at the start.
func (m *Metrics) ObserveOperation(op string, start time.Time) {
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
