package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts permission requests and the role changes they cause.
type Metrics struct {
	RequestsSubmitted *prometheus.CounterVec
	RequestsReviewed  *prometheus.CounterVec
	RoleChanges       *prometheus.CounterVec
}

// New registers the permission metrics with the default registry. Call once.
func New() *Metrics {
	return &Metrics{
		RequestsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "qualtrack_permission_requests_submitted_total",
			Help: "Permission requests submitted by requested role",
		}, []string{"requested_role"}),
		RequestsReviewed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "qualtrack_permission_requests_reviewed_total",
			Help: "Permission request reviews by outcome",
		}, []string{"outcome"}),
		RoleChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "qualtrack_role_changes_total",
			Help: "Holder role changes applied by approved requests",
		}, []string{"from", "to"}),
	}
}

func (m *Metrics) IncrementSubmitted(requested string) {
	m.RequestsSubmitted.WithLabelValues(requested).Inc()
}

func (m *Metrics) IncrementReviewed(outcome string) {
	m.RequestsReviewed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementRoleChange(from, to string) {
	m.RoleChanges.WithLabelValues(from, to).Inc()
}
