package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Checks   *prometheus.CounterVec
	Rejected *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Checks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "qualtrack_ratelimit_checks_total",
			Help: "Rate limit checks by key kind",
		}, []string{"kind"}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "qualtrack_ratelimit_rejections_total",
			Help: "Requests refused by the rate limiter by key kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) ObserveCheck(kind string, allowed bool) {
	if m == nil {
		return
	}
	m.Checks.WithLabelValues(kind).Inc()
	if !allowed {
		m.Rejected.WithLabelValues(kind).Inc()
	}
}
