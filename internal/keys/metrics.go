package keys

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by Service. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	validations *prometheus.CounterVec
	issued      *prometheus.CounterVec
	mutations   *prometheus.CounterVec
	storeOps    *prometheus.HistogramVec
}

// NewMetrics registers the key service collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		validations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "key",
			Name:      "validations_total",
			Help:      "Key validations by outcome.",
		}, []string{"outcome"}),
		issued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "key",
			Name:      "issued_total",
			Help:      "Issuance requests by kind and whether a new key was created.",
		}, []string{"kind", "created"}),
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "key",
			Name:      "admin_mutations_total",
			Help:      "Administrative mutations by action.",
		}, []string{"action"}),
		storeOps: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "key",
			Name:      "store_operation_duration_seconds",
			Help:      "Latency of key store transactions, including lock wait.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
	}
}

func (m *Metrics) validation(outcome string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) issue(kind string, created bool) {
	if m == nil {
		return
	}
	c := "false"
	if created {
		c = "true"
	}
	m.issued.WithLabelValues(kind, c).Inc()
}

func (m *Metrics) mutation(action string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(action).Inc()
}

func (m *Metrics) storeOp(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.storeOps.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}
