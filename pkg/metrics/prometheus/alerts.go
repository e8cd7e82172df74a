package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/flowguard/dce2smb/pkg/metrics"
)

func init() {
	metrics.RegisterAlertMetricsConstructor(newAlertMetrics)
}

type alertMetrics struct {
	raised *prometheus.CounterVec
}

func newAlertMetrics() metrics.AlertMetrics {
	reg := metrics.GetRegistry()

	return &alertMetrics{
		raised: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dce2watch_alerts_raised_total",
				Help: "Total alerts raised by the reassembly engine, by kind",
			},
			[]string{"kind"},
		),
	}
}

func (m *alertMetrics) RecordAlert(kind string) {
	if m == nil {
		return
	}
	m.raised.WithLabelValues(kind).Inc()
}
