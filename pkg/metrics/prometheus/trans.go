// Package prometheus provides the Prometheus-backed implementations of the
// metrics interfaces pkg/metrics declares, registering each constructor
// with pkg/metrics at init time so pkg/metrics itself never imports
// prometheus directly — the same indirection the teacher's
// pkg/metrics/prometheus package uses for cache/S3/Badger metrics.
//
// cmd/dce2watch blank-imports this package to trigger registration.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/flowguard/dce2smb/pkg/metrics"
)

func init() {
	metrics.RegisterTransMetricsConstructor(newTransMetrics)
}

type transMetrics struct {
	dispositions  *prometheus.CounterVec
	fragmentBytes *prometheus.HistogramVec
}

func newTransMetrics() metrics.TransMetrics {
	reg := metrics.GetRegistry()

	return &transMetrics{
		dispositions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dce2watch_trans_disposition_total",
				Help: "Total PDUs processed by the transaction tracker, by family, direction, and disposition",
			},
			[]string{"family", "direction", "disposition"},
		),
		fragmentBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dce2watch_trans_fragment_bytes",
				Help: "Size in bytes of each data/parameter fragment buffered by the reassembly engine",
				Buckets: []float64{
					32, 128, 512, 1024, 4096, 16384, 65536,
				},
			},
			[]string{"family", "stream"},
		),
	}
}

func (m *transMetrics) RecordDisposition(family, direction, disposition string) {
	if m == nil {
		return
	}
	m.dispositions.WithLabelValues(family, direction, disposition).Inc()
}

func (m *transMetrics) RecordFragmentBytes(family, stream string, bytes int) {
	if m == nil {
		return
	}
	m.fragmentBytes.WithLabelValues(family, stream).Observe(float64(bytes))
}
