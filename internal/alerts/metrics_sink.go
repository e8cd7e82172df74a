package alerts

import "github.com/flowguard/dce2smb/pkg/metrics"

// MetricsSink wraps another Sink and additionally counts every alert by
// kind through metrics.AlertMetrics, the way a production deployment
// chains a logging sink with a counting one rather than choosing between
// them.
type MetricsSink struct {
	Next    Sink
	Metrics metrics.AlertMetrics
}

// NewMetricsSink returns a Sink that forwards to next and records each
// alert's kind via m. Either may be nil: a nil next drops alerts after
// counting them, a nil m just forwards.
func NewMetricsSink(next Sink, m metrics.AlertMetrics) MetricsSink {
	return MetricsSink{Next: next, Metrics: m}
}

// Raise counts a's kind, then forwards to the wrapped sink if any.
func (s MetricsSink) Raise(a Alert) {
	if s.Metrics != nil {
		s.Metrics.RecordAlert(a.Kind.String())
	}
	if s.Next != nil {
		s.Next.Raise(a)
	}
}
