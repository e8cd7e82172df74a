package metrics

// AlertMetrics counts alerts raised by the reassembly engine, broken down
// by kind. A nil AlertMetrics is valid; every call on it is a no-op.
type AlertMetrics interface {
	// RecordAlert increments the counter for the given alert kind name
	// (e.g. "SMB_EVASIVE_FILE_ATTRS", "SMB_UNUSUAL_COMMAND_USED").
	RecordAlert(kind string)
}

// NewAlertMetrics returns a Prometheus-backed AlertMetrics, or nil if
// InitRegistry has not been called.
func NewAlertMetrics() AlertMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusAlertMetrics()
}

// newPrometheusAlertMetrics is supplied by pkg/metrics/prometheus/alerts.go
// at init time via RegisterAlertMetricsConstructor.
var newPrometheusAlertMetrics func() AlertMetrics

// RegisterAlertMetricsConstructor registers the Prometheus AlertMetrics
// constructor. Called by pkg/metrics/prometheus during package init.
func RegisterAlertMetricsConstructor(constructor func() AlertMetrics) {
	newPrometheusAlertMetrics = constructor
}
