package metrics

// TransMetrics observes the Transaction Tracker's lifecycle: what
// disposition each TRANSACTION/TRANSACTION2/NT_TRANSACT PDU produced, and
// how many fragment bytes flowed through the reassembly buffers.
//
// A nil TransMetrics is valid and every call on it is a no-op — pass nil to
// disable metrics collection with zero overhead, the same contract the
// teacher's cache.CacheMetrics/NFSMetrics interfaces use.
type TransMetrics interface {
	// RecordDisposition records the outcome of one primary or secondary
	// PDU for the given family ("TRANSACTION", "TRANSACTION2",
	// "NT_TRANSACT"), direction ("request" or "response"), and disposition
	// ("SUCCESS", "FULL", "IGNORE", "ERROR").
	RecordDisposition(family, direction, disposition string)

	// RecordFragmentBytes records the size of one data or parameter
	// fragment buffered by the request or secondary fragment ingestor.
	//
	// stream is "data" or "param".
	RecordFragmentBytes(family, stream string, bytes int)
}

// NewTransMetrics returns a Prometheus-backed TransMetrics, or nil if
// InitRegistry has not been called.
func NewTransMetrics() TransMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusTransMetrics()
}

// newPrometheusTransMetrics is supplied by pkg/metrics/prometheus/trans.go
// at init time via RegisterTransMetricsConstructor.
var newPrometheusTransMetrics func() TransMetrics

// RegisterTransMetricsConstructor registers the Prometheus TransMetrics
// constructor. Called by pkg/metrics/prometheus during package init.
func RegisterTransMetricsConstructor(constructor func() TransMetrics) {
	newPrometheusTransMetrics = constructor
}
