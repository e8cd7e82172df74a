package prometheus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowguard/dce2smb/pkg/metrics"
)

func TestTransMetricsRecordsDisposition(t *testing.T) {
	metrics.Reset()
	metrics.InitRegistry()

	m := metrics.NewTransMetrics()
	require.NotNil(t, m)

	m.RecordDisposition("TRANSACTION", "request", "SUCCESS")
	m.RecordDisposition("TRANSACTION", "request", "SUCCESS")
	m.RecordFragmentBytes("NT_TRANSACT", "data", 4096)

	families, err := metrics.GetRegistry().Gather()
	require.NoError(t, err)

	var sawDispositions, sawFragmentBytes bool
	for _, f := range families {
		switch f.GetName() {
		case "dce2watch_trans_disposition_total":
			sawDispositions = true
			require.Equal(t, float64(2), f.GetMetric()[0].GetCounter().GetValue())
		case "dce2watch_trans_fragment_bytes":
			sawFragmentBytes = true
			require.Equal(t, uint64(1), f.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	require.True(t, sawDispositions)
	require.True(t, sawFragmentBytes)
}

func TestTransMetricsNilReceiverIsNoOp(t *testing.T) {
	var m *transMetrics
	require.NotPanics(t, func() {
		m.RecordDisposition("TRANSACTION", "request", "SUCCESS")
		m.RecordFragmentBytes("TRANSACTION", "data", 10)
	})
}
