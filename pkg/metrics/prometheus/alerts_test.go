package prometheus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowguard/dce2smb/pkg/metrics"
)

func TestAlertMetricsRecordsByKind(t *testing.T) {
	metrics.Reset()
	metrics.InitRegistry()

	m := metrics.NewAlertMetrics()
	require.NotNil(t, m)

	m.RecordAlert("UnusualCommandUsed")
	m.RecordAlert("UnusualCommandUsed")
	m.RecordAlert("DeprecatedCommandUsed")

	families, err := metrics.GetRegistry().Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() != "dce2watch_alerts_raised_total" {
			continue
		}
		found = true
		for _, mf := range f.GetMetric() {
			var kind string
			for _, lbl := range mf.GetLabel() {
				if lbl.GetName() == "kind" {
					kind = lbl.GetValue()
				}
			}
			switch kind {
			case "UnusualCommandUsed":
				require.Equal(t, float64(2), mf.GetCounter().GetValue())
			case "DeprecatedCommandUsed":
				require.Equal(t, float64(1), mf.GetCounter().GetValue())
			}
		}
	}
	require.True(t, found)
}

func TestAlertMetricsNilReceiverIsNoOp(t *testing.T) {
	var m *alertMetrics
	require.NotPanics(t, func() {
		m.RecordAlert("UnusualCommandUsed")
	})
}
