package alerts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	alerts []Alert
}

func (s *fakeSink) Raise(a Alert) { s.alerts = append(s.alerts, a) }

type fakeAlertMetrics struct {
	kinds []string
}

func (m *fakeAlertMetrics) RecordAlert(kind string) { m.kinds = append(m.kinds, kind) }

func TestMetricsSinkForwardsAndCounts(t *testing.T) {
	next := &fakeSink{}
	fm := &fakeAlertMetrics{}
	sink := NewMetricsSink(next, fm)

	sink.Raise(Alert{Kind: UnusualCommandUsed, SessionID: "s1", Command: "TRANSACTION"})

	require.Len(t, next.alerts, 1)
	require.Equal(t, UnusualCommandUsed, next.alerts[0].Kind)
	require.Equal(t, []string{"SMB_UNUSUAL_COMMAND_USED"}, fm.kinds)
}

func TestMetricsSinkNilMetricsStillForwards(t *testing.T) {
	next := &fakeSink{}
	sink := NewMetricsSink(next, nil)

	sink.Raise(Alert{Kind: DcntZero})

	require.Len(t, next.alerts, 1)
}

func TestMetricsSinkNilNextStillCounts(t *testing.T) {
	fm := &fakeAlertMetrics{}
	sink := NewMetricsSink(nil, fm)

	require.NotPanics(t, func() {
		sink.Raise(Alert{Kind: EvasiveFileAttrs})
	})
	require.Equal(t, []string{"SMB_EVASIVE_FILE_ATTRS"}, fm.kinds)
}
