package trans

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowguard/dce2smb/internal/policy"
	"github.com/flowguard/dce2smb/internal/smb1/types"
)

type recordedDisposition struct {
	family, direction, disposition string
}

type recordedFragment struct {
	family, stream string
	bytes          int
}

type fakeTransMetrics struct {
	dispositions []recordedDisposition
	fragments    []recordedFragment
}

func (m *fakeTransMetrics) RecordDisposition(family, direction, disposition string) {
	m.dispositions = append(m.dispositions, recordedDisposition{family, direction, disposition})
}

func (m *fakeTransMetrics) RecordFragmentBytes(family, stream string, bytes int) {
	m.fragments = append(m.fragments, recordedFragment{family, stream, bytes})
}

func TestMetricsRecordsPrimaryDispositionAndFragmentBytes(t *testing.T) {
	s, _, _, _ := newTestSession(policy.Windows)
	fm := &fakeTransMetrics{}
	s.Metrics = fm

	reqWords := buildReqWords(0, 6, 0, 0, 0, 3, testPDUBase, []uint16{types.TransTransactNmpipe, 3})
	disp := s.Transaction(20, 1, 2, 3, ComInfo{WordCount: 16, ByteCount: 3, CanProcess: true},
		testPDUBase, testPDUBase+3, reqWords, []byte("ABC"), false)
	require.Equal(t, types.DispositionSuccess, disp)

	require.Equal(t, []recordedDisposition{{"TRANSACTION", "request", "SUCCESS"}}, fm.dispositions)
	require.Equal(t, []recordedFragment{{"TRANSACTION", "data", 3}}, fm.fragments)
}

func TestMetricsRecordsSecondaryDispositionAndFragmentBytes(t *testing.T) {
	s, _, _, _ := newTestSession(policy.Windows)
	fm := &fakeTransMetrics{}
	s.Metrics = fm

	reqWords := buildReqWords(0, 6, 0, 0, 0, 3, testPDUBase, []uint16{types.TransTransactNmpipe, 3})
	s.Transaction(20, 1, 2, 3, ComInfo{WordCount: 16, ByteCount: 3, CanProcess: true},
		testPDUBase, testPDUBase+3, reqWords, []byte("ABC"), false)
	fm.dispositions = nil
	fm.fragments = nil

	secWords := buildSecWords(0, 6, 0, 0, 0, 3, testPDUBase, 3)
	disp := s.TransactionSecondary(20, ComInfo{ByteCount: 3, CanProcess: true},
		testPDUBase, testPDUBase+3, secWords, []byte("DEF"))
	require.Equal(t, types.DispositionSuccess, disp)

	require.Equal(t, []recordedDisposition{{"TRANSACTION", "request", "FULL"}}, fm.dispositions)
	require.Equal(t, []recordedFragment{{"TRANSACTION", "data", 3}}, fm.fragments)
}

func TestMetricsNilIsNoOp(t *testing.T) {
	s, _, _, _ := newTestSession(policy.Windows)
	require.Nil(t, s.Metrics)

	reqWords := buildReqWords(0, 6, 0, 0, 0, 3, testPDUBase, []uint16{types.TransTransactNmpipe, 3})
	require.NotPanics(t, func() {
		s.Transaction(20, 1, 2, 3, ComInfo{WordCount: 16, ByteCount: 3, CanProcess: true},
			testPDUBase, testPDUBase+3, reqWords, []byte("ABC"), false)
	})
}
