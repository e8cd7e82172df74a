package trans

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowguard/dce2smb/internal/alerts"
	"github.com/flowguard/dce2smb/internal/policy"
	"github.com/flowguard/dce2smb/internal/smb1/types"
)

const testPDUBase = 32

func newTestSession(p policy.Target) (*Session, *fakeFileStore, *fakeRPC, *fakeSink) {
	files := newFakeFileStore()
	rpc := &fakeRPC{}
	sink := &fakeSink{}
	return NewSession(p, files, rpc, sink), files, rpc, sink
}

func TestLANMANWordCountSuppression(t *testing.T) {
	s, _, _, _ := newTestSession(policy.Windows)
	ci := ComInfo{WordCount: 10, CanProcess: true}
	disp := s.Transaction(1, 0, 0, 0, ci, testPDUBase, testPDUBase, nil, nil, false)
	require.Equal(t, types.DispositionIgnore, disp)
}

func TestSetNmpipeStatePipeModeChange(t *testing.T) {
	s, files, _, _ := newTestSession(policy.Windows)
	files.Create(&FileEntry{UID: 1, TID: 2, FID: 3, PipeByteMode: false})

	words := buildReqWords(2, 0, reqFlagOneWay, 2, testPDUBase, 0, 0, []uint16{types.TransSetNmpipeState, 3})
	bytesBlock := []byte{0x00, 0x00} // pipe state: message-mode bit clear

	ci := ComInfo{WordCount: 16, ByteCount: uint16(len(bytesBlock)), CanProcess: true}
	disp := s.Transaction(10, 1, 2, 3, ci, testPDUBase, testPDUBase+len(bytesBlock), words, bytesBlock, false)
	require.Equal(t, types.DispositionSuccess, disp)

	entry, ok := files.Find(1, 2, 3)
	require.True(t, ok)
	require.True(t, entry.PipeByteMode)
}

func TestTransactNmpipeFragmentedRoundTrip(t *testing.T) {
	s, _, rpc, _ := newTestSession(policy.Windows)

	// Request side: 6 total data bytes split 3+3 across primary+secondary.
	reqWords := buildReqWords(0, 6, 0, 0, 0, 3, testPDUBase, []uint16{types.TransTransactNmpipe, 3})
	disp := s.Transaction(20, 1, 2, 3, ComInfo{WordCount: 16, ByteCount: 3, CanProcess: true},
		testPDUBase, testPDUBase+3, reqWords, []byte("ABC"), false)
	require.Equal(t, types.DispositionSuccess, disp)

	secWords := buildSecWords(0, 6, 0, 0, 0, 3, testPDUBase, 3)
	disp = s.TransactionSecondary(20, ComInfo{ByteCount: 3, CanProcess: true},
		testPDUBase, testPDUBase+3, secWords, []byte("DEF"))
	require.Equal(t, types.DispositionSuccess, disp)
	require.Equal(t, []byte("ABCDEF"), rpc.requests[0])

	// Response side: 8 bytes delivered in a single fragment.
	respWords := buildSecWords(0, 8, 0, 0, 0, 8, testPDUBase, 0)
	disp = s.Transaction(20, 1, 2, 3, ComInfo{ByteCount: 8, CanProcess: true, IsResponse: true},
		testPDUBase, testPDUBase+8, respWords, []byte("RESPDATA"), false)
	require.Equal(t, types.DispositionSuccess, disp)
	require.Equal(t, []byte("RESPDATA"), rpc.responses[0])

	_, ok := s.tracker(20)
	require.False(t, ok, "tracker must be retired once the response completes")
}

func TestInterimResponseIsNoOp(t *testing.T) {
	s, _, rpc, _ := newTestSession(policy.Windows)

	reqWords := buildReqWords(0, 6, 0, 0, 0, 3, testPDUBase, []uint16{types.TransTransactNmpipe, 3})
	disp := s.Transaction(70, 1, 2, 3, ComInfo{WordCount: 16, ByteCount: 3, CanProcess: true},
		testPDUBase, testPDUBase+3, reqWords, []byte("ABC"), false)
	require.Equal(t, types.DispositionSuccess, disp)

	interimCI := ComInfo{CommandSize: types.InterimResponseCommandSize, CanProcess: true, IsResponse: true}
	disp = s.Transaction(70, 1, 2, 3, interimCI, testPDUBase, testPDUBase, nil, nil, false)
	require.Equal(t, types.DispositionSuccess, disp)

	tr, ok := s.tracker(70)
	require.True(t, ok, "interim response must not retire or otherwise disturb the tracker")
	require.Equal(t, SideRequest, tr.Side)
	require.Equal(t, StateReqPartial, tr.State)

	secWords := buildSecWords(0, 6, 0, 0, 0, 3, testPDUBase, 3)
	disp = s.TransactionSecondary(70, ComInfo{ByteCount: 3, CanProcess: true},
		testPDUBase, testPDUBase+3, secWords, []byte("DEF"))
	require.Equal(t, types.DispositionSuccess, disp)
	require.Equal(t, []byte("ABCDEF"), rpc.requests[0])
}

func TestSambaNameCheckRejectsNonPipeName(t *testing.T) {
	s, _, _, _ := newTestSession(policy.Samba)

	name := append([]byte(`\BADNAME`), 0x00)
	params := []byte{0x00, 0x01}
	bytesBlock := append(append([]byte{}, name...), params...)
	poff := testPDUBase + len(name)

	words := buildReqWords(2, 0, 0, uint16(len(params)), uint16(poff), 0, 0,
		[]uint16{types.TransSetNmpipeState, 3})
	ci := ComInfo{WordCount: 16, ByteCount: uint16(len(bytesBlock)), CanProcess: true}
	disp := s.Transaction(30, 1, 2, 3, ci, testPDUBase, testPDUBase+len(bytesBlock), words, bytesBlock, false)
	require.Equal(t, types.DispositionError, disp)
}

func TestOpen2CreatesFileEntryOnResponse(t *testing.T) {
	s, files, _, _ := newTestSession(policy.Windows)

	params := make([]byte, 37)
	copy(params[28:], []byte("FILE.TXT"))
	words := buildReqWords(uint16(len(params)), 0, 0, uint16(len(params)), testPDUBase, 0, 0,
		[]uint16{types.Trans2Open2})
	ci := ComInfo{ByteCount: uint16(len(params)), CanProcess: true}
	disp := s.Transaction2(40, 5, 6, 0, ci, testPDUBase, testPDUBase+len(params), words, params, false)
	require.Equal(t, types.DispositionSuccess, disp)

	respParams := make([]byte, 20)
	respParams[0], respParams[1] = 42, 0                                                   // FID
	respParams[8], respParams[9], respParams[10], respParams[11] = 0x00, 0x04, 0x00, 0x00 // FileDataSize: 1024 LE
	respParams[18] = open2ActionOpenExisting                                              // Action: existing file opened
	respWords := buildSecWords(uint16(len(respParams)), 0, uint16(len(respParams)), testPDUBase, 0, 0, 0, 0)
	disp = s.Transaction2(40, 5, 6, 0, ComInfo{ByteCount: uint16(len(respParams)), CanProcess: true, IsResponse: true},
		testPDUBase, testPDUBase+len(respParams), respWords, respParams, false)
	require.Equal(t, types.DispositionSuccess, disp)

	entry, ok := files.Get(42)
	require.True(t, ok)
	require.Equal(t, "FILE.TXT", entry.FileName)
	require.Equal(t, uint64(1024), entry.FileSize)
}

func TestOpen2EvasiveAttrsRaisesAlert(t *testing.T) {
	s, _, _, sink := newTestSession(policy.Windows)

	params := make([]byte, 37)
	params[open2ReqFileAttrsOff], params[open2ReqFileAttrsOff+1] = 0x02, 0x00 // HIDDEN
	copy(params[28:], []byte("SECRET.EXE"))
	words := buildReqWords(uint16(len(params)), 0, 0, uint16(len(params)), testPDUBase, 0, 0,
		[]uint16{types.Trans2Open2})
	ci := ComInfo{ByteCount: uint16(len(params)), CanProcess: true}
	disp := s.Transaction2(41, 5, 6, 0, ci, testPDUBase, testPDUBase+len(params), words, params, false)
	require.Equal(t, types.DispositionSuccess, disp)

	require.Len(t, sink.alerts, 1)
	require.Equal(t, alerts.EvasiveFileAttrs, sink.alerts[0].Kind)
}

func TestOpen2SkipsEvasiveCheckOnIPCTID(t *testing.T) {
	s, files, _, sink := newTestSession(policy.Windows)
	files.SetIPCTID(6)

	params := make([]byte, 37)
	params[open2ReqFileAttrsOff], params[open2ReqFileAttrsOff+1] = 0x02, 0x00 // HIDDEN, but on an IPC TID
	words := buildReqWords(uint16(len(params)), 0, 0, uint16(len(params)), testPDUBase, 0, 0,
		[]uint16{types.Trans2Open2})
	ci := ComInfo{ByteCount: uint16(len(params)), CanProcess: true}
	disp := s.Transaction2(42, 5, 6, 0, ci, testPDUBase, testPDUBase+len(params), words, params, false)
	require.Equal(t, types.DispositionSuccess, disp)
	require.Empty(t, sink.alerts)

	respParams := make([]byte, 20)
	respParams[0], respParams[1] = 77, 0
	respWords := buildSecWords(uint16(len(respParams)), 0, uint16(len(respParams)), testPDUBase, 0, 0, 0, 0)
	disp = s.Transaction2(42, 5, 6, 0, ComInfo{ByteCount: uint16(len(respParams)), CanProcess: true, IsResponse: true},
		testPDUBase, testPDUBase+len(respParams), respWords, respParams, false)
	require.Equal(t, types.DispositionSuccess, disp)

	entry, ok := files.Get(77)
	require.True(t, ok)
	require.True(t, entry.IsIPC)
	require.Equal(t, uint64(0), entry.FileSize)
}

func TestSetFileInfoBasicInfoRaisesAlertAndIgnores(t *testing.T) {
	s, _, _, sink := newTestSession(policy.Windows)

	params := make([]byte, 4)
	binary.LittleEndian.PutUint16(params[0:2], 9) // FID
	binary.LittleEndian.PutUint16(params[2:4], types.InfoSetFileBasicInfo)
	data := make([]byte, 40)
	binary.LittleEndian.PutUint32(data[setFileBasicInfoAttrsOff:setFileBasicInfoAttrsOff+4], types.FileAttrHidden)

	words := buildReqWords(uint16(len(params)), uint16(len(data)), 0,
		uint16(len(params)), testPDUBase, uint16(len(data)), uint16(testPDUBase+len(params)), []uint16{types.Trans2SetFileInformation})
	bytesBlock := append(append([]byte{}, params...), data...)
	ci := ComInfo{ByteCount: uint16(len(bytesBlock)), CanProcess: true}
	disp := s.Transaction2(43, 1, 2, 0, ci, testPDUBase, testPDUBase+len(bytesBlock), words, bytesBlock, false)
	require.Equal(t, types.DispositionIgnore, disp)

	require.Len(t, sink.alerts, 1)
	require.Equal(t, alerts.EvasiveFileAttrs, sink.alerts[0].Kind)
}

func TestSetFileInfoEndOfFileCommitsOnSuccessResponse(t *testing.T) {
	s, files, _, _ := newTestSession(policy.Windows)
	files.Create(&FileEntry{UID: 1, TID: 2, FID: 9, FileSize: 100})

	params := make([]byte, 4)
	binary.LittleEndian.PutUint16(params[0:2], 9)
	binary.LittleEndian.PutUint16(params[2:4], types.InfoSetFileEndOfFile)
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, 4096)

	words := buildReqWords(uint16(len(params)), uint16(len(data)), 0,
		uint16(len(params)), testPDUBase, uint16(len(data)), uint16(testPDUBase+len(params)), []uint16{types.Trans2SetFileInformation})
	bytesBlock := append(append([]byte{}, params...), data...)
	ci := ComInfo{ByteCount: uint16(len(bytesBlock)), CanProcess: true}
	disp := s.Transaction2(44, 1, 2, 0, ci, testPDUBase, testPDUBase+len(bytesBlock), words, bytesBlock, false)
	require.Equal(t, types.DispositionSuccess, disp)

	respParams := []byte{0x00, 0x00}
	respWords := buildSecWords(uint16(len(respParams)), 0, uint16(len(respParams)), testPDUBase, 0, 0, 0, 0)
	disp = s.Transaction2(44, 1, 2, 0, ComInfo{ByteCount: uint16(len(respParams)), CanProcess: true, IsResponse: true},
		testPDUBase, testPDUBase+len(respParams), respWords, respParams, false)
	require.Equal(t, types.DispositionSuccess, disp)

	entry, ok := files.Get(9)
	require.True(t, ok)
	require.Equal(t, uint64(4096), entry.FileSize)
}

func TestQueryFileInfoIgnoresUploadDirectionEntry(t *testing.T) {
	s, files, _, _ := newTestSession(policy.Windows)
	files.Create(&FileEntry{UID: 1, TID: 2, FID: 9, FileDirection: FileDirectionUpload})

	params := make([]byte, 4)
	binary.LittleEndian.PutUint16(params[0:2], 9)
	binary.LittleEndian.PutUint16(params[2:4], types.InfoQueryFileStandardInfo)
	words := buildReqWords(uint16(len(params)), 0, 0, uint16(len(params)), testPDUBase, 0, 0,
		[]uint16{types.Trans2QueryFileInformation})
	ci := ComInfo{ByteCount: uint16(len(params)), CanProcess: true}
	disp := s.Transaction2(45, 1, 2, 0, ci, testPDUBase, testPDUBase+len(params), words, params, false)
	require.Equal(t, types.DispositionIgnore, disp)
}

func TestNTCreateSequentialOnlyPreemption(t *testing.T) {
	s, files, _, _ := newTestSession(policy.Windows)

	params := make([]byte, 52)
	binary := func(off int, v uint32) {
		params[off], params[off+1], params[off+2], params[off+3] =
			byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	}
	binary(32, types.CreateOptionSequentialOnly)
	binary(36, 7)
	copy(params[45:52], []byte("SEQ.DAT"))

	words := buildNTReqWords(uint32(len(params)), 0, uint32(len(params)), testPDUBase, 0, 0,
		types.NtTransactCreate, 0)
	ci := ComInfo{ByteCount: uint16(len(params)), CanProcess: true}
	disp := s.NtTransact(50, 7, 8, 0, ci, testPDUBase, testPDUBase+len(params), words, params, false)
	require.Equal(t, types.DispositionSuccess, disp)

	respParams := make([]byte, 60)
	respParams[2], respParams[3] = 99, 0
	respParams[4] = createActionOpened // existing file opened: size comes from EndOfFile
	respParams[44] = 43                // 555 LE in the low byte: 0x022B -> low=0x2B(43), next=0x02
	respParams[45] = 2
	respWords := buildNTSecWords(uint32(len(respParams)), 0, uint32(len(respParams)), testPDUBase, 0, 0, 0, 0)
	disp = s.NtTransact(50, 7, 8, 0, ComInfo{ByteCount: uint16(len(respParams)), CanProcess: true, IsResponse: true},
		testPDUBase, testPDUBase+len(respParams), respWords, respParams, false)
	require.Equal(t, types.DispositionSuccess, disp)

	require.Contains(t, files.aborted, s.ID)
	entry, ok := files.Get(99)
	require.True(t, ok)
	require.Equal(t, "SEQ.DAT", entry.FileName)
	require.Equal(t, uint64(555), entry.FileSize)
	require.True(t, entry.SequentialOnly)
}

func TestInvalidSetupCountRaisesAlertAndErrors(t *testing.T) {
	s, _, _, sink := newTestSession(policy.Windows)

	words := buildReqWords(0, 0, 0, 0, 0, 0, 0, []uint16{types.TransSetNmpipeState, 0})
	words[26] = 1 // lie: WCT implies 2 setup words, SetupCount claims 1
	ci := ComInfo{WordCount: 16, ByteCount: 0, CanProcess: true}
	disp := s.Transaction(60, 1, 2, 3, ci, testPDUBase, testPDUBase, words, nil, false)
	require.Equal(t, types.DispositionError, disp)

	require.Len(t, sink.alerts, 1)
	require.Equal(t, alerts.InvalidSetupCount, sink.alerts[0].Kind)
}

func TestCannotProcessCommandIsAlwaysAnError(t *testing.T) {
	s, _, _, _ := newTestSession(policy.Windows)
	ci := ComInfo{CanProcess: false}
	require.Equal(t, types.DispositionError, s.Transaction(1, 0, 0, 0, ci, 0, 0, nil, nil, false))
	require.Equal(t, types.DispositionError, s.Transaction2(1, 0, 0, 0, ci, 0, 0, nil, nil, false))
	require.Equal(t, types.DispositionError, s.NtTransact(1, 0, 0, 0, ci, 0, 0, nil, nil, false))
	require.Equal(t, types.DispositionError, s.TransactionSecondary(1, ci, 0, 0, nil, nil))
	require.Equal(t, types.DispositionError, s.Transaction2Secondary(1, ci, 0, 0, nil, nil))
	require.Equal(t, types.DispositionError, s.NtTransactSecondary(1, ci, 0, 0, nil, nil))
}
