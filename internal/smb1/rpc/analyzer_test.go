package rpc

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

var testAbstractSyntax = SyntaxID{UUID: [16]byte{1, 2, 3, 4}, Version: 1}

func buildBindRequest(callID uint32, contextID uint16) []byte {
	buf := make([]byte, 72)
	buf[2] = PDUBind
	buf[3] = FlagFirstFrag | FlagLastFrag
	buf[4] = 0x10
	binary.LittleEndian.PutUint16(buf[8:10], 72)
	binary.LittleEndian.PutUint32(buf[12:16], callID)

	binary.LittleEndian.PutUint16(buf[16:18], 4280)
	binary.LittleEndian.PutUint16(buf[18:20], 4280)
	buf[24] = 1 // num contexts

	binary.LittleEndian.PutUint16(buf[28:30], contextID)
	buf[30] = 1
	copy(buf[32:48], testAbstractSyntax.UUID[:])
	binary.LittleEndian.PutUint32(buf[48:52], testAbstractSyntax.Version)
	binary.LittleEndian.PutUint32(buf[68:72], 2)

	return buf
}

func buildBindAck(callID uint32, result uint16) []byte {
	secAddr := "\\PIPE\\srvsvc"
	secAddrLen := len(secAddr) + 1
	off := 26 + secAddrLen
	pad := (4 - (off % 4)) % 4
	fragLen := off + pad + 4 + 24

	buf := make([]byte, fragLen)
	buf[2] = PDUBindAck
	buf[3] = FlagFirstFrag | FlagLastFrag
	buf[4] = 0x10
	binary.LittleEndian.PutUint16(buf[8:10], uint16(fragLen))
	binary.LittleEndian.PutUint32(buf[12:16], callID)

	binary.LittleEndian.PutUint16(buf[16:18], 4280)
	binary.LittleEndian.PutUint16(buf[18:20], 4280)

	p := 24
	binary.LittleEndian.PutUint16(buf[p:p+2], uint16(secAddrLen))
	p += 2
	copy(buf[p:], secAddr)
	p += secAddrLen + pad

	buf[p] = 1 // num results
	p += 4

	binary.LittleEndian.PutUint16(buf[p:p+2], result)
	return buf
}

func buildRPCRequest(callID uint32, contextID, opnum uint16, stub []byte) []byte {
	fragLen := HeaderSize + 8 + len(stub)
	buf := make([]byte, fragLen)
	buf[2] = PDURequest
	buf[3] = FlagFirstFrag | FlagLastFrag
	buf[4] = 0x10
	binary.LittleEndian.PutUint16(buf[8:10], uint16(fragLen))
	binary.LittleEndian.PutUint32(buf[12:16], callID)

	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(stub)))
	binary.LittleEndian.PutUint16(buf[20:22], contextID)
	binary.LittleEndian.PutUint16(buf[22:24], opnum)
	copy(buf[24:], stub)

	return buf
}

func buildRPCResponse(callID uint32, stub []byte) []byte {
	fragLen := HeaderSize + 8 + len(stub)
	buf := make([]byte, fragLen)
	buf[2] = PDUResponse
	buf[3] = FlagFirstFrag | FlagLastFrag
	buf[4] = 0x10
	binary.LittleEndian.PutUint16(buf[8:10], uint16(fragLen))
	binary.LittleEndian.PutUint32(buf[12:16], callID)

	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(stub)))
	copy(buf[24:], stub)

	return buf
}

func TestAnalyzerTracksBindAndCallLifecycle(t *testing.T) {
	a := NewAnalyzer()

	require.NoError(t, a.ProcessRequest("sess1", buildBindRequest(1, 0)))
	require.NoError(t, a.ProcessResponse("sess1", buildBindAck(1, 0)))
	require.True(t, a.IsBound("sess1", 0))

	require.NoError(t, a.ProcessRequest("sess1", buildRPCRequest(2, 0, 15, []byte("stub"))))
	require.Equal(t, 1, a.PendingCalls("sess1"))

	require.NoError(t, a.ProcessResponse("sess1", buildRPCResponse(2, []byte("result"))))
	require.Equal(t, 0, a.PendingCalls("sess1"))
}

func TestAnalyzerFaultClearsPendingCall(t *testing.T) {
	a := NewAnalyzer()

	require.NoError(t, a.ProcessRequest("sess2", buildRPCRequest(5, 0, 1, nil)))
	require.Equal(t, 1, a.PendingCalls("sess2"))

	fault := make([]byte, HeaderSize)
	fault[2] = PDUFault
	binary.LittleEndian.PutUint16(fault[8:10], HeaderSize)
	binary.LittleEndian.PutUint32(fault[12:16], 5)
	require.NoError(t, a.ProcessResponse("sess2", fault))

	require.Equal(t, 0, a.PendingCalls("sess2"))
}

func TestAnalyzerIgnoresShortWrites(t *testing.T) {
	a := NewAnalyzer()
	require.NoError(t, a.ProcessRequest("sess3", []byte{0x01, 0x02}))
	require.NoError(t, a.ProcessResponse("sess3", nil))
	require.Equal(t, 0, a.PendingCalls("sess3"))
}

func TestForgetSessionDropsState(t *testing.T) {
	a := NewAnalyzer()
	require.NoError(t, a.ProcessRequest("sess4", buildRPCRequest(9, 0, 1, nil)))
	require.Equal(t, 1, a.PendingCalls("sess4"))

	a.ForgetSession("sess4")
	require.Equal(t, 0, a.PendingCalls("sess4"))
}
