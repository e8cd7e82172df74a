package outer

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowguard/dce2smb/internal/alerts"
	"github.com/flowguard/dce2smb/internal/filetracker"
	"github.com/flowguard/dce2smb/internal/policy"
	"github.com/flowguard/dce2smb/internal/smb1/header"
	"github.com/flowguard/dce2smb/internal/smb1/rpc"
	"github.com/flowguard/dce2smb/internal/smb1/trans"
)

func newConversation() (*Conversation, *filetracker.Store) {
	files := filetracker.New()
	sess := trans.NewSession(policy.Windows, files, rpc.NewAnalyzer(), alerts.NewLoggerSink())
	return NewConversation(sess, files), files
}

func putSMBHeader(buf []byte, command uint8, flags2 uint16, tid, uid, mid uint16) {
	copy(buf[0:4], header.ProtocolID[:])
	buf[4] = command
	binary.LittleEndian.PutUint16(buf[10:12], flags2)
	binary.LittleEndian.PutUint16(buf[24:26], tid)
	binary.LittleEndian.PutUint16(buf[28:30], uid)
	binary.LittleEndian.PutUint16(buf[30:32], mid)
}

// buildTreeConnectResponse builds a minimal TREE_CONNECT_ANDX response
// whose Service data field is "IPC".
func buildTreeConnectResponse(tid uint16) []byte {
	words := make([]byte, 1+7*2) // WordCount=7
	words[0] = 7
	data := []byte("IPC\x00")
	bcc := make([]byte, 2)
	binary.LittleEndian.PutUint16(bcc, uint16(len(data)))

	msg := make([]byte, header.Size+len(words)+2+len(data))
	putSMBHeader(msg, commandTreeConnectAndX, 0, tid, 1, 1)
	copy(msg[header.Size:], words)
	copy(msg[header.Size+len(words):], bcc)
	copy(msg[header.Size+len(words)+2:], data)
	return msg
}

func TestTreeConnectResponseMarksIPCTID(t *testing.T) {
	conv, files := newConversation()
	require.False(t, files.IsIPCTID(9))

	require.NoError(t, conv.HandleResponse(buildTreeConnectResponse(9)))
	require.True(t, files.IsIPCTID(9))
}

// buildSetNmpipeStateRequest builds a primary TRANSACTION request carrying
// SET_NMPIPE_STATE (subcom 0x0001), setup=2 words (subcommand, FID),
// pcnt=2 (the new pipe state), dcnt=0, with the one-way flag set so the
// new mode is committed without waiting for a response.
func buildSetNmpipeStateRequest(fid uint16) []byte {
	const wct = 16
	words := make([]byte, 1+wct*2)
	words[0] = wct

	binary.LittleEndian.PutUint16(words[1+0:], 2)  // TotalParameterCount
	binary.LittleEndian.PutUint16(words[1+2:], 0)  // TotalDataCount
	binary.LittleEndian.PutUint16(words[1+10:], 0x0002) // Flags: one-way
	binary.LittleEndian.PutUint16(words[1+18:], 2) // ParameterCount
	// ParameterOffset/DataOffset filled in below once pduBase is known.
	words[1+26] = 2 // SetupCount
	binary.LittleEndian.PutUint16(words[1+28:], 0x0001) // Setup[0] = SET_NMPIPE_STATE
	binary.LittleEndian.PutUint16(words[1+30:], fid)    // Setup[1] = FID

	pduBase := header.Size + len(words) + 2
	paramOff := pduBase
	param := []byte{0x00, 0x00} // byte mode

	binary.LittleEndian.PutUint16(words[1+20:], uint16(paramOff)) // ParameterOffset

	bcc := make([]byte, 2)
	binary.LittleEndian.PutUint16(bcc, uint16(len(param)))

	msg := make([]byte, pduBase+len(param))
	putSMBHeader(msg, 0x25, 0, 4, 1, 77)
	copy(msg[header.Size:], words)
	copy(msg[header.Size+len(words):], bcc)
	copy(msg[pduBase:], param)
	return msg
}

func TestSetNmpipeStateRequestReachesFileStore(t *testing.T) {
	conv, files := newConversation()
	files.Create(&trans.FileEntry{UID: 1, TID: 4, FID: 0x10})

	require.NoError(t, conv.HandleRequest(buildSetNmpipeStateRequest(0x10)))

	entry, ok := files.Find(1, 4, 0x10)
	require.True(t, ok)
	require.True(t, entry.PipeByteMode)
}

func TestNonTransFamilyCommandIsIgnored(t *testing.T) {
	conv, _ := newConversation()
	msg := make([]byte, header.Size+3)
	putSMBHeader(msg, 0x04, 0, 0, 0, 0) // SMB_COM_CLOSE, irrelevant to this engine
	require.NoError(t, conv.HandleRequest(msg))
}
