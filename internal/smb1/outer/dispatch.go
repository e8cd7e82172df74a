package outer

import (
	"fmt"
	"strings"

	"github.com/flowguard/dce2smb/internal/filetracker"
	"github.com/flowguard/dce2smb/internal/smb1/header"
	"github.com/flowguard/dce2smb/internal/smb1/trans"
	"github.com/flowguard/dce2smb/internal/smb1/types"
)

// commandTreeConnectAndX is SMB_COM_TREE_CONNECT_ANDX [MS-CIFS] 2.2.4.55.
// It lives here rather than in internal/smb1/types because tree-connect
// tracking is this shim's job, not the reassembly core's.
const commandTreeConnectAndX = 0x75

// Conversation drives one trans.Session from the raw SMB1 messages of a
// single TCP stream (one pcap 5-tuple, one client<->server conversation).
// It is the minimal stand-in for the real outer SMB1 dispatcher: just
// enough framing and command routing to hand every TRANSACTION/
// TRANSACTION2/NT_TRANSACT PDU to the reassembly engine and to learn which
// TIDs are IPC$ tree connections along the way.
type Conversation struct {
	Session *trans.Session
	Files   *filetracker.Store
}

// NewConversation creates a Conversation backed by a fresh Session.
func NewConversation(sess *trans.Session, files *filetracker.Store) *Conversation {
	return &Conversation{Session: sess, Files: files}
}

// HandleRequest processes one complete client-to-server SMB1 message
// (header + body, NetBIOS framing already stripped).
func (c *Conversation) HandleRequest(message []byte) error {
	return c.handle(message, false)
}

// HandleResponse processes one complete server-to-client SMB1 message.
func (c *Conversation) HandleResponse(message []byte) error {
	return c.handle(message, true)
}

func (c *Conversation) handle(message []byte, isResponse bool) error {
	hdr, err := header.Parse(message)
	if err != nil {
		return fmt.Errorf("outer: parse SMB1 header: %w", err)
	}

	words, data, err := header.WordBlock(message[header.Size:])
	if err != nil {
		return fmt.Errorf("outer: parse word block: %w", err)
	}

	if hdr.Command == commandTreeConnectAndX && isResponse {
		c.observeTreeConnectResponse(hdr, data)
	}

	cmd := types.Command(hdr.Command)
	family, ok := types.FamilyOf(cmd)
	if !ok {
		return nil // not a trans-family command, nothing for the core to do
	}

	ci := trans.ComInfo{
		WordCount:   uint8(len(words) / 2),
		ByteCount:   uint16(len(data)),
		CommandSize: 1 + len(words) + 2,
		IsResponse:  isResponse,
		CanProcess:  true,
	}
	pduBase := header.Size + 1 + len(words) + 2
	pduLen := len(message)

	if cmd.IsSecondary() {
		c.dispatchSecondary(family, hdr, ci, pduBase, pduLen, words, data)
		return nil
	}

	c.dispatchPrimary(family, hdr, ci, pduBase, pduLen, words, data)
	return nil
}

func (c *Conversation) dispatchPrimary(family types.Family, hdr *header.Header, ci trans.ComInfo, pduBase, pduLen int, words, data []byte) {
	unicode := hdr.IsUnicode()
	switch family {
	case types.FamilyTransaction:
		c.Session.Transaction(hdr.MID, hdr.UID, hdr.TID, transactionFID(words), ci, pduBase, pduLen, words, data, unicode)
	case types.FamilyTransaction2:
		c.Session.Transaction2(hdr.MID, hdr.UID, hdr.TID, 0, ci, pduBase, pduLen, words, data, unicode)
	case types.FamilyNTTransact:
		c.Session.NtTransact(hdr.MID, hdr.UID, hdr.TID, 0, ci, pduBase, pduLen, words, data, unicode)
	}
}

func (c *Conversation) dispatchSecondary(family types.Family, hdr *header.Header, ci trans.ComInfo, pduBase, pduLen int, words, data []byte) {
	switch family {
	case types.FamilyTransaction:
		c.Session.TransactionSecondary(hdr.MID, ci, pduBase, pduLen, words, data)
	case types.FamilyTransaction2:
		c.Session.Transaction2Secondary(hdr.MID, ci, pduBase, pduLen, words, data)
	case types.FamilyNTTransact:
		c.Session.NtTransactSecondary(hdr.MID, ci, pduBase, pduLen, words, data)
	}
}

// transactionFID extracts the FID a TRANSACTION request's named-pipe
// subcommand operates on. Per [MS-CIFS] 2.2.4.33.1, Setup[0] is the
// subcommand/function code and, for every pipe subcommand except
// SET_NMPIPE_STATE's sibling reads of general pipe info, Setup[1] carries
// the FID. Word-block layout: SetupCount at offset 26, Setup words from 28.
func transactionFID(words []byte) uint16 {
	const setupCountOff = 26
	const setupOff = 28
	if len(words) <= setupCountOff {
		return 0
	}
	setupCount := int(words[setupCountOff])
	if setupCount < 2 || len(words) < setupOff+4 {
		return 0
	}
	return uint16(words[setupOff+2]) | uint16(words[setupOff+3])<<8
}

// observeTreeConnectResponse marks hdr.TID as an IPC$ connection when the
// response's Service field names the IPC pipe service. Request/response
// word and data layout is per [MS-CIFS] 2.2.4.55.2 ("SMB_COM_TREE_CONNECT_ANDX
// Response"); Service is always an OEM (non-Unicode) NUL-terminated string
// regardless of the Unicode flag.
func (c *Conversation) observeTreeConnectResponse(hdr *header.Header, data []byte) {
	if c.Files == nil {
		return
	}
	end := len(data)
	for i, b := range data {
		if b == 0 {
			end = i
			break
		}
	}
	service := string(data[:end])
	if strings.EqualFold(service, "IPC") {
		c.Files.MarkIPCTID(hdr.TID)
	}
}
