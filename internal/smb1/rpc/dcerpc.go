// Package rpc implements passive parsing of the DCE/RPC PDUs carried over
// SMB1 named pipes, plus a bind/call tracker that implements
// trans.DCERPCAnalyzer.
//
// This engine is a passive observer: it never synthesizes a DCE/RPC PDU, it
// only parses ones already on the wire, so (unlike an active RPC endpoint)
// there is no Encode for Bind Ack or Response.
//
// Reference: [MS-RPCE] Remote Procedure Call Protocol Extensions
// Reference: [C706] DCE 1.1: Remote Procedure Call
package rpc

import (
	"encoding/binary"
	"fmt"
)

// PDU Types [C706 Section 12.6.4.14]
const (
	PDURequest  uint8 = 0  // Request PDU
	PDUResponse uint8 = 2  // Response PDU
	PDUFault    uint8 = 3  // Fault PDU
	PDUBind     uint8 = 11 // Bind PDU
	PDUBindAck  uint8 = 12 // Bind_ack PDU
	PDUBindNak  uint8 = 13 // Bind_nak PDU
)

// PDU Flags [C706 Section 12.6.3.1]
const (
	FlagFirstFrag uint8 = 0x01 // First fragment
	FlagLastFrag  uint8 = 0x02 // Last fragment
)

// HeaderSize is the size of the common DCE/RPC header.
const HeaderSize = 16

// Header represents the common DCE/RPC PDU header [C706 Section 12.6.3.1]
//
// All connection-oriented PDUs begin with this 16-byte header:
//
//	Offset  Size  Field
//	0       1     rpc_vers (5)
//	1       1     rpc_vers_minor (0 or 1)
//	2       1     ptype (PDU type)
//	3       1     pfc_flags (flags)
//	4       4     packed_drep (data representation)
//	8       2     frag_length (total fragment length)
//	10      2     auth_length (auth verifier length)
//	12      4     call_id (call identifier)
type Header struct {
	VersionMajor uint8
	VersionMinor uint8
	PacketType   uint8
	Flags        uint8
	DataRep      [4]byte
	FragLength   uint16
	AuthLength   uint16
	CallID       uint32
}

// ParseHeader parses a DCE/RPC header from bytes.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("data too short for DCE/RPC header: %d bytes", len(data))
	}

	h := &Header{
		VersionMajor: data[0],
		VersionMinor: data[1],
		PacketType:   data[2],
		Flags:        data[3],
		FragLength:   binary.LittleEndian.Uint16(data[8:10]),
		AuthLength:   binary.LittleEndian.Uint16(data[10:12]),
		CallID:       binary.LittleEndian.Uint32(data[12:16]),
	}
	copy(h.DataRep[:], data[4:8])

	return h, nil
}

// Encode serializes the header to bytes. Nothing in this module calls it;
// this engine never emits one on the wire.
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = h.VersionMajor
	buf[1] = h.VersionMinor
	buf[2] = h.PacketType
	buf[3] = h.Flags
	copy(buf[4:8], h.DataRep[:])
	binary.LittleEndian.PutUint16(buf[8:10], h.FragLength)
	binary.LittleEndian.PutUint16(buf[10:12], h.AuthLength)
	binary.LittleEndian.PutUint32(buf[12:16], h.CallID)
	return buf
}

// SyntaxID is a UUID + version, identifying an RPC interface or transfer
// syntax.
type SyntaxID struct {
	UUID    [16]byte
	Version uint32
}

// PresentationContext is one presentation context offered in a Bind PDU.
type PresentationContext struct {
	ContextID         uint16
	NumTransferSyntax uint8
	AbstractSyntax    SyntaxID
	TransferSyntaxes  []SyntaxID
}

// BindRequest represents a DCE/RPC Bind PDU [C706 Section 12.6.4.3].
type BindRequest struct {
	Header       Header
	MaxXmitFrag  uint16
	MaxRecvFrag  uint16
	AssocGroupID uint32
	NumContexts  uint8
	ContextList  []PresentationContext
}

// ParseBindRequest parses a Bind PDU.
func ParseBindRequest(data []byte) (*BindRequest, error) {
	if len(data) < HeaderSize+9 {
		return nil, fmt.Errorf("bind request too short")
	}

	hdr, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if hdr.PacketType != PDUBind {
		return nil, fmt.Errorf("not a bind PDU: type %d", hdr.PacketType)
	}

	req := &BindRequest{
		Header:       *hdr,
		MaxXmitFrag:  binary.LittleEndian.Uint16(data[16:18]),
		MaxRecvFrag:  binary.LittleEndian.Uint16(data[18:20]),
		AssocGroupID: binary.LittleEndian.Uint32(data[20:24]),
		NumContexts:  data[24],
	}

	// Parse presentation contexts (simplified — just the first one; a
	// passive observer cares which interface a session bound, not every
	// offered transfer syntax fallback).
	if len(data) >= 72 && req.NumContexts > 0 {
		ctx := PresentationContext{
			ContextID:         binary.LittleEndian.Uint16(data[28:30]),
			NumTransferSyntax: data[30],
		}
		copy(ctx.AbstractSyntax.UUID[:], data[32:48])
		ctx.AbstractSyntax.Version = binary.LittleEndian.Uint32(data[48:52])

		if ctx.NumTransferSyntax > 0 {
			var ts SyntaxID
			copy(ts.UUID[:], data[52:68])
			ts.Version = binary.LittleEndian.Uint32(data[68:72])
			ctx.TransferSyntaxes = append(ctx.TransferSyntaxes, ts)
		}

		req.ContextList = append(req.ContextList, ctx)
	}

	return req, nil
}

// ContextResult is the server's acceptance/rejection of one presentation
// context, as observed in a Bind Ack PDU.
type ContextResult struct {
	Result         uint16 // 0 = acceptance
	Reason         uint16
	TransferSyntax SyntaxID
}

// BindAck represents an observed DCE/RPC Bind Ack PDU [C706 Section 12.6.4.4].
type BindAck struct {
	Header       Header
	MaxXmitFrag  uint16
	MaxRecvFrag  uint16
	AssocGroupID uint32
	SecAddr      string
	NumResults   uint8
	Results      []ContextResult
}

// ParseBindAck parses a Bind Ack PDU observed from the server.
func ParseBindAck(data []byte) (*BindAck, error) {
	if len(data) < HeaderSize+10 {
		return nil, fmt.Errorf("bind ack too short")
	}

	hdr, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if hdr.PacketType != PDUBindAck {
		return nil, fmt.Errorf("not a bind ack PDU: type %d", hdr.PacketType)
	}

	ack := &BindAck{
		Header:       *hdr,
		MaxXmitFrag:  binary.LittleEndian.Uint16(data[16:18]),
		MaxRecvFrag:  binary.LittleEndian.Uint16(data[18:20]),
		AssocGroupID: binary.LittleEndian.Uint32(data[20:24]),
	}

	off := 24
	if off+2 > len(data) {
		return ack, nil
	}
	secAddrLen := int(binary.LittleEndian.Uint16(data[off : off+2]))
	off += 2
	if secAddrLen > 0 && off+secAddrLen <= len(data) {
		end := off + secAddrLen
		if data[end-1] == 0 {
			end--
		}
		ack.SecAddr = string(data[off:end])
		off += secAddrLen
	}
	// Align to a 4-byte boundary, then read num_results + reserved(3).
	if pad := (4 - (off % 4)) % 4; off+pad <= len(data) {
		off += pad
	}
	if off+4 > len(data) {
		return ack, nil
	}
	ack.NumResults = data[off]
	off += 4

	for i := 0; i < int(ack.NumResults) && off+24 <= len(data); i++ {
		var r ContextResult
		r.Result = binary.LittleEndian.Uint16(data[off : off+2])
		r.Reason = binary.LittleEndian.Uint16(data[off+2 : off+4])
		copy(r.TransferSyntax.UUID[:], data[off+4:off+20])
		r.TransferSyntax.Version = binary.LittleEndian.Uint32(data[off+20 : off+24])
		ack.Results = append(ack.Results, r)
		off += 24
	}

	return ack, nil
}

// Request represents a DCE/RPC Request PDU [C706 Section 12.6.4.9].
type Request struct {
	Header    Header
	AllocHint uint32
	ContextID uint16
	OpNum     uint16
	StubData  []byte
}

// ParseRequest parses a Request PDU.
func ParseRequest(data []byte) (*Request, error) {
	if len(data) < HeaderSize+8 {
		return nil, fmt.Errorf("request PDU too short")
	}

	hdr, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if hdr.PacketType != PDURequest {
		return nil, fmt.Errorf("not a request PDU: type %d", hdr.PacketType)
	}

	req := &Request{
		Header:    *hdr,
		AllocHint: binary.LittleEndian.Uint32(data[16:20]),
		ContextID: binary.LittleEndian.Uint16(data[20:22]),
		OpNum:     binary.LittleEndian.Uint16(data[22:24]),
	}

	stubEnd := int(hdr.FragLength) - int(hdr.AuthLength)
	if stubEnd > 24 && stubEnd <= len(data) {
		req.StubData = data[24:stubEnd]
	}

	return req, nil
}

// Response represents an observed DCE/RPC Response PDU [C706 Section
// 12.6.4.10].
type Response struct {
	Header      Header
	AllocHint   uint32
	ContextID   uint16
	CancelCount uint8
	StubData    []byte
}

// ParseResponse parses a Response PDU observed from the server.
func ParseResponse(data []byte) (*Response, error) {
	if len(data) < HeaderSize+8 {
		return nil, fmt.Errorf("response PDU too short")
	}

	hdr, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if hdr.PacketType != PDUResponse {
		return nil, fmt.Errorf("not a response PDU: type %d", hdr.PacketType)
	}

	resp := &Response{
		Header:      *hdr,
		AllocHint:   binary.LittleEndian.Uint32(data[16:20]),
		ContextID:   binary.LittleEndian.Uint16(data[20:22]),
		CancelCount: data[22],
	}

	stubEnd := int(hdr.FragLength) - int(hdr.AuthLength)
	if stubEnd > 24 && stubEnd <= len(data) {
		resp.StubData = data[24:stubEnd]
	}

	return resp, nil
}
