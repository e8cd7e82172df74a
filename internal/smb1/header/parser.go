package header

import (
	"encoding/binary"
	"errors"
)

// Sentinel errors returned by Parse.
var (
	ErrMessageTooShort = errors.New("header: message shorter than fixed header size")
	ErrInvalidProtocol = errors.New("header: invalid SMB1 protocol signature")
)

// Parse reads the fixed 32-byte header from the start of data.
func Parse(data []byte) (*Header, error) {
	if len(data) < Size {
		return nil, ErrMessageTooShort
	}
	if data[0] != ProtocolID[0] || data[1] != ProtocolID[1] || data[2] != ProtocolID[2] || data[3] != ProtocolID[3] {
		return nil, ErrInvalidProtocol
	}

	h := &Header{
		Command: data[4],
		Status:  binary.LittleEndian.Uint32(data[5:9]),
		Flags:   data[9],
		Flags2:  binary.LittleEndian.Uint16(data[10:12]),
		PIDHigh: binary.LittleEndian.Uint16(data[12:14]),
		TID:     binary.LittleEndian.Uint16(data[24:26]),
		PIDLow:  binary.LittleEndian.Uint16(data[26:28]),
		UID:     binary.LittleEndian.Uint16(data[28:30]),
		MID:     binary.LittleEndian.Uint16(data[30:32]),
	}
	copy(h.SecurityFeatures[:], data[14:22])
	return h, nil
}

// IsSMB1Message reports whether data begins with the SMB1 protocol
// signature, without fully parsing the header. Used by outer framing to
// decide whether to hand a message to this engine at all.
func IsSMB1Message(data []byte) bool {
	return len(data) >= 4 &&
		data[0] == ProtocolID[0] && data[1] == ProtocolID[1] &&
		data[2] == ProtocolID[2] && data[3] == ProtocolID[3]
}

// WordBlock splits the bytes following the fixed header into the
// word-count-prefixed parameter words and the byte-count-prefixed data that
// follows them, per the classic SMB1 command framing:
//
//	1 byte  WordCount (WCT)
//	WCT*2   bytes of parameter words
//	2 bytes ByteCount (BCC)
//	BCC     bytes of command data
func WordBlock(body []byte) (words []byte, data []byte, err error) {
	if len(body) < 1 {
		return nil, nil, ErrMessageTooShort
	}
	wct := int(body[0])
	wordsEnd := 1 + wct*2
	if len(body) < wordsEnd+2 {
		return nil, nil, ErrMessageTooShort
	}
	words = body[1:wordsEnd]
	bcc := int(binary.LittleEndian.Uint16(body[wordsEnd : wordsEnd+2]))
	dataStart := wordsEnd + 2
	dataEnd := dataStart + bcc
	if len(body) < dataEnd {
		return nil, nil, ErrMessageTooShort
	}
	return words, body[dataStart:dataEnd], nil
}
