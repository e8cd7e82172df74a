package header

import "encoding/binary"

// Encode serializes h to its fixed 32-byte wire form.
func (h *Header) Encode() []byte {
	buf := make([]byte, Size)
	copy(buf[0:4], ProtocolID[:])
	buf[4] = h.Command
	binary.LittleEndian.PutUint32(buf[5:9], h.Status)
	buf[9] = h.Flags
	binary.LittleEndian.PutUint16(buf[10:12], h.Flags2)
	binary.LittleEndian.PutUint16(buf[12:14], h.PIDHigh)
	copy(buf[14:22], h.SecurityFeatures[:])
	binary.LittleEndian.PutUint16(buf[24:26], h.TID)
	binary.LittleEndian.PutUint16(buf[26:28], h.PIDLow)
	binary.LittleEndian.PutUint16(buf[28:30], h.UID)
	binary.LittleEndian.PutUint16(buf[30:32], h.MID)
	return buf
}

// EncodeWordBlock assembles the word-count/parameter-words/byte-count/data
// framing that follows the fixed header, the inverse of WordBlock.
func EncodeWordBlock(words []byte, data []byte) []byte {
	wct := len(words) / 2
	buf := make([]byte, 0, 1+len(words)+2+len(data))
	buf = append(buf, byte(wct))
	buf = append(buf, words...)
	bcc := make([]byte, 2)
	binary.LittleEndian.PutUint16(bcc, uint16(len(data)))
	buf = append(buf, bcc...)
	buf = append(buf, data...)
	return buf
}
