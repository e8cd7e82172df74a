package trans

import "github.com/flowguard/dce2smb/internal/stringdecode"

// sliceAt carves out the count bytes at wire offset off (measured from the
// start of the SMB header) from bytesBlock, whose own first byte sits at
// base in that same coordinate space. Returns ok=false if the requested
// range falls outside bytesBlock.
func sliceAt(bytesBlock []byte, base, off, count int) ([]byte, bool) {
	if count == 0 {
		return nil, true
	}
	rel := off - base
	if rel < 0 || rel+count > len(bytesBlock) {
		return nil, false
	}
	return bytesBlock[rel : rel+count], true
}

// decodeName decodes the null-terminated Name string at the start of a
// TRANSACTION request's byte block.
func decodeName(bytesBlock []byte, unicode bool) string {
	return stringdecode.Decode(bytesBlock, unicode, true)
}
