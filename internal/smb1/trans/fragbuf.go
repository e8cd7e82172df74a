package trans

// FragBuf accumulates one side (parameters or data) of a fragmented
// transaction. It is bounded by a declared total and grows only through
// AppendAt, which enforces either strict (disp == filled) or lenient
// (disp <= filled, Samba-style overlap tolerated) placement depending on
// the caller's policy.
type FragBuf struct {
	total  int
	filled int
	bytes  []byte
}

// NewFragBuf allocates a buffer bounded by total bytes. A total of 0 yields
// an already-complete, zero-length buffer.
func NewFragBuf(total int) *FragBuf {
	return &FragBuf{total: total, bytes: make([]byte, total)}
}

// AppendAt writes data at displacement disp. Under strict placement (the
// default, Windows-policy behavior) disp must equal the buffer's current
// fill point, rejecting both gaps and overlaps. Under lenient placement
// (Samba-policy overlap tolerance) disp may be anywhere at or before the
// fill point; bytes are overwritten in place and the fill point only grows.
// Any placement that would write past the declared total is rejected
// regardless of policy, per the bounded-buffer discipline.
func (b *FragBuf) AppendAt(disp int, data []byte, lenient bool) bool {
	if disp < 0 || len(data) < 0 {
		return false
	}
	end := disp + len(data)
	if end > b.total {
		return false
	}
	if lenient {
		if disp > b.filled {
			return false
		}
	} else {
		if disp != b.filled {
			return false
		}
	}
	copy(b.bytes[disp:end], data)
	if end > b.filled {
		b.filled = end
	}
	return true
}

// Len returns the number of bytes filled so far.
func (b *FragBuf) Len() int { return b.filled }

// Total returns the declared total size of the stream this buffer tracks.
func (b *FragBuf) Total() int { return b.total }

// Complete reports whether the buffer has received its full declared total.
func (b *FragBuf) Complete() bool { return b.filled == b.total }

// Bytes returns the filled prefix of the buffer. The returned slice aliases
// internal storage and must not be retained past the buffer's lifetime.
func (b *FragBuf) Bytes() []byte { return b.bytes[:b.filled] }

// Reseed resets the buffer to track a new total, discarding any previously
// accumulated bytes. Used on the Request->Response transition.
func (b *FragBuf) Reseed(total int) {
	b.total = total
	b.filled = 0
	b.bytes = make([]byte, total)
}
