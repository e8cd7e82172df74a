package trans

import "github.com/flowguard/dce2smb/internal/smb1/types"

// State is a TransactionTracker's position in its lifecycle, per the state
// machine: Init -> ReqPartial -> ReqComplete -> AwaitResponse -> RespPartial
// -> RespComplete -> Retired.
type State uint8

const (
	StateInit State = iota
	StateReqPartial
	StateReqComplete
	StateAwaitResponse
	StateRespPartial
	StateRespComplete
	StateRetired
)

// String returns the state's name, for logging only.
func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateReqPartial:
		return "ReqPartial"
	case StateReqComplete:
		return "ReqComplete"
	case StateAwaitResponse:
		return "AwaitResponse"
	case StateRespPartial:
		return "RespPartial"
	case StateRespComplete:
		return "RespComplete"
	case StateRetired:
		return "Retired"
	default:
		return "Unknown"
	}
}

// Side identifies which half-duplex leg of the conversation a Tracker is
// currently assembling.
type Side uint8

const (
	SideNone Side = iota
	SideRequest
	SideResponse
)

// Tracker is the per-request TransactionTracker (TT): the reassembly state
// for one in-flight *TRANSACT* request/response pair.
type Tracker struct {
	State  State
	Side   Side
	Family types.Family
	Subcom uint16

	TDC, TPC int // totals declared by the initiator of the current side
	DS, PS   int // cumulative bytes accumulated for the current side

	DataBuf, ParamBuf *FragBuf

	PipeByteMode   bool
	OneWay         bool
	DisconnectTID  bool
	InfoLevel      uint16
	Unicode        bool

	// Correlation keys, captured off the primary request so SSH can look
	// the FileEntry up again on the response side.
	UID, TID, FID uint16

	// Fields captured on the request side and committed to a FileEntry
	// only once the matching response completes.
	PendingFileName       string
	PendingFileSize       uint64
	PendingSequentialOnly bool
	PendingIsIPC          bool
}

// newTracker seeds a fresh TT from a primary request's parsed counts.
func newTracker(family types.Family, subcom uint16, tdc, tpc, dcnt, pcnt int) *Tracker {
	t := &Tracker{
		State:  StateReqPartial,
		Side:   SideRequest,
		Family: family,
		Subcom: subcom,
		TDC:    tdc,
		TPC:    tpc,
		DS:     dcnt,
		PS:     pcnt,
	}
	return t
}

// requestSideComplete reports whether the request side has received its
// full declared totals.
func (t *Tracker) requestSideComplete() bool {
	return t.DS == t.TDC && t.PS == t.TPC
}

// resetForResponse implements the Request->Response transition: buffers are
// dropped, DS/PS reset to zero, and totals are re-seeded by the caller from
// the response header.
func (t *Tracker) resetForResponse(tdc, tpc int) {
	t.Side = SideResponse
	t.State = StateAwaitResponse
	t.DataBuf = nil
	t.ParamBuf = nil
	t.DS = 0
	t.PS = 0
	t.TDC = tdc
	t.TPC = tpc
}
