package rpc

import (
	"fmt"
	"sync"

	"github.com/flowguard/dce2smb/internal/logger"
)

// Binding records a presentation context a session was observed binding to.
// The analyzer never answers a Bind — this is a record of what the client
// asked for and, once seen, what the server accepted.
type Binding struct {
	ContextID      uint16
	AbstractSyntax SyntaxID
	Accepted       bool
}

// Call records an in-flight DCE/RPC request awaiting its response, keyed by
// call_id within a session.
type Call struct {
	ContextID    uint16
	OpNum        uint16
	RequestBytes int
}

// sessionState is the per-SMB-session bind/call bookkeeping. A single
// session can carry several simultaneous named-pipe connections, but all
// of them share the session's call_id space, so one map per session is
// sufficient to pair requests with responses (mirrors the teacher's
// PipeManager map-of-state pattern, keyed here by session rather than by
// SMB FileID since that is the granularity trans.DCERPCAnalyzer is fed at).
type sessionState struct {
	mu sync.Mutex
	// bindings is ordered by arrival: a Bind Ack's results correlate to
	// the presentation contexts of the most recent Bind request by
	// position, not by any field carried in the ack itself.
	bindings []*Binding
	byContext map[uint16]*Binding
	calls     map[uint32]*Call
}

func newSessionState() *sessionState {
	return &sessionState{
		byContext: make(map[uint16]*Binding),
		calls:     make(map[uint32]*Call),
	}
}

// Analyzer implements trans.DCERPCAnalyzer: it parses the DCE/RPC PDUs a
// named-pipe TRANSACT_NMPIPE/WRITE_NMPIPE/READ_NMPIPE reassembly handed it
// and tracks bind/call state for diagnostics. It is a read-only observer —
// it never builds or sends a PDU of its own.
type Analyzer struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
}

// NewAnalyzer creates an empty bind/call tracker.
func NewAnalyzer() *Analyzer {
	return &Analyzer{sessions: make(map[string]*sessionState)}
}

func (a *Analyzer) session(sessionID string) *sessionState {
	a.mu.RLock()
	st, ok := a.sessions[sessionID]
	a.mu.RUnlock()
	if ok {
		return st
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok = a.sessions[sessionID]; ok {
		return st
	}
	st = newSessionState()
	a.sessions[sessionID] = st
	return st
}

// ForgetSession drops all tracked state for a session, called when its SMB
// connection is torn down.
func (a *Analyzer) ForgetSession(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, sessionID)
}

// ProcessRequest parses a client-to-server DCE/RPC PDU and updates the
// session's bind/call state.
func (a *Analyzer) ProcessRequest(sessionID string, data []byte) error {
	if len(data) < HeaderSize {
		return nil // short writes carry no PDU worth tracking
	}
	hdr, err := ParseHeader(data)
	if err != nil {
		return err
	}

	st := a.session(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	switch hdr.PacketType {
	case PDUBind:
		bindReq, err := ParseBindRequest(data)
		if err != nil {
			return err
		}
		st.bindings = st.bindings[:0]
		for _, ctx := range bindReq.ContextList {
			b := &Binding{ContextID: ctx.ContextID, AbstractSyntax: ctx.AbstractSyntax}
			st.bindings = append(st.bindings, b)
			st.byContext[ctx.ContextID] = b
		}

	case PDURequest:
		req, err := ParseRequest(data)
		if err != nil {
			return err
		}
		if _, bound := st.byContext[req.ContextID]; !bound {
			logger.Debug("dce/rpc request on unbound context", "session", sessionID, "context_id", req.ContextID)
		}
		st.calls[hdr.CallID] = &Call{
			ContextID:    req.ContextID,
			OpNum:        req.OpNum,
			RequestBytes: len(req.StubData),
		}

	default:
		return fmt.Errorf("unexpected request PDU type %d", hdr.PacketType)
	}
	return nil
}

// ProcessResponse parses a server-to-client DCE/RPC PDU and updates the
// session's bind/call state.
func (a *Analyzer) ProcessResponse(sessionID string, data []byte) error {
	if len(data) < HeaderSize {
		return nil
	}
	hdr, err := ParseHeader(data)
	if err != nil {
		return err
	}

	st := a.session(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	switch hdr.PacketType {
	case PDUBindAck:
		ack, err := ParseBindAck(data)
		if err != nil {
			return err
		}
		for i, r := range ack.Results {
			if i < len(st.bindings) {
				st.bindings[i].Accepted = r.Result == 0
			}
		}

	case PDUResponse:
		if _, err := ParseResponse(data); err != nil {
			return err
		}
		delete(st.calls, hdr.CallID)

	case PDUFault, PDUBindNak:
		delete(st.calls, hdr.CallID)

	default:
		return fmt.Errorf("unexpected response PDU type %d", hdr.PacketType)
	}
	return nil
}

// PendingCalls reports the number of requests still awaiting a response for
// a session, for tests and diagnostics.
func (a *Analyzer) PendingCalls(sessionID string) int {
	st := a.session(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.calls)
}

// IsBound reports whether the server has accepted a bind for contextID on
// the given session.
func (a *Analyzer) IsBound(sessionID string, contextID uint16) bool {
	st := a.session(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	b, ok := st.byContext[contextID]
	return ok && b.Accepted
}
