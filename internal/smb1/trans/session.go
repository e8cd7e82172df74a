// Package trans implements the CIFS/SMB1 transaction reassembly and
// subcommand dispatch engine: the Transaction Tracker, the request/
// secondary/response fragment ingestors, and the subcommand semantic
// handlers that run once a side is fully assembled.
package trans

import (
	"sync"

	"github.com/flowguard/dce2smb/internal/alerts"
	"github.com/flowguard/dce2smb/internal/policy"
	"github.com/flowguard/dce2smb/internal/smb1/types"
	"github.com/flowguard/dce2smb/pkg/metrics"
	"github.com/google/uuid"
)

// Session owns the request trackers for one SMB connection. Per the
// concurrency model, a Session is processed cooperatively and single-
// threaded by its owning caller; the mutex here guards against accidental
// concurrent use rather than enabling it.
type Session struct {
	ID     string
	Policy policy.Target

	Files   FileStore
	RPC     DCERPCAnalyzer
	Alert   alerts.Sink
	Metrics metrics.TransMetrics

	mu       sync.Mutex
	trackers map[uint16]*Tracker // keyed by MID
}

// NewSession creates a session bound to the given policy and collaborators.
func NewSession(p policy.Target, files FileStore, rpc DCERPCAnalyzer, sink alerts.Sink) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Policy:   p,
		Files:    files,
		RPC:      rpc,
		Alert:    sink,
		trackers: make(map[uint16]*Tracker),
	}
}

func (s *Session) tracker(mid uint16) (*Tracker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackers[mid]
	return t, ok
}

func (s *Session) setTracker(mid uint16, t *Tracker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackers[mid] = t
}

func (s *Session) retireTracker(mid uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trackers, mid)
}

// Close releases every in-flight tracker, as the outer layer does when a
// session is torn down. No background work survives a session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackers = make(map[uint16]*Tracker)
}

// recordDisposition reports one PDU's outcome to s.Metrics, if set.
func (s *Session) recordDisposition(family types.Family, ci ComInfo, disp types.Disposition) {
	if s.Metrics == nil {
		return
	}
	direction := "request"
	if ci.IsResponse {
		direction = "response"
	}
	s.Metrics.RecordDisposition(family.String(), direction, disp.String())
}

// recordFragmentBytes reports one buffered data/parameter fragment's size
// to s.Metrics, if set and the fragment is non-empty.
func (s *Session) recordFragmentBytes(family types.Family, stream string, n int) {
	if s.Metrics == nil || n <= 0 {
		return
	}
	s.Metrics.RecordFragmentBytes(family.String(), stream, n)
}

func (s *Session) raise(kind alerts.Kind, command string, detail string) {
	if s.Alert == nil {
		return
	}
	s.Alert.Raise(alerts.Alert{Kind: kind, SessionID: s.ID, Command: command, Detail: detail})
}

// ComInfo is the per-PDU metadata the outer SMB dispatcher produces:
// everything the core needs to know about framing without re-deriving it.
type ComInfo struct {
	WordCount   uint8
	ByteCount   uint16
	CommandSize int // bytes already consumed by the fixed header + framing
	IsResponse  bool
	CanProcess  bool // upstream structural checks passed
}

// CanProcessCommand reports whether upstream structural checks cleared this
// PDU for processing. The core calls this first on every entry point and
// returns ERROR if it is false.
func (ci ComInfo) CanProcessCommand() bool {
	return ci.CanProcess
}
