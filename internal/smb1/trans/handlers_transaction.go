package trans

import (
	"github.com/flowguard/dce2smb/internal/logger"
	"github.com/flowguard/dce2smb/internal/smb1/types"
)

// runRequestSSH dispatches a fully reassembled TRANSACTION request to its
// subcommand handler.
func (s *Session) runRequestSSH(mid uint16, t *Tracker) types.Disposition {
	switch t.Subcom {
	case types.TransSetNmpipeState:
		return s.handleSetNmpipeStateRequest(t)
	case types.TransTransactNmpipe:
		return s.handleTransactNmpipeRequest(t)
	case types.TransWriteNmpipe:
		return s.handleWriteNmpipeRequest(t)
	case types.TransReadNmpipe:
		t.State = StateAwaitResponse
		return types.DispositionFull
	default:
		return types.DispositionFull
	}
}

// runResponseSSH dispatches a fully reassembled TRANSACTION response to its
// subcommand handler, then retires the tracker.
func (s *Session) runResponseSSH(mid uint16, t *Tracker) types.Disposition {
	switch t.Subcom {
	case types.TransTransactNmpipe:
		return s.handleTransactNmpipeResponse(t)
	case types.TransReadNmpipe:
		return s.handleReadNmpipeResponse(t)
	case types.TransSetNmpipeState:
		return s.handleSetNmpipeStateResponse(t)
	default:
		s.maybeDisconnectTID(t)
		return types.DispositionFull
	}
}

// handleSetNmpipeStateRequest parses the pipe mode out of the request
// parameters. The byte mode is committed to the file tracker here only when
// the request is one-way under Windows policy — no response will arrive to
// commit it there instead; otherwise commit happens in
// handleSetNmpipeStateResponse.
func (s *Session) handleSetNmpipeStateRequest(t *Tracker) types.Disposition {
	if t.ParamBuf == nil || t.ParamBuf.Len() < 2 {
		return types.DispositionError
	}
	state := uint16(t.ParamBuf.Bytes()[0]) | uint16(t.ParamBuf.Bytes()[1])<<8
	t.PipeByteMode = state&types.PipeStateMessageMode == 0
	if t.OneWay && !s.sambaPolicy() {
		s.commitPipeByteMode(t)
	}
	s.maybeDisconnectTID(t)
	t.State = StateAwaitResponse
	return types.DispositionFull
}

func (s *Session) handleSetNmpipeStateResponse(t *Tracker) types.Disposition {
	s.commitPipeByteMode(t)
	s.maybeDisconnectTID(t)
	return types.DispositionFull
}

func (s *Session) commitPipeByteMode(t *Tracker) {
	if s.Files == nil {
		return
	}
	if entry, ok := s.Files.Find(t.UID, t.TID, t.FID); ok {
		entry.PipeByteMode = t.PipeByteMode
	}
}

// handleTransactNmpipeRequest refuses with ERROR when Windows policy is in
// effect and the FID's pipe is already in byte mode: TRANS_TRANSACT_NMPIPE
// doesn't work on a byte-mode pipe under Windows.
func (s *Session) handleTransactNmpipeRequest(t *Tracker) types.Disposition {
	if !s.sambaPolicy() && s.Files != nil {
		if entry, ok := s.Files.Find(t.UID, t.TID, t.FID); ok && entry.PipeByteMode {
			return types.DispositionError
		}
	}
	if t.DataBuf != nil && t.DataBuf.Len() > 0 && s.RPC != nil {
		pkt := acquirePacket(t.DataBuf.Bytes(), DirectionRequest)
		if err := pkt.feed(s.ID, s.RPC); err != nil {
			logger.Warn("dce/rpc request feed failed", "session", s.ID, "error", err)
		}
	}
	if t.OneWay {
		s.maybeDisconnectTID(t)
		return types.DispositionFull
	}
	t.State = StateAwaitResponse
	return types.DispositionFull
}

func (s *Session) handleWriteNmpipeRequest(t *Tracker) types.Disposition {
	if t.DataBuf != nil && t.DataBuf.Len() > 0 && s.RPC != nil {
		pkt := acquirePacket(t.DataBuf.Bytes(), DirectionRequest)
		if err := pkt.feed(s.ID, s.RPC); err != nil {
			logger.Warn("dce/rpc request feed failed", "session", s.ID, "error", err)
		}
	}
	t.State = StateAwaitResponse
	return types.DispositionFull
}

func (s *Session) handleTransactNmpipeResponse(t *Tracker) types.Disposition {
	if t.DataBuf != nil && t.DataBuf.Len() > 0 && s.RPC != nil {
		pkt := acquirePacket(t.DataBuf.Bytes(), DirectionResponse)
		if err := pkt.feed(s.ID, s.RPC); err != nil {
			logger.Warn("dce/rpc response feed failed", "session", s.ID, "error", err)
		}
	}
	s.maybeDisconnectTID(t)
	return types.DispositionFull
}

func (s *Session) handleReadNmpipeResponse(t *Tracker) types.Disposition {
	if t.DataBuf != nil && t.DataBuf.Len() > 0 && s.RPC != nil {
		pkt := acquirePacket(t.DataBuf.Bytes(), DirectionResponse)
		if err := pkt.feed(s.ID, s.RPC); err != nil {
			logger.Warn("dce/rpc response feed failed", "session", s.ID, "error", err)
		}
	}
	s.maybeDisconnectTID(t)
	return types.DispositionFull
}

// maybeDisconnectTID implements the one_way+disconnect_tid completion path:
// a one-way TRANSACTION that asked to disconnect its tree connection drops
// every file/pipe entry on that TID once its side completes. On the request
// side this applies only under Windows policy.
func (s *Session) maybeDisconnectTID(t *Tracker) {
	if t.Side == SideRequest && s.sambaPolicy() {
		return
	}
	if t.OneWay && t.DisconnectTID && s.Files != nil {
		s.Files.RemoveTID(t.TID)
	}
}
