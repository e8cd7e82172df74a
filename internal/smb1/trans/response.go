package trans

import "github.com/flowguard/dce2smb/internal/smb1/types"

// Response PDUs for all three trans families carry displacement fields from
// their very first fragment (unlike the request side, where only secondary
// continuations do), so a single reassembly path handles both the initial
// and every subsequent response fragment. respond2Byte serves TRANSACTION
// and TRANSACTION2; respondNT serves NT_TRANSACT.

func (s *Session) respond2Byte(mid uint16, ci ComInfo, pduBase, pduLen int, words, bytesBlock []byte) types.Disposition {
	if !ci.CanProcessCommand() {
		return types.DispositionError
	}
	if ci.CommandSize == types.InterimResponseCommandSize {
		// Server is acknowledging a partial primary and waiting on
		// secondaries; a no-op that leaves the request side untouched.
		return types.DispositionSuccess
	}
	t, ok := s.tracker(mid)
	if !ok {
		return types.DispositionIgnore
	}

	p, err := parseSecParams(words)
	if err != nil {
		return types.DispositionError
	}

	if t.Side == SideRequest {
		if !t.requestSideComplete() {
			return types.DispositionError
		}
		t.resetForResponse(int(p.TotalDataCount), int(p.TotalParameterCount))
	}

	lenient := s.sambaPolicy()
	t.TDC = mergeTotals(t.TDC, int(p.TotalDataCount), lenient)
	t.TPC = mergeTotals(t.TPC, int(p.TotalParameterCount), lenient)

	dcnt, doff, ddisp := int(p.DataCount), int(p.DataOffset), int(p.DataDisplacement)
	pcnt, poff, pdisp := int(p.ParameterCount), int(p.ParameterOffset), int(p.ParameterDisplacement)

	if !validateFields(pduLen, int(ci.ByteCount), dcnt, doff, pcnt, poff) {
		return types.DispositionError
	}
	if !validateAgainstTotals(ddisp, dcnt, t.TDC, pdisp, pcnt, t.TPC) {
		return types.DispositionError
	}

	dataBytes, ok1 := sliceAt(bytesBlock, pduBase, doff, dcnt)
	paramBytes, ok2 := sliceAt(bytesBlock, pduBase, poff, pcnt)
	if !ok1 || !ok2 {
		return types.DispositionError
	}

	return s.appendResponseFragments(mid, t, dataBytes, paramBytes, ddisp, pdisp, lenient)
}

func (s *Session) respondNT(mid uint16, ci ComInfo, pduBase, pduLen int, words, bytesBlock []byte) types.Disposition {
	if !ci.CanProcessCommand() {
		return types.DispositionError
	}
	if ci.CommandSize == types.InterimResponseCommandSize {
		// Server is acknowledging a partial primary and waiting on
		// secondaries; a no-op that leaves the request side untouched.
		return types.DispositionSuccess
	}
	t, ok := s.tracker(mid)
	if !ok {
		return types.DispositionIgnore
	}

	p, err := parseNTSecParams(words)
	if err != nil {
		return types.DispositionError
	}

	if t.Side == SideRequest {
		if !t.requestSideComplete() {
			return types.DispositionError
		}
		t.resetForResponse(int(p.TotalDataCount), int(p.TotalParameterCount))
	}

	lenient := s.sambaPolicy()
	t.TDC = mergeTotals(t.TDC, int(p.TotalDataCount), lenient)
	t.TPC = mergeTotals(t.TPC, int(p.TotalParameterCount), lenient)

	dcnt, doff, ddisp := int(p.DataCount), int(p.DataOffset), int(p.DataDisplacement)
	pcnt, poff, pdisp := int(p.ParameterCount), int(p.ParameterOffset), int(p.ParameterDisplacement)

	if !validateFields(pduLen, int(ci.ByteCount), dcnt, doff, pcnt, poff) {
		return types.DispositionError
	}
	if !validateAgainstTotals(ddisp, dcnt, t.TDC, pdisp, pcnt, t.TPC) {
		return types.DispositionError
	}

	dataBytes, ok1 := sliceAt(bytesBlock, pduBase, doff, dcnt)
	paramBytes, ok2 := sliceAt(bytesBlock, pduBase, poff, pcnt)
	if !ok1 || !ok2 {
		return types.DispositionError
	}

	return s.appendResponseFragments(mid, t, dataBytes, paramBytes, ddisp, pdisp, lenient)
}

func (s *Session) appendResponseFragments(mid uint16, t *Tracker, dataBytes, paramBytes []byte, ddisp, pdisp int, lenient bool) types.Disposition {
	if t.DataBuf == nil {
		t.DataBuf = NewFragBuf(t.TDC)
	} else if t.DataBuf.Total() != t.TDC {
		t.DataBuf.Reseed(t.TDC)
	}
	if t.ParamBuf == nil {
		t.ParamBuf = NewFragBuf(t.TPC)
	} else if t.ParamBuf.Total() != t.TPC {
		t.ParamBuf.Reseed(t.TPC)
	}

	if len(dataBytes) > 0 {
		if !validateOverlap(ddisp, t.DataBuf.Len(), lenient) || !t.DataBuf.AppendAt(ddisp, dataBytes, lenient) {
			return types.DispositionError
		}
	}
	if len(paramBytes) > 0 {
		if !validateOverlap(pdisp, t.ParamBuf.Len(), lenient) || !t.ParamBuf.AppendAt(pdisp, paramBytes, lenient) {
			return types.DispositionError
		}
	}

	t.DS, t.PS = t.DataBuf.Len(), t.ParamBuf.Len()
	if !validateSent(t.DS, 0, t.TDC, t.PS, 0, t.TPC) {
		return types.DispositionError
	}

	if t.DS == t.TDC && t.PS == t.TPC {
		t.State = StateRespComplete
		disp := s.dispatchResponseSSH(mid, t)
		s.retireTracker(mid)
		t.State = StateRetired
		return disp
	}
	t.State = StateRespPartial
	return types.DispositionSuccess
}

// dispatchResponseSSH routes a fully reassembled response to the subcommand
// handler for its family.
func (s *Session) dispatchResponseSSH(mid uint16, t *Tracker) types.Disposition {
	switch t.Family {
	case types.FamilyTransaction:
		return s.runResponseSSH(mid, t)
	case types.FamilyTransaction2:
		return s.runTrans2ResponseSSH(mid, t)
	case types.FamilyNTTransact:
		return s.runNTTransactResponseSSH(mid, t)
	default:
		return types.DispositionError
	}
}
