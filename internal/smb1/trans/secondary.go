package trans

import "github.com/flowguard/dce2smb/internal/smb1/types"

// TransactionSecondary handles a TRANSACTION_SECONDARY continuation PDU.
func (s *Session) TransactionSecondary(mid uint16, ci ComInfo, pduBase, pduLen int, words, bytesBlock []byte) types.Disposition {
	disp := s.secondary2Byte(types.FamilyTransaction, mid, ci, pduBase, pduLen, words, bytesBlock)
	s.recordDisposition(types.FamilyTransaction, ci, disp)
	return externalDisposition(disp)
}

// Transaction2Secondary handles a TRANSACTION2_SECONDARY continuation PDU.
// The wire layout is identical to TRANSACTION_SECONDARY.
func (s *Session) Transaction2Secondary(mid uint16, ci ComInfo, pduBase, pduLen int, words, bytesBlock []byte) types.Disposition {
	disp := s.secondary2Byte(types.FamilyTransaction2, mid, ci, pduBase, pduLen, words, bytesBlock)
	s.recordDisposition(types.FamilyTransaction2, ci, disp)
	return externalDisposition(disp)
}

func (s *Session) secondary2Byte(family types.Family, mid uint16, ci ComInfo, pduBase, pduLen int, words, bytesBlock []byte) types.Disposition {
	if !ci.CanProcessCommand() {
		return types.DispositionError
	}
	if ci.IsResponse {
		return s.respond2Byte(mid, ci, pduBase, pduLen, words, bytesBlock)
	}
	t, ok := s.tracker(mid)
	if !ok || t.Side != SideRequest {
		return types.DispositionIgnore
	}

	p, err := parseSecParams(words)
	if err != nil {
		return types.DispositionError
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
		s.recordFragmentBytes(family, "data", len(dataBytes))
	}
	if len(paramBytes) > 0 {
		if !validateOverlap(pdisp, t.ParamBuf.Len(), lenient) || !t.ParamBuf.AppendAt(pdisp, paramBytes, lenient) {
			return types.DispositionError
		}
		s.recordFragmentBytes(family, "param", len(paramBytes))
	}

	t.DS, t.PS = t.DataBuf.Len(), t.ParamBuf.Len()
	if !validateSent(t.DS, 0, t.TDC, t.PS, 0, t.TPC) {
		return types.DispositionIgnore
	}

	if t.requestSideComplete() {
		t.State = StateReqComplete
		return s.dispatchRequestSSH(mid, t)
	}
	t.State = StateReqPartial
	return types.DispositionSuccess
}

// NtTransactSecondary handles an NT_TRANSACT_SECONDARY continuation PDU.
func (s *Session) NtTransactSecondary(mid uint16, ci ComInfo, pduBase, pduLen int, words, bytesBlock []byte) types.Disposition {
	disp := s.doNtTransactSecondary(mid, ci, pduBase, pduLen, words, bytesBlock)
	s.recordDisposition(types.FamilyNTTransact, ci, disp)
	return externalDisposition(disp)
}

func (s *Session) doNtTransactSecondary(mid uint16, ci ComInfo, pduBase, pduLen int, words, bytesBlock []byte) types.Disposition {
	if !ci.CanProcessCommand() {
		return types.DispositionError
	}
	if ci.IsResponse {
		return s.respondNT(mid, ci, pduBase, pduLen, words, bytesBlock)
	}
	t, ok := s.tracker(mid)
	if !ok || t.Side != SideRequest {
		return types.DispositionIgnore
	}

	p, err := parseNTSecParams(words)
	if err != nil {
		return types.DispositionError
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
		s.recordFragmentBytes(types.FamilyNTTransact, "data", len(dataBytes))
	}
	if len(paramBytes) > 0 {
		if !validateOverlap(pdisp, t.ParamBuf.Len(), lenient) || !t.ParamBuf.AppendAt(pdisp, paramBytes, lenient) {
			return types.DispositionError
		}
		s.recordFragmentBytes(types.FamilyNTTransact, "param", len(paramBytes))
	}

	t.DS, t.PS = t.DataBuf.Len(), t.ParamBuf.Len()
	if !validateSent(t.DS, 0, t.TDC, t.PS, 0, t.TPC) {
		return types.DispositionIgnore
	}

	if t.requestSideComplete() {
		t.State = StateReqComplete
		return s.dispatchRequestSSH(mid, t)
	}
	t.State = StateReqPartial
	return types.DispositionSuccess
}

// dispatchRequestSSH routes a fully reassembled request to the subcommand
// handler for its family.
func (s *Session) dispatchRequestSSH(mid uint16, t *Tracker) types.Disposition {
	switch t.Family {
	case types.FamilyTransaction:
		return s.runRequestSSH(mid, t)
	case types.FamilyTransaction2:
		return s.runTrans2RequestSSH(mid, t, t.Unicode)
	case types.FamilyNTTransact:
		return s.runNTTransactRequestSSH(mid, t, t.Unicode)
	default:
		return types.DispositionError
	}
}
