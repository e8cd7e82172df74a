package trans

import (
	"github.com/flowguard/dce2smb/internal/alerts"
	"github.com/flowguard/dce2smb/internal/policy"
	"github.com/flowguard/dce2smb/internal/smb1/types"
)

// Transaction handles a primary SMB_COM_TRANSACTION request.
//
// words is the command's parameter word block; bytesBlock is the
// byte-count-prefixed section that follows it (Name string, alignment pad,
// then the parameter/data regions); pduBase is bytesBlock's offset from the
// start of the SMB header, and pduLen is the total PDU length measured the
// same way. unicode reflects the SMB header's Unicode flag.
func (s *Session) Transaction(mid, uid, tid, fid uint16, ci ComInfo, pduBase, pduLen int, words, bytesBlock []byte, unicode bool) types.Disposition {
	disp := s.doTransaction(mid, uid, tid, fid, ci, pduBase, pduLen, words, bytesBlock, unicode)
	s.recordDisposition(types.FamilyTransaction, ci, disp)
	return externalDisposition(disp)
}

func (s *Session) doTransaction(mid, uid, tid, fid uint16, ci ComInfo, pduBase, pduLen int, words, bytesBlock []byte, unicode bool) types.Disposition {
	if !ci.CanProcessCommand() {
		return types.DispositionError
	}
	if ci.IsResponse {
		return s.respond2Byte(mid, ci, pduBase, pduLen, words, bytesBlock)
	}
	if ci.WordCount != 16 {
		// \PIPE\LANMAN suppression (spec boundary test 12).
		return types.DispositionIgnore
	}
	if existing, ok := s.tracker(mid); ok && existing.Side == SideRequest && !existing.requestSideComplete() {
		return types.DispositionError
	}

	p, err := parseReqParams(words)
	if err != nil {
		return types.DispositionError
	}
	if p.SetupCount != 2 {
		s.raise(alerts.InvalidSetupCount, "TRANSACTION", "")
		return types.DispositionError
	}
	subcom := p.Subcommand()

	if s.sambaPolicy() {
		if !hasPipeName(bytesBlock, unicode) {
			return types.DispositionError
		}
	}

	mask := types.DataParamsFor(types.FamilyTransaction, subcom)
	if !transactionSubcommandTracked(subcom) {
		raiseUnusualOrDeprecated(s, types.FamilyTransaction, subcom)
		return types.DispositionIgnore
	}
	if subcom == types.TransWriteNmpipe || subcom == types.TransReadNmpipe {
		s.raise(alerts.UnusualCommandUsed, "TRANSACTION", types.SubcommandName(types.FamilyTransaction, subcom))
	}

	dcnt, doff := int(p.DataCount), int(p.DataOffset)
	pcnt, poff := int(p.ParameterCount), int(p.ParameterOffset)
	if !validateFields(pduLen, int(ci.ByteCount), dcnt, doff, pcnt, poff) {
		return types.DispositionError
	}

	dataBytes, ok1 := sliceAt(bytesBlock, pduBase, doff, dcnt)
	paramBytes, ok2 := sliceAt(bytesBlock, pduBase, poff, pcnt)
	if !ok1 || !ok2 {
		return types.DispositionError
	}

	if mask&types.DataParamsData != 0 && int(p.TotalDataCount) == 0 {
		s.raise(alerts.DcntZero, "TRANSACTION", types.SubcommandName(types.FamilyTransaction, subcom))
	}
	if mask&types.DataParamsParams != 0 && int(p.TotalParameterCount) == 0 {
		s.raise(alerts.DcntZero, "TRANSACTION", types.SubcommandName(types.FamilyTransaction, subcom))
	}

	t := newTracker(types.FamilyTransaction, subcom, int(p.TotalDataCount), int(p.TotalParameterCount), dcnt, pcnt)
	t.OneWay = p.OneWay()
	t.DisconnectTID = p.DisconnectTID()
	t.UID, t.TID, t.FID = uid, tid, fid
	t.Unicode = unicode

	disp := s.bufferRequestStreams(types.FamilyTransaction, t, dataBytes, paramBytes)
	s.setTracker(mid, t)
	if disp == types.DispositionFull {
		t.State = StateReqComplete
		return s.runRequestSSH(mid, t)
	}
	return disp
}

// Transaction2 handles a primary SMB_COM_TRANSACTION2 request. Layout is
// identical to TRANSACTION except there is no Name field, no Samba name
// check, and a different required setup count.
func (s *Session) Transaction2(mid, uid, tid, fid uint16, ci ComInfo, pduBase, pduLen int, words, bytesBlock []byte, unicode bool) types.Disposition {
	disp := s.doTransaction2(mid, uid, tid, fid, ci, pduBase, pduLen, words, bytesBlock, unicode)
	s.recordDisposition(types.FamilyTransaction2, ci, disp)
	return externalDisposition(disp)
}

func (s *Session) doTransaction2(mid, uid, tid, fid uint16, ci ComInfo, pduBase, pduLen int, words, bytesBlock []byte, unicode bool) types.Disposition {
	if !ci.CanProcessCommand() {
		return types.DispositionError
	}
	if ci.IsResponse {
		return s.respond2Byte(mid, ci, pduBase, pduLen, words, bytesBlock)
	}
	if existing, ok := s.tracker(mid); ok && existing.Side == SideRequest && !existing.requestSideComplete() {
		return types.DispositionError
	}

	p, err := parseReqParams(words)
	if err != nil {
		return types.DispositionError
	}
	if p.SetupCount != 1 {
		s.raise(alerts.InvalidSetupCount, "TRANSACTION2", "")
		return types.DispositionError
	}
	subcom := p.Subcommand()

	mask := types.DataParamsFor(types.FamilyTransaction2, subcom)
	if mask == types.DataParamsNone {
		return types.DispositionIgnore
	}

	dcnt, doff := int(p.DataCount), int(p.DataOffset)
	pcnt, poff := int(p.ParameterCount), int(p.ParameterOffset)
	if !validateFields(pduLen, int(ci.ByteCount), dcnt, doff, pcnt, poff) {
		return types.DispositionError
	}

	dataBytes, ok1 := sliceAt(bytesBlock, pduBase, doff, dcnt)
	paramBytes, ok2 := sliceAt(bytesBlock, pduBase, poff, pcnt)
	if !ok1 || !ok2 {
		return types.DispositionError
	}

	if mask&types.DataParamsData != 0 && int(p.TotalDataCount) == 0 {
		s.raise(alerts.DcntZero, "TRANSACTION2", types.SubcommandName(types.FamilyTransaction2, subcom))
	}
	if mask&types.DataParamsParams != 0 && int(p.TotalParameterCount) == 0 {
		s.raise(alerts.DcntZero, "TRANSACTION2", types.SubcommandName(types.FamilyTransaction2, subcom))
	}

	t := newTracker(types.FamilyTransaction2, subcom, int(p.TotalDataCount), int(p.TotalParameterCount), dcnt, pcnt)
	t.UID, t.TID, t.FID = uid, tid, fid
	t.Unicode = unicode

	disp := s.bufferRequestStreams(types.FamilyTransaction2, t, dataBytes, paramBytes)
	s.setTracker(mid, t)
	if disp == types.DispositionFull {
		t.State = StateReqComplete
		return s.runTrans2RequestSSH(mid, t, unicode)
	}
	return disp
}

// NtTransact handles a primary SMB_COM_NT_TRANSACT request. NT_TRANSACT
// widens parameter/data counts and offsets to 4 bytes and carries its
// subcommand in a dedicated Function field rather than Setup[0].
func (s *Session) NtTransact(mid, uid, tid, fid uint16, ci ComInfo, pduBase, pduLen int, words, bytesBlock []byte, unicode bool) types.Disposition {
	disp := s.doNtTransact(mid, uid, tid, fid, ci, pduBase, pduLen, words, bytesBlock, unicode)
	s.recordDisposition(types.FamilyNTTransact, ci, disp)
	return externalDisposition(disp)
}

func (s *Session) doNtTransact(mid, uid, tid, fid uint16, ci ComInfo, pduBase, pduLen int, words, bytesBlock []byte, unicode bool) types.Disposition {
	if !ci.CanProcessCommand() {
		return types.DispositionError
	}
	if ci.IsResponse {
		return s.respondNT(mid, ci, pduBase, pduLen, words, bytesBlock)
	}
	if existing, ok := s.tracker(mid); ok && existing.Side == SideRequest && !existing.requestSideComplete() {
		return types.DispositionError
	}

	p, err := parseNTReqParams(words)
	if err != nil {
		return types.DispositionError
	}
	subcom := p.Function
	if subcom == types.NtTransactCreate && p.SetupCount != 0 {
		s.raise(alerts.InvalidSetupCount, "NT_TRANSACT", "")
		return types.DispositionError
	}

	mask := types.DataParamsFor(types.FamilyNTTransact, subcom)
	if mask == types.DataParamsNone {
		return types.DispositionIgnore
	}
	s.raise(alerts.UnusualCommandUsed, "NT_TRANSACT", types.SubcommandName(types.FamilyNTTransact, subcom))

	dcnt, doff := int(p.DataCount), int(p.DataOffset)
	pcnt, poff := int(p.ParameterCount), int(p.ParameterOffset)
	if !validateFields(pduLen, int(ci.ByteCount), dcnt, doff, pcnt, poff) {
		return types.DispositionError
	}

	dataBytes, ok1 := sliceAt(bytesBlock, pduBase, doff, dcnt)
	paramBytes, ok2 := sliceAt(bytesBlock, pduBase, poff, pcnt)
	if !ok1 || !ok2 {
		return types.DispositionError
	}

	if mask&types.DataParamsData != 0 && int(p.TotalDataCount) == 0 {
		s.raise(alerts.DcntZero, "NT_TRANSACT", types.SubcommandName(types.FamilyNTTransact, subcom))
	}
	if mask&types.DataParamsParams != 0 && int(p.TotalParameterCount) == 0 {
		s.raise(alerts.DcntZero, "NT_TRANSACT", types.SubcommandName(types.FamilyNTTransact, subcom))
	}

	t := newTracker(types.FamilyNTTransact, subcom, int(p.TotalDataCount), int(p.TotalParameterCount), dcnt, pcnt)
	t.UID, t.TID, t.FID = uid, tid, fid
	t.Unicode = unicode

	disp := s.bufferRequestStreams(types.FamilyNTTransact, t, dataBytes, paramBytes)
	s.setTracker(mid, t)
	if disp == types.DispositionFull {
		t.State = StateReqComplete
		return s.runNTTransactRequestSSH(mid, t, unicode)
	}
	return disp
}

// bufferRequestStreams stores the request's initial fragment(s) and reports
// whether the request side is now complete.
func (s *Session) bufferRequestStreams(family types.Family, t *Tracker, dataBytes, paramBytes []byte) types.Disposition {
	if t.TDC > 0 {
		t.DataBuf = NewFragBuf(t.TDC)
		if len(dataBytes) > 0 {
			t.DataBuf.AppendAt(0, dataBytes, false)
			s.recordFragmentBytes(family, "data", len(dataBytes))
		}
	}
	if t.TPC > 0 {
		t.ParamBuf = NewFragBuf(t.TPC)
		if len(paramBytes) > 0 {
			t.ParamBuf.AppendAt(0, paramBytes, false)
			s.recordFragmentBytes(family, "param", len(paramBytes))
		}
	}
	if t.requestSideComplete() {
		return types.DispositionFull
	}
	return types.DispositionSuccess
}

func (s *Session) sambaPolicy() bool { return s.Policy == policy.Samba }

// externalDisposition narrows the internal Disposition set down to
// {SUCCESS, ERROR, IGNORE} at a public boundary: FULL is an internal
// bookkeeping state (this PDU completed its transaction) that callers only
// need to see as an ordinary SUCCESS.
func externalDisposition(disp types.Disposition) types.Disposition {
	if disp == types.DispositionFull {
		return types.DispositionSuccess
	}
	return disp
}

// transactionSubcommandTracked reports whether subcom is one this engine
// buffers and dispatches to an SSH, per §4.2's TRANSACTION table.
func transactionSubcommandTracked(subcom uint16) bool {
	switch subcom {
	case types.TransTransactNmpipe, types.TransWriteNmpipe, types.TransSetNmpipeState, types.TransReadNmpipe:
		return true
	default:
		return false
	}
}

// raiseUnusualOrDeprecated emits the appropriate alert for a TRANSACTION
// subcommand this engine does not track, per §4.2.
func raiseUnusualOrDeprecated(s *Session, family types.Family, subcom uint16) {
	switch subcom {
	case types.TransRawReadNmpipe, types.TransRawWriteNmpipe, types.TransCallNmpipe:
		s.raise(alerts.DeprecatedCommandUsed, "TRANSACTION", types.SubcommandName(family, subcom))
	case types.TransQueryNmpipeState, types.TransQueryNmpipeInfo, types.TransPeekNmpipe, types.TransWaitNmpipe:
		// Recognized but uninteresting; no alert.
	}
}

// hasPipeName reports whether the SMB_COM_TRANSACTION Name field at the
// start of bytesBlock decodes to "\PIPE\..." case-insensitively, the Samba
// policy check from §4.2.
func hasPipeName(bytesBlock []byte, unicode bool) bool {
	name := decodeName(bytesBlock, unicode)
	return len(name) >= 6 && equalFoldASCII(name[:6], `\PIPE\`)
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
