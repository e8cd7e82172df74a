package trans

// paddingAllowance is the number of alignment pad bytes tolerated between
// the parameter and data regions of a PDU.
const paddingAllowance = 4

// validateFields implements the §4.1 primitive field checks shared by the
// request, secondary, and response ingestors. pduLen is the length of the
// PDU payload measured from the start of the SMB header; bc is the PDU's
// declared byte count.
func validateFields(pduLen, bc int, dcnt, doff, pcnt, poff int) bool {
	if dcnt+pcnt > bc+paddingAllowance {
		return false
	}
	if doff < 0 || doff > pduLen {
		return false
	}
	if poff < 0 || poff > pduLen {
		return false
	}
	if doff+dcnt > pduLen {
		return false
	}
	if poff+pcnt > pduLen {
		return false
	}
	if dcnt > 0 && doff == 0 {
		return false
	}
	if pcnt > 0 && poff == 0 {
		return false
	}
	return true
}

// validateAgainstTotals checks that a fragment's displacement and count
// stay within the transaction's declared totals.
func validateAgainstTotals(ddisp, dcnt, tdcnt, pdisp, pcnt, tpcnt int) bool {
	return ddisp+dcnt <= tdcnt && pdisp+pcnt <= tpcnt
}

// validateOverlap checks a secondary/response fragment's displacement
// against the buffer's current fill point. Under strict (Windows) placement
// the fragment must continue exactly where the buffer left off; under
// lenient (Samba) placement it may land anywhere at or before the fill
// point.
func validateOverlap(disp, filled int, lenient bool) bool {
	if lenient {
		return disp <= filled
	}
	return disp == filled
}

// validateSent implements §4.1's validate_sent: a fragment must not push
// either stream's cumulative sent count past its declared total.
func validateSent(ds, dcnt, tdc, ps, pcnt, tpc int) bool {
	return ds+dcnt <= tdc && ps+pcnt <= tpc
}

// mergeTotals applies the §3/§9(b) Samba-vs-Windows policy for a secondary
// or response fragment that declares new totals: Samba may lower a total,
// Windows ignores the new value entirely. Neither policy ever raises a
// total from what the first fragment declared.
func mergeTotals(current, declared int, samba bool) int {
	if samba && declared < current {
		return declared
	}
	return current
}
