package datalink

// Cause is the MDL-ERROR cause taxonomy surfaced to L3. The engine never
// panics on malformed peer input: every defect it detects maps to one of
// these and is reported upward as an indication while the datalink stays
// in, or recovers to, a well-defined state.
type Cause uint8

const (
	CauseFrmUnimpl      Cause = iota // reserved/unimplemented encoding, or wrong C/R for its form
	CauseUFrmIncParam                // U-frame with L>0, M=1, or length>N201
	CauseSFrmIncParam                // S-frame with L>0 or M=1
	CauseIFrmIncLen                  // I-frame with L=0 or L>N201
	CauseIFrmIncMBits                // I-frame with L<N201 and M=1
	CauseUnsolDMResp                 // DM response in MF_EST with F=1
	CauseUnsolDMRespMF                // DM response in MF_EST or TIMER_RECOV with F=0
	CauseUnsolUAResp                  // UA response in a non-establishing state
	CauseUnsolSprvResp                // supervisory response with F=1 outside TIMER_RECOV
	CauseSeqErr                       // N(R) outside (V(A), V(S)]
	CauseSABMMF                       // SABM received in MF_EST: peer lost synchronization
	CauseSABMInfoNotAll               // SABM with payload during contention resolution
	CauseT200Expired                  // N200 retransmissions exhausted
	CauseFRMR                         // FRMR U-frame received
)

func (c Cause) String() string {
	switch c {
	case CauseFrmUnimpl:
		return "FRM_UNIMPL"
	case CauseUFrmIncParam:
		return "UFRM_INC_PARAM"
	case CauseSFrmIncParam:
		return "SFRM_INC_PARAM"
	case CauseIFrmIncLen:
		return "IFRM_INC_LEN"
	case CauseIFrmIncMBits:
		return "IFRM_INC_MBITS"
	case CauseUnsolDMResp:
		return "UNSOL_DM_RESP"
	case CauseUnsolDMRespMF:
		return "UNSOL_DM_RESP_MF"
	case CauseUnsolUAResp:
		return "UNSOL_UA_RESP"
	case CauseUnsolSprvResp:
		return "UNSOL_SPRV_RESP"
	case CauseSeqErr:
		return "SEQ_ERR"
	case CauseSABMMF:
		return "SABM_MF"
	case CauseSABMInfoNotAll:
		return "SABM_INFO_NOTALL"
	case CauseT200Expired:
		return "T200_EXPIRED"
	case CauseFRMR:
		return "FRMR"
	default:
		return "unknown cause"
	}
}

// MDLError wraps a Cause as a Go error for callers that want err-style
// handling (codec-to-datalink glue, logging) in addition to the
// MDL-ERROR.ind primitive the FSM itself emits as an Action.
type MDLError struct {
	Cause Cause
}

func (e *MDLError) Error() string {
	return "MDL-ERROR: " + e.Cause.String()
}
