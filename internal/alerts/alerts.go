// Package alerts defines the fixed set of anomalies the transaction
// reassembly engine can raise and a default sink that logs them.
//
// Alerts are fire-and-forget: raising one never changes control flow in the
// caller, and a Sink implementation must never block or return an error the
// caller is expected to act on.
package alerts

import "github.com/flowguard/dce2smb/internal/logger"

// Kind enumerates the anomaly signatures this engine recognizes.
type Kind uint8

const (
	// EvasiveFileAttrs: a file create/query/set carried an attribute
	// combination historically used to hide files from enumeration.
	EvasiveFileAttrs Kind = iota

	// UnusualCommandUsed: a tracked-but-rarely-legitimate subcommand was
	// used (e.g. TRANSACTION WRITE_NMPIPE/READ_NMPIPE, NT_TRANSACT_CREATE).
	UnusualCommandUsed

	// DeprecatedCommandUsed: a subcommand considered obsolete and
	// generally only seen from exploit tooling was used.
	DeprecatedCommandUsed

	// InvalidSetupCount: a transaction's setup word count did not match
	// the fixed value required for its family/subcommand.
	InvalidSetupCount

	// DcntZero: a transaction declared a zero total count for a stream
	// (data or parameters) that its subcommand carries.
	DcntZero
)

// String returns the alert's mnemonic name, matching the SID names a SIEM
// integrator would map these onto.
func (k Kind) String() string {
	switch k {
	case EvasiveFileAttrs:
		return "SMB_EVASIVE_FILE_ATTRS"
	case UnusualCommandUsed:
		return "SMB_UNUSUAL_COMMAND_USED"
	case DeprecatedCommandUsed:
		return "SMB_DEPR_COMMAND_USED"
	case InvalidSetupCount:
		return "SMB_INVALID_SETUP_COUNT"
	case DcntZero:
		return "SMB_DCNT_ZERO"
	default:
		return "SMB_UNKNOWN"
	}
}

// GID is the generator id this engine's alerts are raised under. It has no
// meaning beyond grouping these SIDs in a downstream SIEM.
const GID = 133

// Alert is one raised anomaly, generated by a subcommand semantic handler.
type Alert struct {
	Kind      Kind   `json:"kind" jsonschema:"description=which anomaly signature fired"`
	SessionID string `json:"session_id" jsonschema:"description=engine session correlation id"`
	Command   string `json:"command" jsonschema:"description=mnemonic name of the offending subcommand"`
	Detail    string `json:"detail,omitempty" jsonschema:"description=free-form context, e.g. the offending attribute bits"`
}

// Sink receives alerts raised by subcommand semantic handlers. Raise must
// not block and must never return control-flow-relevant information to the
// caller; it is a terminal, call-and-forget interface.
type Sink interface {
	Raise(a Alert)
}

// LoggerSink is the default Sink: it logs every alert as a structured
// warning through the engine's logger.
type LoggerSink struct{}

// NewLoggerSink returns a Sink that logs through the package logger.
func NewLoggerSink() LoggerSink { return LoggerSink{} }

// Raise logs a as a structured warning.
func (LoggerSink) Raise(a Alert) {
	logger.Warn("alert raised",
		"gid", GID,
		"kind", a.Kind.String(),
		"session_id", a.SessionID,
		"command", a.Command,
		"detail", a.Detail,
	)
}
