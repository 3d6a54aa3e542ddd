// Package rerr defines the engine-wide error and exit-condition vocabulary
// (spec §7): a small closed set of named kinds rather than per-package
// sentinel errors, so a driver that propagates the "worst-severity code
// encountered" (spec §4.9) can compare severities without importing every
// producer package.
package rerr

import "fmt"

// Kind names one of the error conditions enumerated in spec §7.
type Kind string

const (
	MalformedHeader     Kind = "MalformedHeader"
	ClockMismatch       Kind = "ClockMismatch"
	AlignmentImpossible Kind = "AlignmentImpossible"
	DataIntegrity       Kind = "DataIntegrity"
	ShortRead           Kind = "ShortRead"
	EndOfData           Kind = "EndOfData"
	PacketCapReached    Kind = "PacketCapReached"
	UnknownMode         Kind = "UnknownMode"
	IncompatibleOptions Kind = "IncompatibleOptions"
	CalibrationFailed   Kind = "CalibrationFailed"
	Unsupported         Kind = "Unsupported"
)

// fatal reports whether a Kind always terminates the reader (spec §7:
// "Fatal codes release iteration ownership but do not free the reader").
// ShortRead, EndOfData and PacketCapReached are benign by design; the
// remainder are fatal.
func (k Kind) fatal() bool {
	switch k {
	case ShortRead, EndOfData, PacketCapReached:
		return false
	default:
		return true
	}
}

// Fatal reports whether err (if it is an *Error) is a fatal condition.
// A nil error, or an error of any other type, is treated as non-fatal.
func Fatal(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Kind.fatal()
}

// Error is a single human-readable error carrying a stable, comparable
// Kind so callers can branch on the condition without string matching
// (spec §7: "each fatal error has a single human-readable string").
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// New builds an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Severity orders kinds from least to most severe so a driver can reduce
// several phase results down to the one it should report (spec §4.9: "the
// driver takes the min of read-phase and compute-phase codes"). Lower
// numbers are less severe; nil is least severe of all.
func Severity(err error) int {
	if err == nil {
		return 0
	}
	e, ok := err.(*Error)
	if !ok {
		return 100 // an unrecognized error is treated as maximally severe
	}
	switch e.Kind {
	case ShortRead, EndOfData, PacketCapReached:
		return 1
	case DataIntegrity:
		return 2
	default:
		return 3 // setup-time fatal kinds: MalformedHeader, ClockMismatch, etc.
	}
}

// Worse returns whichever of a, b has the higher Severity, preferring a on
// a tie (so repeatedly folding with Worse is left-biased and stable).
func Worse(a, b error) error {
	if Severity(b) > Severity(a) {
		return b
	}
	return a
}
