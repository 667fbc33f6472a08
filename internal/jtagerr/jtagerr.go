// Package jtagerr defines the error taxonomy shared by every component of
// the JTAG programmer.
package jtagerr

import "fmt"

// Kind identifies which of the programmer's fixed set of failure modes an
// Error represents.
type Kind int

const (
	// NoCable means neither the USB nor (where built) the parallel-port
	// backend could be opened.
	NoCable Kind = iota
	// CableIO means a write or read to the cable failed or returned the
	// wrong number of bytes.
	CableIO
	// BadSVF means SVF tokenisation, parenthesis matching, or field-length
	// checking failed.
	BadSVF
	// EOpNotSupp means an SVF statement used an unrecognised keyword.
	EOpNotSupp
	// EInval means a recognised keyword was used with an argument this
	// programmer does not support.
	EInval
	// BadBitstream means the JED file violated the translator's state
	// machine (out-of-order fields, length mismatch, stray data).
	BadBitstream
	// UnsupportedTarget means a JED NOTE DEVICE NAME does not match an
	// entry in the device table.
	UnsupportedTarget
	// CompareFail means read-back TDO did not match the expected value
	// under MASK.
	CompareFail
	// TAPStuck means the TAP engine was asked for a transition it does not
	// know how to perform.
	TAPStuck
)

func (k Kind) String() string {
	switch k {
	case NoCable:
		return "NO_CABLE"
	case CableIO:
		return "CABLE_IO"
	case BadSVF:
		return "BAD_SVF"
	case EOpNotSupp:
		return "EOPNOTSUPP"
	case EInval:
		return "EINVAL"
	case BadBitstream:
		return "BAD_BITSTREAM"
	case UnsupportedTarget:
		return "UNSUPPORTED_TARGET"
	case CompareFail:
		return "COMPARE_FAIL"
	case TAPStuck:
		return "TAP_STUCK"
	default:
		return "UNKNOWN"
	}
}

// Error is the concrete error type returned by every package in this
// module. It carries a Kind for programmatic dispatch (e.g. CLI exit code
// selection) plus a human message and an optional wrapped cause.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error {
	return e.err
}

// New builds an Error of the given Kind with a formatted message.
func New(k Kind, format string, args ...interface{}) error {
	return &Error{Kind: k, msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given Kind around a lower-level cause. It
// returns nil if cause is nil, so call sites can write
// "return jtagerr.Wrap(jtagerr.CableIO, "write", err)" unconditionally
// when err might be nil.
func Wrap(k Kind, msg string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: k, msg: msg, err: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, returning ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return 0, false
}
