// Package status defines the tagged Status{Code, message} result type
// returned by the engine's reader/writer paths, as described in §4/§7. It
// layers a small, stable classification on top of github.com/cockroachdb/errors
// so that callers can branch on Code while still getting redaction-safe,
// chain-friendly error values from the underlying library.
package status

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// Code classifies the outcome of an operation.
type Code uint8

const (
	// OK indicates success. A zero-value Status is OK.
	OK Code = iota
	// NotFound indicates a missing key.
	NotFound
	// Deleted indicates the most recent entry for a key is a deletion
	// tombstone: distinct from NotFound so a caller walking multiple
	// layers (memtable, immutable memtable, level 0..N) knows to stop the
	// search rather than fall through to an older, shadowed value.
	Deleted
	// Corruption indicates on-disk data failed a checksum or format check.
	Corruption
	// NotSupported indicates a requested feature or option is unimplemented.
	NotSupported
	// InvalidArgument indicates a caller-supplied argument was malformed.
	InvalidArgument
	// IOError indicates a failure from the underlying filesystem.
	IOError
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case NotFound:
		return "NotFound"
	case Deleted:
		return "Deleted"
	case Corruption:
		return "Corruption"
	case NotSupported:
		return "NotSupported"
	case InvalidArgument:
		return "InvalidArgument"
	case IOError:
		return "IOError"
	default:
		return fmt.Sprintf("Code(%d)", uint8(c))
	}
}

// Status pairs a Code with the underlying error that produced it. The zero
// Status is OK with a nil cause and satisfies error (returning "OK" from
// Error()), so a *Status can be compared against nil the way a plain error
// is, while still carrying a Code for callers that want to branch on it.
type Status struct {
	code  Code
	cause error
}

// New builds a Status of the given code wrapping msg.
func New(code Code, msg string) Status {
	return Status{code: code, cause: errors.New(msg)}
}

// Newf builds a Status of the given code with a formatted message.
func Newf(code Code, format string, args ...interface{}) Status {
	return Status{code: code, cause: errors.Newf(format, args...)}
}

// Wrap attaches code to an existing error, preserving err in the cause chain
// so errors.Is/As and errors.Cause continue to work against it.
func Wrap(code Code, err error) Status {
	if err == nil {
		return Status{}
	}
	return Status{code: code, cause: err}
}

// Code returns the classification of s.
func (s Status) Code() Code { return s.code }

// OK reports whether s represents success.
func (s Status) OK() bool { return s.code == OK && s.cause == nil }

// IsNotFound reports whether s is a NotFound status.
func (s Status) IsNotFound() bool { return s.code == NotFound }

// IsDeleted reports whether s represents a deletion tombstone.
func (s Status) IsDeleted() bool { return s.code == Deleted }

// IsCorruption reports whether s is a Corruption status.
func (s Status) IsCorruption() bool { return s.code == Corruption }

// Unwrap exposes the underlying cause for errors.Is/As/Cause.
func (s Status) Unwrap() error { return s.cause }

// Error implements the error interface.
func (s Status) Error() string {
	if s.cause == nil {
		return "OK"
	}
	return fmt.Sprintf("%s: %s", s.code, s.cause.Error())
}

// SafeFormat implements redact.SafeFormatter, marking the Code as safe for
// telemetry while letting the wrapped cause's own redaction markers (if any)
// govern the rest of the message.
func (s Status) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(s.code.String()))
	if s.cause != nil {
		w.SafeString(": ")
		w.Print(s.cause)
	}
}

// NotFoundf builds a NotFound status with a formatted message.
func NotFoundf(format string, args ...interface{}) Status {
	return Newf(NotFound, format, args...)
}

// Deletedf builds a Deleted status with a formatted message.
func Deletedf(format string, args ...interface{}) Status {
	return Newf(Deleted, format, args...)
}

// CorruptionErrorf builds a Corruption status with a formatted message.
func CorruptionErrorf(format string, args ...interface{}) Status {
	return Newf(Corruption, format, args...)
}

// InvalidArgumentf builds an InvalidArgument status with a formatted message.
func InvalidArgumentf(format string, args ...interface{}) Status {
	return Newf(InvalidArgument, format, args...)
}

// IOErrorf builds an IOError status with a formatted message.
func IOErrorf(format string, args ...interface{}) Status {
	return Newf(IOError, format, args...)
}

// FromError classifies a plain error as a Status, defaulting to IOError for
// errors with no better-known classification. Errors already produced by
// this package round-trip through their original Code.
func FromError(err error) Status {
	if err == nil {
		return Status{}
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return Status{code: IOError, cause: err}
}
