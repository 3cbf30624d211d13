// Package exc implements the error taxonomy shared across the wire engine,
// the schema validator and the code generator. Every fallible routine in
// this module returns an error that either is, or wraps, an *exc.Error so
// callers can inspect exc.KindOf(err) instead of matching on message text.
package exc

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind names one leaf of the error taxonomy from the wire-format spec.
type Kind int

const (
	Unknown Kind = iota

	// Wire-format errors.
	OutOfBounds
	InvalidSegmentCount
	MessageTooLarge
	UnexpectedEOF
	InvalidPackedMessage
	InvalidPointer
	InvalidFarPointer
	InvalidInlineCompositePointer
	InvalidListElementSize
	InvalidTextPointer
	InvalidUTF8
	IndexOutOfBounds
	ElementCountTooLarge
	TraversalLimitExceeded
	NestingLimitExceeded
	SegmentCountLimitExceeded
	TruncatedMessage
	InvalidMessageSize
	OffsetOverflow

	// Schema-level errors.
	InvalidSchema
	InvalidEnumValue
	StructSizeTooSmall
	SchemaCycleDetected
	SchemaRecursionLimitExceeded
	NonCanonicalSegments

	// Clone/validate errors.
	RecursionLimitExceeded

	// Resource errors.
	OutOfMemory
)

var kindNames = map[Kind]string{
	Unknown:                       "unknown",
	OutOfBounds:                   "OutOfBounds",
	InvalidSegmentCount:           "InvalidSegmentCount",
	MessageTooLarge:               "MessageTooLarge",
	UnexpectedEOF:                 "UnexpectedEof",
	InvalidPackedMessage:          "InvalidPackedMessage",
	InvalidPointer:                "InvalidPointer",
	InvalidFarPointer:             "InvalidFarPointer",
	InvalidInlineCompositePointer: "InvalidInlineCompositePointer",
	InvalidListElementSize:        "InvalidListElementSize",
	InvalidTextPointer:            "InvalidTextPointer",
	InvalidUTF8:                   "InvalidUtf8",
	IndexOutOfBounds:              "IndexOutOfBounds",
	ElementCountTooLarge:          "ElementCountTooLarge",
	TraversalLimitExceeded:        "TraversalLimitExceeded",
	NestingLimitExceeded:          "NestingLimitExceeded",
	SegmentCountLimitExceeded:     "SegmentCountLimitExceeded",
	TruncatedMessage:              "TruncatedMessage",
	InvalidMessageSize:            "InvalidMessageSize",
	OffsetOverflow:                "OffsetOverflow",
	InvalidSchema:                 "InvalidSchema",
	InvalidEnumValue:              "InvalidEnumValue",
	StructSizeTooSmall:            "StructSizeTooSmall",
	SchemaCycleDetected:           "SchemaCycleDetected",
	SchemaRecursionLimitExceeded:  "SchemaRecursionLimitExceeded",
	NonCanonicalSegments:          "NonCanonicalSegments",
	RecursionLimitExceeded:        "RecursionLimitExceeded",
	OutOfMemory:                   "OutOfMemory",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Category maps a Kind onto the error category tag the CLI prefixes
// stderr output with: schema, wire or internal. No Kind maps to an io
// category; an error with no Kind, such as an I/O failure, reports as
// internal.
func (k Kind) Category() string {
	switch k {
	case InvalidSchema, InvalidEnumValue, StructSizeTooSmall, SchemaCycleDetected,
		SchemaRecursionLimitExceeded, NonCanonicalSegments, RecursionLimitExceeded:
		return "schema"
	case OutOfMemory:
		return "internal"
	case Unknown:
		return "internal"
	default:
		return "wire"
	}
}

// Error is the concrete error type returned throughout this module. Op
// names the operation that failed (e.g. "read root", "decode segment 2"),
// matching the prefix style the teacher's exc.WrapError call sites use.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("capnp: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("capnp: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Format lets %+v print a stack trace when the wrapped cause carries one
// (github.com/pkg/errors attaches one in New/Wrap).
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s: %+v", e.Op, e.Err)
			return
		}
		fallthrough
	default:
		fmt.Fprint(s, e.Error())
	}
}

// New creates an *Error of the given kind, wrapping msg with a stack trace.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Raise is like New but builds the message from format and args, as
// fmt.Sprintf does.
func Raise(kind Kind, op string, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// WrapError wraps err with an operation prefix, exactly like the teacher's
// exc.WrapError(op, err) call sites. The resulting error keeps the
// original's Kind if it has one, so repeated wrapping on the way back up
// the call stack doesn't lose the taxonomy classification.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindOf(err)
	return &Error{Kind: kind, Op: op, Err: errors.WithStack(err)}
}

// WithKind wraps err, forcing the taxonomy Kind even if err already had one.
func WithKind(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: errors.WithStack(err)}
}

// KindOf walks err's Unwrap chain looking for the first *Error and returns
// its Kind, or Unknown if none is found.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return Unknown
		}
		err = u.Unwrap()
	}
	return Unknown
}
