// Package errs defines the error kinds shared by every layer of the
// storage engine (disk, page, heap, catalog, exec) and wraps them with
// github.com/pkg/errors so callers keep a stack trace across layers.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error without depending on its wrapped message,
// so callers can branch with Is instead of string-matching.
type Kind string

const (
	DatabaseExists     Kind = "DatabaseExists"
	DatabaseNotFound   Kind = "DatabaseNotFound"
	TableExists        Kind = "TableExists"
	TableNotFound      Kind = "TableNotFound"
	ColumnNotFound     Kind = "ColumnNotFound"
	IncompatibleType   Kind = "IncompatibleType"
	FileExists         Kind = "FileExists"
	FileNotFound       Kind = "FileNotFound"
	FileNotOpen        Kind = "FileNotOpen"
	FileStillOpen      Kind = "FileStillOpen"
	PageNotExist       Kind = "PageNotExist"
	RecordNotFound     Kind = "RecordNotFound"
	SlotOccupied       Kind = "SlotOccupied"
	NoSpace            Kind = "NoSpace"
	IoError            Kind = "IoError"
	TransactionAborted Kind = "TransactionAborted"
	Internal           Kind = "Internal"
)

// E is an error tagged with a Kind. The underlying cause (if any) is
// preserved via pkg/errors so %+v prints a stack trace.
type E struct {
	Kind  Kind
	cause error
}

func (e *E) Error() string {
	if e.cause == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.cause)
}

func (e *E) Unwrap() error { return e.cause }

// Format implements fmt.Formatter: %+v prints the Kind followed by the
// cause with its pkg/errors stack trace; every other verb formats
// Error() as usual.
func (e *E) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') && e.cause != nil {
		fmt.Fprintf(s, "%s: %+v", e.Kind, e.cause)
		return
	}
	fmt.Fprintf(s, fmt.FormatString(s, verb), e.Error())
}

// New builds a bare error of the given kind with a message.
func New(kind Kind, msg string) error {
	return &E{Kind: kind, cause: errors.New(msg)}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &E{Kind: kind, cause: errors.Errorf(format, args...)}
}

// Wrap attaches a Kind to an existing error, preserving its stack via
// pkg/errors.Wrap.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &E{Kind: kind, cause: errors.Wrap(err, msg)}
}

// Is reports whether err (or any error in its chain) carries kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*E); ok {
			if e.Kind == kind {
				return true
			}
			err = e.cause
			continue
		}
		cause := errors.Unwrap(err)
		if cause == nil {
			return false
		}
		err = cause
	}
	return false
}

// KindOf returns the Kind of err, or Internal if err does not carry one.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*E); ok {
			return e.Kind
		}
		err = errors.Unwrap(err)
	}
	return Internal
}
