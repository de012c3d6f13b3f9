// Package errs defines the error taxonomy shared by the persistence core.
//
// Every error surfaced by the session, the row persister, and descriptor
// resolution is an *Error carrying a Code. Callers branch on the code with the
// Is* helpers, which unwrap through fmt.Errorf chains.
package errs

import (
	"errors"
	"fmt"
)

// Code categorizes persistence errors.
type Code string

const (
	// CodeConfiguration indicates bad or missing entity metadata.
	CodeConfiguration Code = "CONFIGURATION"

	// CodeIllegalState indicates an operation on a closed session or an
	// inactive transaction, or an update of an untracked record.
	CodeIllegalState Code = "ILLEGAL_STATE"

	// CodeIllegalArgument indicates an operation on a detached record.
	CodeIllegalArgument Code = "ILLEGAL_ARGUMENT"

	// CodePersistence wraps store failures and affected-row mismatches.
	CodePersistence Code = "PERSISTENCE"

	// CodeConnection indicates a physical connection could not be obtained.
	CodeConnection Code = "CONNECTION"
)

// Error is the structured error returned by the persistence core.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Entity is the type ID of the affected entity, if known.
	Entity string

	// ID is the identifier of the affected row, if known.
	ID any

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Entity != "" && e.ID != nil:
		msg = fmt.Sprintf("%s (entity=%s, id=%v)", msg, e.Entity, e.ID)
	case e.Entity != "":
		msg = fmt.Sprintf("%s (entity=%s)", msg, e.Entity)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Configuration creates a CodeConfiguration error.
func Configuration(format string, args ...any) *Error {
	return &Error{Code: CodeConfiguration, Message: fmt.Sprintf(format, args...)}
}

// IllegalState creates a CodeIllegalState error.
func IllegalState(format string, args ...any) *Error {
	return &Error{Code: CodeIllegalState, Message: fmt.Sprintf(format, args...)}
}

// IllegalArgument creates a CodeIllegalArgument error.
func IllegalArgument(format string, args ...any) *Error {
	return &Error{Code: CodeIllegalArgument, Message: fmt.Sprintf(format, args...)}
}

// Persistence creates a CodePersistence error for the given entity and id.
func Persistence(entity string, id any, message string, err error) *Error {
	return &Error{Code: CodePersistence, Message: message, Entity: entity, ID: id, Err: err}
}

// Connection creates a CodeConnection error.
func Connection(message string, err error) *Error {
	return &Error{Code: CodeConnection, Message: message, Err: err}
}

// For returns a copy of e annotated with the entity and id.
func (e *Error) For(entity string, id any) *Error {
	cp := *e
	cp.Entity = entity
	cp.ID = id
	return &cp
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return CodeOf(err) == CodeConfiguration }

// IsIllegalState reports whether err is an illegal-state error.
func IsIllegalState(err error) bool { return CodeOf(err) == CodeIllegalState }

// IsIllegalArgument reports whether err is an illegal-argument error.
func IsIllegalArgument(err error) bool { return CodeOf(err) == CodeIllegalArgument }

// IsPersistence reports whether err is a persistence error.
func IsPersistence(err error) bool { return CodeOf(err) == CodePersistence }

// IsConnection reports whether err is a connection error.
func IsConnection(err error) bool { return CodeOf(err) == CodeConnection }
