package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures so the HTTP boundary can map them to a status
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindNotFound       ErrorKind = "not_found"
	KindAuthorization  ErrorKind = "authorization"
	KindForbidden      ErrorKind = "forbidden"
	KindPrecondition   ErrorKind = "precondition"
	KindMigration      ErrorKind = "migration"
	KindPartialFailure ErrorKind = "partial_failure"
	KindTimeout        ErrorKind = "timeout"
	KindStore          ErrorKind = "store"
)

// Error is the typed error returned by the core services.
// Message is safe to show to API callers; Err holds the underlying cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Fields  map[string]string

	// Version is set for migration failures
	Version string

	// AppliedTables and FailedTable are set for partial restores
	AppliedTables []string
	FailedTable   string

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewValidationError(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

func NewNotFoundError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewAuthorizationError(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

func NewForbiddenError(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func NewPreconditionError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindPrecondition, Message: fmt.Sprintf(format, args...)}
}

func NewMigrationError(version string, err error) *Error {
	return &Error{
		Kind:    KindMigration,
		Message: fmt.Sprintf("migration %s failed", version),
		Version: version,
		Err:     err,
	}
}

func NewPartialFailure(applied []string, failedTable string, err error) *Error {
	return &Error{
		Kind:          KindPartialFailure,
		Message:       fmt.Sprintf("restore failed at table %s after applying %d table(s): %s", failedTable, len(applied), strings.Join(applied, ", ")),
		AppliedTables: applied,
		FailedTable:   failedTable,
		Err:           err,
	}
}

// NewStoreError wraps a data store failure. Deadline and busy errors are
// reported as timeouts.
func NewStoreError(message string, err error) *Error {
	if IsTimeout(err) {
		return &Error{Kind: KindTimeout, Message: message + ": store timed out", Err: err}
	}
	return &Error{Kind: KindStore, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or KindStore
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStore
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound)
}

// IsTimeout recognises context deadlines and SQLite busy/locked errors
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
