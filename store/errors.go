// Package store implements the blob metadata store: the persistence and
// concurrency-control core of an emulated Azure-Blob-Storage-compatible
// object-storage service. See SPEC_FULL.md for the full specification.
package store

import (
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/NVIDIA/aistore-blobmeta/cmn"
)

// Kind tags a domain error with one of the identifiers spec §6 requires
// upper layers to be able to distinguish programmatically (never by
// matching on the error string).
type Kind string

const (
	KindContainerNotFound      Kind = "ContainerNotFound"
	KindContainerAlreadyExists Kind = "ContainerAlreadyExists"
	KindBlobNotFound           Kind = "BlobNotFound"
	KindBlobArchived           Kind = "BlobArchived"
	KindSnapshotsPresent       Kind = "SnapshotsPresent"
	KindBlobSnapshotsPresent   Kind = "BlobSnapshotsPresent"
	KindInvalidOperation       Kind = "InvalidOperation"
	KindInvalidBlobType        Kind = "InvalidBlobType"
	KindInvalidLeaseDuration   Kind = "InvalidLeaseDuration"
	KindInvalidLeaseBreakPeriod Kind = "InvalidLeaseBreakPeriod"

	KindLeaseAlreadyPresent              Kind = "LeaseAlreadyPresent"
	KindLeaseIsBrokenAndCannotBeRenewed  Kind = "LeaseIsBrokenAndCannotBeRenewed"
	KindLeaseIsBreakingAndCannotBeChanged Kind = "LeaseIsBreakingAndCannotBeChanged"
	KindLeaseNotPresent                  Kind = "LeaseNotPresent"
	KindLeaseIdMissing                   Kind = "LeaseIdMissing"
	KindLeaseIdMismatchWithBlobOperation  Kind = "LeaseIdMismatchWithBlobOperation"
	KindLeaseIdMismatchWithLeaseOperation Kind = "LeaseIdMismatchWithLeaseOperation"
	KindLeaseLost                        Kind = "LeaseLost"
	KindLeaseIdMismatch                  Kind = "LeaseIdMismatch"

	KindNotImplemented Kind = "NotImplemented"
)

// Error is the store's sole exported error type. Every error an operation
// returns either *is* an *Error (possibly wrapping a backing-store cause)
// or has already been translated into one; callers distinguish kinds with
// errors.As, never string comparison.
type Error struct {
	Kind      Kind
	RequestID string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (request %s)", e.Kind, e.RequestID)
	}
	return fmt.Sprintf("%s: %s (request %s)", e.Kind, e.Message, e.RequestID)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, &Error{Kind: KindBlobNotFound}) work regardless
// of request id or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newErr(requestID string, kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, RequestID: requestID, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// wrapBackingStoreErr translates a raw gorm/driver error into a tagged
// *Error per spec §7: unique-constraint violations on container creation
// become KindContainerAlreadyExists; everything else surfaces wrapped
// (with a stack trace via pkg/errors) but otherwise unchanged, so the
// caller's transaction still aborts on any error.
func wrapBackingStoreErr(requestID string, dialect cmn.Dialect, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return err
	}
	if isUniqueViolation(dialect, err) {
		return newErr(requestID, KindContainerAlreadyExists, "%v", err)
	}
	return pkgerrors.Wrap(err, "backing store")
}

// isUniqueViolation recognizes the three dialects spec §6 names.
func isUniqueViolation(dialect cmn.Dialect, err error) bool {
	msg := err.Error()
	switch dialect {
	case cmn.DialectMySQL, cmn.DialectMariaDB:
		return strings.Contains(msg, "Error 1062") || strings.Contains(msg, "Duplicate entry")
	case cmn.DialectPostgres, cmn.DialectPostgres2:
		return strings.Contains(msg, "SQLSTATE 23505") || strings.Contains(msg, "duplicate key value")
	default: // sqlite
		return strings.Contains(msg, "UNIQUE constraint failed")
	}
}
