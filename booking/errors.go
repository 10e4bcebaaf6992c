/*
errors.go - Centralized error types for the booking engine

PURPOSE:
  All engine errors in one place. Callers branch with errors.Is on the
  sentinels; the HTTP layer maps ErrorKind to a status code and a
  user-distinguishable message ("already booked" vs "deadline passed",
  never a generic failure for a condition with a known kind).

ERROR CATEGORIES:
  1. Admission rejections - duplicate, closed, expired
  2. Store errors         - not found, serialization conflict
  3. Input errors         - validation failures

SEE ALSO:
  - ledger.go: Produces these errors
  - api/handlers.go: Maps ErrorKind to HTTP responses
*/
package booking

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when the referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateMember is returned when the actor already holds a
	// reservation on the record.
	ErrDuplicateMember = errors.New("duplicate reservation")

	// ErrClosed is returned when the record's status is not open
	// (full, cancelled, completed, or already swept to expired).
	ErrClosed = errors.New("record not open")

	// ErrExpired is returned when the record's deadline has passed,
	// whether or not the stored status has caught up.
	ErrExpired = errors.New("deadline passed")

	// ErrConflict is returned when a serialization conflict persists
	// after the bounded retry budget is exhausted.
	ErrConflict = errors.New("concurrent modification")

	// ErrValidation is returned for malformed input: missing actor,
	// non-future deadline, non-positive capacity target.
	ErrValidation = errors.New("invalid input")

	// ErrNotMember is returned when cancelling a reservation the actor
	// does not hold.
	ErrNotMember = errors.New("no reservation held")

	// ErrNotOwner is returned when a non-owner tries to cancel a record.
	ErrNotOwner = errors.New("not the record owner")
)

// =============================================================================
// ERROR KIND - Wire-level taxonomy
// =============================================================================

type ErrorKind string

const (
	KindNotFound   ErrorKind = "NOT_FOUND"
	KindDuplicate  ErrorKind = "DUPLICATE"
	KindClosed     ErrorKind = "CLOSED"
	KindExpired    ErrorKind = "EXPIRED"
	KindConflict   ErrorKind = "CONFLICT"
	KindValidation ErrorKind = "VALIDATION"
	KindInternal   ErrorKind = "INTERNAL"
)

// KindOf classifies any error into the taxonomy. Unknown errors are
// INTERNAL.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrDuplicateMember):
		return KindDuplicate
	case errors.Is(err, ErrClosed), errors.Is(err, ErrNotMember), errors.Is(err, ErrNotOwner):
		return KindClosed
	case errors.Is(err, ErrExpired):
		return KindExpired
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrValidation):
		return KindValidation
	default:
		return KindInternal
	}
}

// =============================================================================
// STRUCTURED ERRORS - Carry record/actor context
// =============================================================================

// BookingError wraps a sentinel with the record and actor involved.
type BookingError struct {
	Err      error
	RecordID RecordID
	ActorID  ActorID
}

func (e *BookingError) Error() string {
	return fmt.Sprintf("%s: record %s, actor %s", e.Err, e.RecordID, e.ActorID)
}

func (e *BookingError) Unwrap() error { return e.Err }

// UserMessage returns the human-facing text for an error kind. Each
// rejection reason gets its own message so the UI can tell "slot full"
// apart from "already booked".
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindNotFound:
		return "Record not found"
	case KindDuplicate:
		return "You already hold a reservation here"
	case KindClosed:
		return "This slot is full or no longer open"
	case KindExpired:
		return "The deadline has passed"
	case KindConflict:
		return "Busy, please retry"
	case KindValidation:
		return "Invalid request"
	default:
		return "Something went wrong"
	}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the operation might succeed when retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is the caller's fault rather
// than a store failure.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindDuplicate, KindClosed, KindExpired, KindValidation, KindNotFound:
		return true
	}
	return false
}

func reasonError(reason Reason) error {
	switch reason {
	case ReasonDuplicate:
		return ErrDuplicateMember
	case ReasonExpired:
		return ErrExpired
	default:
		return ErrClosed
	}
}
