/*
errors.go - Error taxonomy for the ledger

PURPOSE:
  Every failure the engine returns belongs to exactly one kind:

    NotFound          unknown player or match id
    InvalidRequest    malformed amount, non-participant, non-positive points,
                      missing field, same player on both sides, a balance
                      or score that would overflow
    InsufficientFunds escrow would drive a balance negative
    Conflict          match already settled, tied score, player already in
                      an active match
    Internal          store unavailable or data corruption

  Sentinels are for errors.Is(). Structured errors carry detail and unwrap to
  a sentinel. KindOf() maps any error onto the taxonomy so the HTTP layer
  needs a single switch.

SEE ALSO:
  - api/handlers.go: writeLedgerError maps kinds to status codes
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/warp/arena-ledger/currency"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrConflict          = errors.New("conflict")
	ErrInternal          = errors.New("internal error")

	// ErrInvalidProfile narrows ErrInvalidRequest to player profile fields
	// (names, handedness, opening balance).
	ErrInvalidProfile = fmt.Errorf("%w: player profile", ErrInvalidRequest)

	// ErrConcurrentModification is returned by a store when an update carries
	// a stale Version. The engine retries the whole operation on it.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string // "player" or "match"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidRequestError names the offending field.
type InvalidRequestError struct {
	Field  string
	Reason string
	// Profile is set for player profile fields.
	Profile bool
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidRequestError) Unwrap() error {
	if e.Profile {
		return ErrInvalidProfile
	}
	return ErrInvalidRequest
}

func invalid(field, reason string) error {
	return &InvalidRequestError{Field: field, Reason: reason}
}

func invalidProfile(field, reason string) error {
	return &InvalidRequestError{Field: field, Reason: reason, Profile: true}
}

// InsufficientFundsError provides details about a balance shortage.
type InsufficientFundsError struct {
	PlayerID  PlayerID
	Available currency.Amount
	Requested currency.Amount
	Shortfall currency.Amount
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for player %s: available %s, requested %s, shortfall %s",
		e.PlayerID, e.Available, e.Requested, e.Shortfall)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// ConflictError explains why the current state forbids the operation.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }

func (e *ConflictError) Unwrap() error { return ErrConflict }

func conflict(format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// =============================================================================
// KINDS
// =============================================================================

type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindNotFound          ErrorKind = "not_found"
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindConflict          ErrorKind = "conflict"
	KindInternal          ErrorKind = "internal"
)

// KindOf classifies err. Anything unrecognised is Internal. A concurrent
// modification that survived every retry surfaces as a Conflict.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, currency.ErrInvalidAmount),
		errors.Is(err, currency.ErrOverflow):
		return KindInvalidRequest
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrConflict), errors.Is(err, ErrConcurrentModification):
		return KindConflict
	default:
		return KindInternal
	}
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// internal marks a store failure so it never leaks as a domain error.
func internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindInternal || errors.Is(err, ErrInternal) || IsRetryable(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
}
