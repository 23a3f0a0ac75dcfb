/*
errors.go - Error taxonomy for the review desk

PURPOSE:
  Every operation ends in exactly one outcome the caller can render as a
  single message. Success outcomes are ClaimOutcome values; failures are
  the sentinels below, matched with errors.Is().

ERROR CATEGORIES:
  1. Client errors - InvalidInput, AlreadyFinalized, ValidationFailed
  2. Missing data  - NotFound
  3. Store errors  - StoreUnavailable (surfaced verbatim, never retried)

ORDERING:
  Client errors are detected before any ledger write. A failed operation
  never leaves a row half-written.

SEE ALSO:
  - ledger/ledger.go: ErrUnavailable, which ErrStoreUnavailable aliases
*/
package ccb

import (
	"errors"
	"fmt"

	"github.com/warp/ccbdesk/ledger"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput: empty business key, missing required field, bad result.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyFinalized: the case is Approved or Rejected.
	ErrAlreadyFinalized = errors.New("case already finalized")

	// ErrValidationFailed: a business rule rejected the write (Pending without notes).
	ErrValidationFailed = errors.New("validation failed")

	// ErrNotFound: no row carries the business key.
	ErrNotFound = errors.New("case not found")

	// ErrDuplicateCase is returned by Repository.Append when the key already
	// exists. Claim handles it; callers of Claim never see it.
	ErrDuplicateCase = errors.New("case already exists")

	// ErrStoreUnavailable is the ledger's transport failure.
	ErrStoreUnavailable = ledger.ErrUnavailable

	// ErrInvalidPeriod: a report period ends before it starts.
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InputError names the offending field.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// ValidationError carries the user-facing reason.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation failed: " + e.Reason }

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// FinalizedError reports which terminal status locked the case.
type FinalizedError struct {
	CaseID CaseID
	Status Status
}

func (e *FinalizedError) Error() string {
	return fmt.Sprintf("case %s already finalized (%s)", e.CaseID, e.Status.Label())
}

func (e *FinalizedError) Unwrap() error { return ErrAlreadyFinalized }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's input or
// the case's state rather than the store.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrAlreadyFinalized) ||
		errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrInvalidPeriod)
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsUnavailable(err error) bool { return errors.Is(err, ErrStoreUnavailable) }

// storeError classifies a ledger error. A row that vanished between the
// locate and the write is NotFound; anything unclassified is treated as
// the store being unavailable.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrRowOutOfRange):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, ledger.ErrUnavailable):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return ledger.Unavailable(op, err)
	}
}
