/*
errors.go - Centralized error types for the booking core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Outer packages (booking, commission, identity, api) wrap these with
  additional context rather than inventing their own taxonomies.

ERROR CATEGORIES:
  1. Validation errors  - malformed input, always recoverable locally
  2. Conflict errors    - expected business outcomes, not failures
  3. Configuration errors - missing/invalid reference data, skip-and-continue
  4. Concurrency violations - the host's locking contract was broken, fatal
     to the request

RETRY POLICY:
  The core never retries anything. A conflict is a business decision, not a
  transient fault; a concurrency violation requires the caller to retry
  under a correctly held lock.

USAGE:
  if errors.Is(err, engine.ErrConflict) {
      var ce *engine.ConflictError
      errors.As(err, &ce)
      // report ce.Overlaps to the user
  }
*/
package engine

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all malformed-input errors.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a proposed booking overlaps a committed
	// entry for the same actor. Expected and frequent; surfaced as a normal
	// decision outcome.
	ErrConflict = errors.New("booking conflict")

	// ErrConfiguration is returned for missing or invalid reference
	// configuration (rate table rows, exclusion sets). Logged and skipped
	// for the affected customer; never aborts processing of others.
	ErrConfiguration = errors.New("configuration error")

	// ErrConcurrencyViolation indicates an append raced a conflict check on
	// a key the host failed to serialize. Fatal to the request: reject and
	// require the caller to retry under the lock.
	ErrConcurrencyViolation = errors.New("concurrency violation: key not serialized")

	// ErrDuplicateIdempotencyKey is returned when an entry with the same
	// idempotency key already exists. Expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrEntryNotFound is returned when a referenced ledger entry doesn't exist.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrCustomerNotFound is returned when a referenced customer doesn't exist.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrEntryRetired is returned when trying to supersede an entry that has
	// already been superseded.
	ErrEntryRetired = errors.New("entry already superseded")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a single malformed field.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError reports every committed entry the proposal overlaps.
type ConflictError struct {
	ActorKind ActorKind
	ActorID   string
	Date      Date
	Overlaps  []ConflictSummary
}

func (e *ConflictError) Error() string {
	ids := make([]string, len(e.Overlaps))
	for i, o := range e.Overlaps {
		ids[i] = string(o.EntryID)
	}
	return fmt.Sprintf("booking conflict for %s %s on %s: overlaps [%s]",
		e.ActorKind, e.ActorID, e.Date, strings.Join(ids, ", "))
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ConfigurationError reports missing reference data for one customer's
// evaluation. Other customers continue.
type ConfigurationError struct {
	Introducer string
	CustomerID CustomerID
	Detail     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for customer %s (introducer %q): %s",
		e.CustomerID, e.Introducer, e.Detail)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input or
// an expected business outcome, i.e. anything that maps to a 4xx.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrEntryRetired)
}

// IsRetryable returns true if the error might succeed on a caller retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyViolation)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrCustomerNotFound)
}
