/*
store.go - Persistence interface for the booking ledger

PURPOSE:
  Defines the read/write path between the core and whatever stores the
  committed entries. The core never issues storage-specific queries; the
  explicit query interface decouples conflict logic and aggregation from
  any particular database.

APPEND-ONLY CONTRACT:
  - Append():          the only way an entry enters the ledger
  - MarkSuperseded():  sets the SupersededBy back-reference on a committed
                       entry; a relation, never an edit of booking fields
  - NO Update() or Delete() methods exist

IDEMPOTENCY:
  Appends carry an optional idempotency key. A duplicate key is rejected,
  which protects against double-submits and network retries.

IMPLEMENTATIONS:
  - store/sqlite:       production SQLite store
  - engine/store:       in-memory store for testing and development

SEE ALSO:
  - ledger.go: Higher-level ledger using Store
*/
package engine

import "context"

// =============================================================================
// STORE - Append-only entry persistence
// =============================================================================

// Store handles persistence of booking entries.
// IMPORTANT: Store is APPEND-ONLY. Corrections append a replacement entry
// and retire the old one via MarkSuperseded; committed booking fields are
// never rewritten.
type Store interface {
	// Append persists an entry. Fails with ErrDuplicateIdempotencyKey if
	// the entry's idempotency key already exists.
	Append(ctx context.Context, entry BookingEntry) error

	// MarkSuperseded sets the SupersededBy back-reference on old.
	// Fails with ErrEntryNotFound if old doesn't exist and ErrEntryRetired
	// if it is already superseded.
	MarkSuperseded(ctx context.Context, old, by EntryID) error

	// Get returns a single entry, or nil if it doesn't exist.
	Get(ctx context.Context, id EntryID) (*BookingEntry, error)

	// QueryByActorDate returns every entry (retired included) on the given
	// actor's calendar for one service date, ordered by start time.
	QueryByActorDate(ctx context.Context, kind ActorKind, actorID string, date Date) ([]BookingEntry, error)

	// QueryByCustomerMonth returns every entry (retired included) for a
	// customer whose service date falls in the month, ordered by date.
	QueryByCustomerMonth(ctx context.Context, customerID CustomerID, ym YearMonth) ([]BookingEntry, error)

	// MonthsWithEntries returns the distinct months a customer has entries
	// in, ascending. Drives commission evaluation over the full history.
	MonthsWithEntries(ctx context.Context, customerID CustomerID) ([]YearMonth, error)

	// Exists checks if an idempotency key is already present.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}
