/*
ledger.go - Append-only booking ledger

PURPOSE:
  The Ledger is the immutable source of truth for committed service
  entries. Monthly aggregates and commission decisions are always derived
  by reading it - there is no stored total that can drift out of sync.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Committed booking fields never change
  3. CORRECTIONS: A fix appends a replacement entry and retires the old one
     via a SupersededBy back-reference; both remain in history
  4. DERIVED-CONSISTENT: Hours is recomputed from (Start, End) on append so
     it can never disagree with the interval

WHY APPEND-ONLY?
  - Aggregates stay re-derivable from scratch at any time
  - "Why was this month's total X?" is answerable from history
  - No partial update can corrupt a customer-month

EXAMPLE FLOW:
  1. Entry booked 09:00-12:00, fee 5400:       Append
  2. Turns out it ran 09:00-13:00:             Supersede -> new entry,
     old entry gets SupersededBy and drops out of aggregation
  3. Monthly totals recomputed on demand reflect only the replacement

SEE ALSO:
  - store.go: Low-level persistence interface
  - aggregate.go: Derived monthly totals (invalidated on every change here)
*/
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER - Append-only entry log
// =============================================================================

// Ledger is the source of truth for committed bookings.
//
// INVARIANTS:
//   - Append-only: corrections supersede, they never edit.
//   - Every write is validated: times well-formed, money non-negative,
//     hours consistent with the interval.
type Ledger interface {
	// Append validates and commits an entry, returning its id.
	// Must only be called after a conflict check under the host's per-key
	// lock (see booking.Service).
	Append(ctx context.Context, entry BookingEntry) (EntryID, error)

	// Supersede commits replacement and retires old in one step.
	// The replacement carries Supersedes=old.
	Supersede(ctx context.Context, old EntryID, replacement BookingEntry) (EntryID, error)

	// Entry returns a single committed entry.
	Entry(ctx context.Context, id EntryID) (*BookingEntry, error)

	// EntriesFor returns all entries on one actor's calendar for one date.
	EntriesFor(ctx context.Context, kind ActorKind, actorID string, date Date) ([]BookingEntry, error)

	// EntriesForMonth returns all of a customer's entries in one month.
	EntriesForMonth(ctx context.Context, customerID CustomerID, ym YearMonth) ([]BookingEntry, error)

	// Months returns the distinct months a customer has entries in, ascending.
	Months(ctx context.Context, customerID CustomerID) ([]YearMonth, error)
}

// ChangeListener is notified after every committed change to a
// customer-month, so derived caches can invalidate. Notification happens
// after the write; recomputation always reads the store.
type ChangeListener interface {
	LedgerChanged(customerID CustomerID, ym YearMonth)
}

// =============================================================================
// DEFAULT LEDGER - Implementation over Store
// =============================================================================

type DefaultLedger struct {
	Store     Store
	Listeners []ChangeListener
}

func NewLedger(store Store, listeners ...ChangeListener) *DefaultLedger {
	return &DefaultLedger{Store: store, Listeners: listeners}
}

func (l *DefaultLedger) Append(ctx context.Context, entry BookingEntry) (EntryID, error) {
	prepared, err := l.prepare(entry)
	if err != nil {
		return "", err
	}
	if prepared.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, prepared.IdempotencyKey)
		if err != nil {
			return "", err
		}
		if exists {
			return "", ErrDuplicateIdempotencyKey
		}
	}
	if err := l.Store.Append(ctx, prepared); err != nil {
		return "", err
	}
	l.notify(prepared)
	return prepared.ID, nil
}

func (l *DefaultLedger) Supersede(ctx context.Context, old EntryID, replacement BookingEntry) (EntryID, error) {
	prev, err := l.Store.Get(ctx, old)
	if err != nil {
		return "", err
	}
	if prev == nil {
		return "", ErrEntryNotFound
	}
	if prev.Retired() {
		return "", ErrEntryRetired
	}

	replacement.Supersedes = old
	prepared, err := l.prepare(replacement)
	if err != nil {
		return "", err
	}
	if err := l.Store.Append(ctx, prepared); err != nil {
		return "", err
	}
	if err := l.Store.MarkSuperseded(ctx, old, prepared.ID); err != nil {
		return "", err
	}

	// Both the retired entry's month and the replacement's month change.
	l.notify(*prev)
	l.notify(prepared)
	return prepared.ID, nil
}

func (l *DefaultLedger) Entry(ctx context.Context, id EntryID) (*BookingEntry, error) {
	return l.Store.Get(ctx, id)
}

func (l *DefaultLedger) EntriesFor(ctx context.Context, kind ActorKind, actorID string, date Date) ([]BookingEntry, error) {
	return l.Store.QueryByActorDate(ctx, kind, actorID, date)
}

func (l *DefaultLedger) EntriesForMonth(ctx context.Context, customerID CustomerID, ym YearMonth) ([]BookingEntry, error) {
	return l.Store.QueryByCustomerMonth(ctx, customerID, ym)
}

func (l *DefaultLedger) Months(ctx context.Context, customerID CustomerID) ([]YearMonth, error) {
	return l.Store.MonthsWithEntries(ctx, customerID)
}

func (l *DefaultLedger) notify(entry BookingEntry) {
	for _, listener := range l.Listeners {
		listener.LedgerChanged(entry.CustomerID, entry.ServiceDate.YearMonth())
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// prepare validates an entry and fills derived fields (ID, Hours, CreatedAt).
func (l *DefaultLedger) prepare(entry BookingEntry) (BookingEntry, error) {
	if entry.CustomerID == "" {
		return entry, &ValidationError{Field: "customer_id", Value: "", Reason: "required"}
	}
	if entry.StaffID == "" {
		return entry, &ValidationError{Field: "staff_id", Value: "", Reason: "required"}
	}
	if entry.ServiceDate.IsZero() {
		return entry, &ValidationError{Field: "service_date", Value: "", Reason: "required"}
	}
	if entry.Fee.IsNegative() {
		return entry, &ValidationError{Field: "fee", Value: entry.Fee.String(), Reason: "must be non-negative"}
	}
	if entry.StaffSalary.IsNegative() {
		return entry, &ValidationError{Field: "staff_salary", Value: entry.StaffSalary.String(), Reason: "must be non-negative"}
	}

	// Hours is derived from the interval. If the caller supplied a value it
	// must agree with the midnight-wrap arithmetic exactly.
	derived := DeriveHours(entry.Interval())
	if entry.Hours.IsZero() {
		entry.Hours = derived
	} else if !entry.Hours.Equal(derived) {
		return entry, &ValidationError{
			Field: "hours", Value: entry.Hours.String(),
			Reason: "inconsistent with interval, expected " + derived.String(),
		}
	}

	if entry.ID == "" {
		entry.ID = EntryID(uuid.NewString())
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Category == "" {
		entry.Category = CategoryStandard
	}
	return entry, nil
}

// DeriveHours converts an interval's occupied minutes to exact decimal hours.
func DeriveHours(iv Interval) decimal.Decimal {
	return decimal.NewFromInt(int64(iv.Minutes())).Div(decimal.NewFromInt(60))
}
