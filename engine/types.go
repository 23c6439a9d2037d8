/*
Package engine provides the booking-ledger processing core.

PURPOSE:
  This package contains the types and algorithms at the heart of the
  home-care booking system: interval conflict detection, the append-only
  booking ledger, and monthly per-customer aggregation. Commission
  evaluation and identifier allocation build on top of it (see the
  commission and identity packages).

KEY CONCEPTS IN THIS FILE (types.go):
  - BookingEntry: An immutable ledger record of one scheduled service
  - Customer: A read-only attribute snapshot supplied by the host CRUD layer
  - ActorKind: Whose calendar an interval occupies (staff or customer)
  - Category: Commission-eligibility tag on an entry

DESIGN PRINCIPLES:
  1. Immutability: Committed entries are never edited; corrections append
     a replacement and retire the old entry via a back-reference
  2. Precision: Uses decimal.Decimal for money and hours - no float drift
  3. Derivation: Aggregates and decisions are always recomputable from the
     ledger; nothing downstream is a source of truth
  4. No I/O: The core consumes entries and configuration, produces
     decisions; storage and transport live at the edges

USAGE:
  entry := engine.BookingEntry{
      CustomerID:  "cust-7",
      StaffID:     "staff-3",
      ServiceDate: engine.NewDate(2025, time.March, 10),
      Start:       engine.MustTimeOfDay("09:00"),
      End:         engine.MustTimeOfDay("12:00"),
      Fee:         engine.MustDecimal("5400"),
      StaffSalary: engine.MustDecimal("3200"),
  }

SEE ALSO:
  - interval.go: Conflict detection over half-open, midnight-wrapping intervals
  - ledger.go: Append-only ledger and supersede semantics
  - aggregate.go: Monthly per-customer totals
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntryID string
type CustomerID string
type StaffID string

// ActorKind identifies whose calendar a booking occupies. Conflict checks
// run per actor: a staff member cannot serve two customers at once, and a
// customer cannot receive two services at once.
type ActorKind string

const (
	ActorStaff    ActorKind = "staff"
	ActorCustomer ActorKind = "customer"
)

// =============================================================================
// CATEGORY - Commission-eligibility tag
// =============================================================================

// Category tags an entry with how the customer was acquired or what kind of
// service was delivered. Some categories (walk-in, direct acquisition) are
// permanently excluded from commission aggregation.
type Category string

const (
	CategoryStandard Category = "standard"
	CategoryWalkIn   Category = "walk_in"
	CategoryDirect   Category = "direct_acquisition"
	CategoryTrial    Category = "trial"
)

// =============================================================================
// BOOKING ENTRY - Immutable ledger record
// =============================================================================

// BookingEntry is a single scheduled unit of service for one customer and
// one staff member on one date.
//
// INVARIANTS:
//   - Immutable once committed. The only sanctioned mutation is setting
//     SupersededBy, which is a relation, not an edit: the aggregation-
//     relevant fields never change.
//   - Hours is derived from (Start, End) under midnight-wrap rules and is
//     always non-negative.
//   - Fee and StaffSalary are non-negative. StaffSalary may exceed Fee
//     (a loss-making entry); callers surface that as a warning, not an error.
type BookingEntry struct {
	ID         EntryID
	CustomerID CustomerID
	StaffID    StaffID

	ServiceDate Date
	Start       TimeOfDay
	End         TimeOfDay // End <= Start means the interval wraps past midnight

	Hours       decimal.Decimal
	Fee         decimal.Decimal
	StaffSalary decimal.Decimal
	Category    Category

	// Correction chain. Supersedes points at the entry this one replaces;
	// SupersededBy is the back-reference set on the replaced entry.
	Supersedes   EntryID
	SupersededBy EntryID

	IdempotencyKey string
	CreatedAt      time.Time
}

// Retired reports whether this entry has been replaced by a correction.
// Retired entries stay in the ledger but are invisible to aggregation
// and conflict checks.
func (e BookingEntry) Retired() bool { return e.SupersededBy != "" }

// Interval returns the occupied time interval of this entry.
func (e BookingEntry) Interval() Interval {
	return Interval{Date: e.ServiceDate, Start: e.Start, End: e.End}
}

// ActorID returns the entry's identifier on the given actor's calendar.
func (e BookingEntry) ActorID(kind ActorKind) string {
	if kind == ActorStaff {
		return string(e.StaffID)
	}
	return string(e.CustomerID)
}

// Profit returns Fee - StaffSalary for this single entry.
func (e BookingEntry) Profit() decimal.Decimal { return e.Fee.Sub(e.StaffSalary) }

// =============================================================================
// CUSTOMER - Read-only attribute snapshot
// =============================================================================

// CustomerType distinguishes how a customer pays for service.
type CustomerType string

const (
	CustomerDirect  CustomerType = "direct-customer"
	CustomerVoucher CustomerType = "voucher-customer"
)

// VoucherStatus tracks a voucher customer's paperwork state.
type VoucherStatus string

const (
	VoucherNone    VoucherStatus = "none"
	VoucherPending VoucherStatus = "pending"
	VoucherHeld    VoucherStatus = "held"
)

// Customer is the attribute snapshot the core receives from the host CRUD
// layer. The core never mutates it; the identity package proposes new
// Identifier values but the host decides whether to apply them.
type Customer struct {
	ID            CustomerID
	Name          string
	Type          CustomerType
	VoucherStatus VoucherStatus
	Introducer    string
	Identifier    string
}

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// MustDecimal parses a decimal string, returning zero on failure.
// Intended for literals in configuration and tests.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// DisplayHours rounds an exact hour total to one decimal place.
// Rounding happens ONLY at the display boundary - intermediate sums
// always carry full precision.
func DisplayHours(h decimal.Decimal) string { return h.StringFixed(1) }
