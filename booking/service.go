/*
Package booking combines conflict detection and ledger appends.

PURPOSE:
  Wraps the engine's pure pieces into the host-facing booking flow:
  gather the relevant calendar slices, run the conflict check, and - only
  under the per-key lock - append. This package owns the serialization
  the ledger contract requires; the engine stays lock-free and pure.

WHY A WRAPPER?
  The conflict detector only does interval arithmetic and the ledger only
  persists. Check-then-append is not atomic by construction, so something
  has to hold (actorKind, actorID, date) exclusive from the moment the
  existing entries are read until the new entry is committed. That scope
  lives here.

LOCKED KEYS PER BOOKING:
  Both calendars are guarded - the staff member's and the customer's -
  and both dates when the interval wraps midnight. Keys are acquired in
  sorted order (see engine.KeyedMutex.LockAll) so overlapping scopes
  cannot deadlock.

FORCE SUBMIT:
  Whether a caller may override a detected conflict is host-layer policy,
  not engine behavior. The engine always reports conflicts; Force=true
  commits anyway and carries the overlap summaries back in the receipt.

BATCH SEMANTICS:
  A multi-date batch commits each date independently: one date's conflict
  failure never blocks the others. The report carries per-date outcomes
  and a success/failure count. No automatic retries - a conflict is a
  business decision, not a transient fault.

SEE ALSO:
  - engine/interval.go: The conflict arithmetic
  - engine/ledger.go: Append and supersede
  - engine/lock.go: Per-key mutual exclusion
*/
package booking

import (
	"context"
	"errors"

	"github.com/caretide/booking-engine/engine"
	"github.com/shopspring/decimal"
)

// =============================================================================
// PROPOSAL AND RECEIPT
// =============================================================================

// Proposal is one requested booking before validation.
// Times arrive in wire form; parsing failures surface as ValidationErrors.
type Proposal struct {
	CustomerID engine.CustomerID
	StaffID    engine.StaffID
	Date       string // YYYY-MM-DD
	Start      string // HH:MM
	End        string // HH:MM

	Fee         decimal.Decimal
	StaffSalary decimal.Decimal
	Category    engine.Category

	// Force commits despite detected conflicts. Host-layer policy decides
	// who may set it; the engine just honors it.
	Force          bool
	IdempotencyKey string
}

// Receipt reports a committed booking.
type Receipt struct {
	EntryID engine.EntryID

	// Overridden carries the conflicts a Force submit committed over.
	Overridden []engine.ConflictSummary

	// Warnings flag suspect but legal data, e.g. staff salary above fee.
	Warnings []string
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Ledger engine.Ledger
	Locks  *engine.KeyedMutex
}

func NewService(ledger engine.Ledger) *Service {
	return &Service{Ledger: ledger, Locks: engine.NewKeyedMutex()}
}

// Check runs a conflict check for one actor without committing anything.
// excludeID ignores the entry being edited; pass "" otherwise.
func (s *Service) Check(ctx context.Context, kind engine.ActorKind, actorID string, date, start, end string, excludeID engine.EntryID) (engine.ConflictResult, error) {
	iv, err := engine.NewInterval(date, start, end)
	if err != nil {
		return engine.ConflictResult{}, err
	}
	existing, err := s.gather(ctx, kind, actorID, iv)
	if err != nil {
		return engine.ConflictResult{}, err
	}
	return engine.CheckConflict(iv, existing, excludeID), nil
}

// Book validates, conflict-checks, and appends one booking under the
// per-key locks. Returns a ConflictError when the proposal overlaps and
// Force is not set.
func (s *Service) Book(ctx context.Context, p Proposal) (*Receipt, error) {
	entry, iv, err := s.build(p)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, entry, iv, p.Force, "")
}

// Supersede replaces a committed entry with a corrected one. The original
// is excluded from its own conflict check, then retired.
func (s *Service) Supersede(ctx context.Context, old engine.EntryID, p Proposal) (*Receipt, error) {
	entry, iv, err := s.build(p)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, entry, iv, p.Force, old)
}

// commit holds the exclusive scope: lock, check both calendars, append.
func (s *Service) commit(ctx context.Context, entry engine.BookingEntry, iv engine.Interval, force bool, supersedes engine.EntryID) (*Receipt, error) {
	unlock := s.Locks.LockAll(s.keys(entry, iv))
	defer unlock()

	var overlaps []engine.ConflictSummary
	accepted := make(map[engine.ActorKind]int)
	for _, kind := range []engine.ActorKind{engine.ActorStaff, engine.ActorCustomer} {
		existing, err := s.gather(ctx, kind, entry.ActorID(kind), iv)
		if err != nil {
			return nil, err
		}
		result := engine.CheckConflict(iv, existing, supersedes)
		if result.HasConflict() {
			if !force {
				return nil, &engine.ConflictError{
					ActorKind: kind,
					ActorID:   entry.ActorID(kind),
					Date:      iv.Date,
					Overlaps:  result.Overlaps,
				}
			}
			overlaps = append(overlaps, result.Overlaps...)
			accepted[kind] = len(result.Overlaps)
		}
	}

	// Defensive re-check just before the write: a violation must reject the
	// request with nothing committed, so it runs ahead of the append.
	if err := s.verifySerialized(ctx, entry, iv, supersedes, accepted); err != nil {
		return nil, err
	}

	var id engine.EntryID
	var err error
	if supersedes != "" {
		id, err = s.Ledger.Supersede(ctx, supersedes, entry)
	} else {
		id, err = s.Ledger.Append(ctx, entry)
	}
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{EntryID: id, Overridden: overlaps}
	if entry.StaffSalary.GreaterThan(entry.Fee) {
		receipt.Warnings = append(receipt.Warnings, "staff salary exceeds fee")
	}
	return receipt, nil
}

// verifySerialized detects appends that raced this scope on the same key.
// The locking contract makes this impossible through Service; an overlap
// beyond what the first check accepted means some writer went straight to
// the store, and the request is rejected before anything is written.
func (s *Service) verifySerialized(ctx context.Context, entry engine.BookingEntry, iv engine.Interval, supersedes engine.EntryID, accepted map[engine.ActorKind]int) error {
	for _, kind := range []engine.ActorKind{engine.ActorStaff, engine.ActorCustomer} {
		existing, err := s.gather(ctx, kind, entry.ActorID(kind), iv)
		if err != nil {
			return err
		}
		result := engine.CheckConflict(iv, existing, supersedes)
		if len(result.Overlaps) > accepted[kind] {
			return engine.ErrConcurrencyViolation
		}
	}
	return nil
}

// keys returns every lock key a booking's scope must hold: both actors,
// every date the interval touches.
func (s *Service) keys(entry engine.BookingEntry, iv engine.Interval) []string {
	var keys []string
	for _, d := range iv.Dates() {
		keys = append(keys,
			engine.BookingKey(engine.ActorStaff, string(entry.StaffID), d),
			engine.BookingKey(engine.ActorCustomer, string(entry.CustomerID), d),
		)
	}
	return keys
}

// gather collects the candidate entries for a conflict check: the
// proposal's date plus the neighboring dates whose wrapping intervals can
// reach into it.
func (s *Service) gather(ctx context.Context, kind engine.ActorKind, actorID string, iv engine.Interval) ([]engine.BookingEntry, error) {
	dates := []engine.Date{iv.Date.Prev(), iv.Date}
	if iv.Wraps() {
		dates = append(dates, iv.Date.Next())
	}

	var all []engine.BookingEntry
	for _, d := range dates {
		entries, err := s.Ledger.EntriesFor(ctx, kind, actorID, d)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}

// build validates a proposal into a ledger entry plus its interval.
func (s *Service) build(p Proposal) (engine.BookingEntry, engine.Interval, error) {
	iv, err := engine.NewInterval(p.Date, p.Start, p.End)
	if err != nil {
		return engine.BookingEntry{}, engine.Interval{}, err
	}
	entry := engine.BookingEntry{
		CustomerID:     p.CustomerID,
		StaffID:        p.StaffID,
		ServiceDate:    iv.Date,
		Start:          iv.Start,
		End:            iv.End,
		Fee:            p.Fee,
		StaffSalary:    p.StaffSalary,
		Category:       p.Category,
		IdempotencyKey: p.IdempotencyKey,
	}
	return entry, iv, nil
}

// =============================================================================
// BATCH BOOKING - Per-date partial-failure semantics
// =============================================================================

// DateOutcome is one batch member's result.
type DateOutcome struct {
	Date    string
	Receipt *Receipt
	Err     error
}

// BatchReport summarizes a multi-date submission.
type BatchReport struct {
	Succeeded int
	Failed    int
	Outcomes  []DateOutcome
}

// BookBatch commits each proposal independently. Proposals are parsed up
// front so duplicate detection runs over normalized dates; repeats are
// rejected before anything commits (each proposal must own its date).
// A failing date never blocks the rest, and nothing is retried.
func (s *Service) BookBatch(ctx context.Context, proposals []Proposal) BatchReport {
	report := BatchReport{Outcomes: make([]DateOutcome, len(proposals))}

	var intervals []engine.Interval
	var parsed []int
	bookable := make([]bool, len(proposals))
	for i, p := range proposals {
		report.Outcomes[i].Date = p.Date
		iv, err := engine.NewInterval(p.Date, p.Start, p.End)
		if err != nil {
			report.Outcomes[i].Err = err
			report.Failed++
			continue
		}
		bookable[i] = true
		intervals = append(intervals, iv)
		parsed = append(parsed, i)
	}
	for _, j := range engine.DuplicateDates(intervals) {
		i := parsed[j]
		report.Outcomes[i].Err = &engine.ValidationError{
			Field: "date", Value: proposals[i].Date, Reason: "duplicate date in batch",
		}
		report.Failed++
		bookable[i] = false
	}

	for i, p := range proposals {
		if !bookable[i] {
			continue
		}
		receipt, err := s.Book(ctx, p)
		if err != nil {
			report.Outcomes[i].Err = err
			report.Failed++
			continue
		}
		report.Outcomes[i].Receipt = receipt
		report.Succeeded++
	}
	return report
}

// ConflictsIn extracts the conflict detail from a booking error, if any.
func ConflictsIn(err error) (*engine.ConflictError, bool) {
	var ce *engine.ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
