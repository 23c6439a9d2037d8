/*
aggregate.go - Monthly per-customer totals derived from the ledger

PURPOSE:
  Groups ledger entries into (customer, calendar month) totals: hours,
  fee, staff salary, profit, entry count. These feed the commission
  eligibility engine.

DERIVATION CONTRACT:
  An aggregate is a pure function of (ledger contents, exclusion set).
  Recomputing twice from identical inputs yields identical totals, and a
  cached value must never diverge from a from-scratch recomputation. The
  cache below is a performance optimization only: it is invalidated on
  every append or supersede touching the customer-month, and a cache miss
  simply recomputes.

EXCLUSIONS:
  Entries whose category is in the externally-supplied exclusion set
  (walk-in, direct acquisition) never count toward commission aggregates.
  Retired entries never count either.

NUMERIC SEMANTICS:
  All sums are decimal.Decimal - exact across thousands of entries.
  Hours are rounded to one decimal place only at external display
  (DisplayHours), never in intermediate sums.

SEE ALSO:
  - ledger.go: The source these totals derive from
  - commission/: Threshold qualification and payout over these aggregates
*/
package engine

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONTHLY AGGREGATE - Derived, never persisted
// =============================================================================

// MonthlyAggregate is the commission-relevant view of one customer-month.
// Derived on demand; never the source of truth.
type MonthlyAggregate struct {
	CustomerID CustomerID
	Month      YearMonth

	HoursTotal       decimal.Decimal
	FeeTotal         decimal.Decimal
	StaffSalaryTotal decimal.Decimal
	ProfitTotal      decimal.Decimal // FeeTotal - StaffSalaryTotal
	EntryCount       int
}

// =============================================================================
// EXCLUSION SET - Categories that never earn commission
// =============================================================================

type ExclusionSet map[Category]bool

func NewExclusionSet(categories ...Category) ExclusionSet {
	s := make(ExclusionSet, len(categories))
	for _, c := range categories {
		s[c] = true
	}
	return s
}

func (s ExclusionSet) Excluded(c Category) bool { return s[c] }

// =============================================================================
// AGGREGATION - Pure function over a fixed entry set
// =============================================================================

// Aggregate computes one customer-month's totals from the given entries.
// Filters to the matching customer and month, skips retired entries and
// excluded categories. Pure: no I/O, no state.
func Aggregate(customerID CustomerID, ym YearMonth, entries []BookingEntry, exclusions ExclusionSet) MonthlyAggregate {
	agg := MonthlyAggregate{
		CustomerID:       customerID,
		Month:            ym,
		HoursTotal:       decimal.Zero,
		FeeTotal:         decimal.Zero,
		StaffSalaryTotal: decimal.Zero,
		ProfitTotal:      decimal.Zero,
	}

	for _, e := range entries {
		if e.CustomerID != customerID || !ym.Contains(e.ServiceDate) {
			continue
		}
		if e.Retired() || exclusions.Excluded(e.Category) {
			continue
		}
		agg.HoursTotal = agg.HoursTotal.Add(e.Hours)
		agg.FeeTotal = agg.FeeTotal.Add(e.Fee)
		agg.StaffSalaryTotal = agg.StaffSalaryTotal.Add(e.StaffSalary)
		agg.EntryCount++
	}

	agg.ProfitTotal = agg.FeeTotal.Sub(agg.StaffSalaryTotal)
	return agg
}

// =============================================================================
// AGGREGATOR - Ledger-backed recomputation with invalidating cache
// =============================================================================

// Aggregator serves per-customer-month aggregates from the ledger.
// It implements ChangeListener so a ledger wired with it invalidates the
// affected customer-month on every append and supersede.
type Aggregator struct {
	Ledger     Ledger
	Exclusions ExclusionSet

	mu    sync.RWMutex
	cache map[aggKey]MonthlyAggregate
	gens  map[aggKey]uint64 // bumped on every invalidation
}

type aggKey struct {
	CustomerID CustomerID
	Month      YearMonth
}

func NewAggregator(ledger Ledger, exclusions ExclusionSet) *Aggregator {
	return &Aggregator{
		Ledger:     ledger,
		Exclusions: exclusions,
		cache:      make(map[aggKey]MonthlyAggregate),
		gens:       make(map[aggKey]uint64),
	}
}

// Month returns the aggregate for one customer-month, recomputing from the
// ledger on a cache miss.
//
// The fill is generation-checked: a recompute whose ledger read started
// before a concurrent invalidation must not land in the cache, or the
// pre-change totals would be served until the next invalidation.
func (a *Aggregator) Month(ctx context.Context, customerID CustomerID, ym YearMonth) (MonthlyAggregate, error) {
	k := aggKey{CustomerID: customerID, Month: ym}

	a.mu.RLock()
	cached, ok := a.cache[k]
	gen := a.gens[k]
	a.mu.RUnlock()
	if ok {
		return cached, nil
	}

	entries, err := a.Ledger.EntriesForMonth(ctx, customerID, ym)
	if err != nil {
		return MonthlyAggregate{}, err
	}
	agg := Aggregate(customerID, ym, entries, a.Exclusions)

	a.mu.Lock()
	if a.gens[k] == gen {
		a.cache[k] = agg
	}
	a.mu.Unlock()
	return agg, nil
}

// History returns the customer's aggregates for every month that has
// entries, in chronological order. This is the input shape the commission
// engine requires.
func (a *Aggregator) History(ctx context.Context, customerID CustomerID) ([]MonthlyAggregate, error) {
	months, err := a.Ledger.Months(ctx, customerID)
	if err != nil {
		return nil, err
	}
	aggs := make([]MonthlyAggregate, 0, len(months))
	for _, ym := range months {
		agg, err := a.Month(ctx, customerID, ym)
		if err != nil {
			return nil, err
		}
		aggs = append(aggs, agg)
	}
	return aggs, nil
}

// LedgerChanged drops the cached aggregate for the touched customer-month
// and advances its generation so in-flight recomputes discard their fill.
func (a *Aggregator) LedgerChanged(customerID CustomerID, ym YearMonth) {
	k := aggKey{CustomerID: customerID, Month: ym}
	a.mu.Lock()
	delete(a.cache, k)
	a.gens[k]++
	a.mu.Unlock()
}
