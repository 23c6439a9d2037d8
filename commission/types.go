/*
Package commission evaluates introducer commission over monthly aggregates.

PURPOSE:
  Classifies each customer-month as qualifying or not against configured
  thresholds, determines whether a qualifying month is the customer's FIRST
  qualifying month or a subsequent one, and prices it from an
  introducer-keyed rate table.

KEY CONCEPTS:
  - Thresholds: independent OR conditions - a month qualifies if EITHER its
    hours total or its fee total meets its threshold
  - RateTable: per-introducer first-month and subsequent-month amounts
  - Decision: the derived (customer, month) outcome; never persisted by
    the core, always recomputable

FIRST-MONTH SEMANTICS:
  The first qualifying month in a customer's ENTIRE history is a one-time
  historical fact. Re-evaluating after more months are appended must report
  the same month as first - the walk is chronological and keeps no hidden
  counters outside the recomputation.

SEE ALSO:
  - engine/aggregate.go: The MonthlyAggregate inputs
  - engine.go: The evaluation walk
*/
package commission

import (
	"github.com/caretide/booking-engine/engine"
	"github.com/shopspring/decimal"
)

// =============================================================================
// THRESHOLDS - Independent OR conditions for qualification
// =============================================================================

// Thresholds define what makes a customer-month commission-eligible.
// The two conditions are independent: meeting EITHER one qualifies.
type Thresholds struct {
	Hours decimal.Decimal
	Fee   decimal.Decimal
}

// Qualifies applies the OR-semantics to one aggregate.
func (t Thresholds) Qualifies(agg engine.MonthlyAggregate) bool {
	return agg.HoursTotal.GreaterThanOrEqual(t.Hours) ||
		agg.FeeTotal.GreaterThanOrEqual(t.Fee)
}

// =============================================================================
// RATE TABLE - Introducer-keyed payout amounts
// =============================================================================

// RateRow is one introducer's payout configuration. Static reference data,
// externally supplied.
type RateRow struct {
	Introducer          string
	FirstMonthRate      decimal.Decimal
	SubsequentMonthRate decimal.Decimal
}

// RateTable maps introducer names to their rate rows.
type RateTable map[string]RateRow

func NewRateTable(rows ...RateRow) RateTable {
	t := make(RateTable, len(rows))
	for _, r := range rows {
		t[r.Introducer] = r
	}
	return t
}

// Lookup returns the introducer's row or a ConfigurationError.
func (t RateTable) Lookup(introducer string, customerID engine.CustomerID) (RateRow, error) {
	row, ok := t[introducer]
	if !ok {
		return RateRow{}, &engine.ConfigurationError{
			Introducer: introducer,
			CustomerID: customerID,
			Detail:     "no rate table row",
		}
	}
	return row, nil
}

// =============================================================================
// DECISION - Derived commission outcome per customer-month
// =============================================================================

// Decision is the commission outcome for one customer-month.
// A pure function of (aggregate history, rate table, thresholds):
// re-evaluation from identical inputs yields identical decisions.
type Decision struct {
	CustomerID engine.CustomerID
	Month      engine.YearMonth

	Qualifies            bool
	FirstQualifyingMonth bool
	PayableAmount        decimal.Decimal
}
