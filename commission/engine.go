/*
engine.go - The commission evaluation walk

PURPOSE:
  Walks one customer's monthly aggregates in chronological order and emits
  a Decision per month. The Service wrapper pulls aggregates from the
  ledger-backed aggregator and customer attributes from the host directory,
  and isolates per-customer configuration errors when evaluating many
  customers at once.
*/
package commission

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/caretide/booking-engine/engine"
	"github.com/shopspring/decimal"
)

// =============================================================================
// EVALUATION - Pure walk over ordered aggregates
// =============================================================================

// Engine holds the reference configuration evaluation runs against.
// The rate table is guarded: rate upserts arrive from admin requests while
// other requests evaluate, so reads and writes must synchronize.
type Engine struct {
	Thresholds Thresholds

	mu    sync.RWMutex
	rates RateTable
}

func NewEngine(rates RateTable, thresholds Thresholds) *Engine {
	if rates == nil {
		rates = make(RateTable)
	}
	return &Engine{rates: rates, Thresholds: thresholds}
}

// SetRate inserts or replaces one introducer's row. Safe to call
// concurrently with Evaluate.
func (e *Engine) SetRate(row RateRow) {
	e.mu.Lock()
	e.rates[row.Introducer] = row
	e.mu.Unlock()
}

// Rate returns the introducer's current row or a ConfigurationError.
func (e *Engine) Rate(introducer string, customerID engine.CustomerID) (RateRow, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rates.Lookup(introducer, customerID)
}

// Evaluate emits one Decision per aggregate, in chronological order.
//
// The first qualifying month in the customer's entire history is priced at
// the introducer's FirstMonthRate; every later qualifying month - gaps of
// non-qualifying months in between included - at SubsequentMonthRate.
// Non-qualifying months get Qualifies=false and a zero payable amount.
//
// Returns a ConfigurationError if the introducer has no rate table row;
// callers evaluating many customers skip the affected customer and go on.
func (e *Engine) Evaluate(customerID engine.CustomerID, introducer string, history []engine.MonthlyAggregate) ([]Decision, error) {
	row, err := e.Rate(introducer, customerID)
	if err != nil {
		return nil, err
	}

	// Defensive: the walk is only correct in chronological order.
	ordered := make([]engine.MonthlyAggregate, len(history))
	copy(ordered, history)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Month.Before(ordered[j].Month) })

	decisions := make([]Decision, 0, len(ordered))
	seenQualifying := false
	for _, agg := range ordered {
		d := Decision{
			CustomerID:    customerID,
			Month:         agg.Month,
			PayableAmount: decimal.Zero,
		}
		if e.Thresholds.Qualifies(agg) {
			d.Qualifies = true
			if !seenQualifying {
				d.FirstQualifyingMonth = true
				d.PayableAmount = row.FirstMonthRate
				seenQualifying = true
			} else {
				d.PayableAmount = row.SubsequentMonthRate
			}
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// =============================================================================
// SERVICE - Ledger-backed evaluation with per-customer error isolation
// =============================================================================

// CustomerDirectory is the host's read path over customer attribute
// snapshots. The core only needs the introducer.
type CustomerDirectory interface {
	Customer(ctx context.Context, id engine.CustomerID) (*engine.Customer, error)
}

// Service evaluates commissions from live ledger state.
type Service struct {
	Engine     *Engine
	Aggregates *engine.Aggregator
	Customers  CustomerDirectory
}

func NewService(eng *Engine, aggregates *engine.Aggregator, customers CustomerDirectory) *Service {
	return &Service{Engine: eng, Aggregates: aggregates, Customers: customers}
}

// EvaluateCustomer recomputes one customer's full decision history.
func (s *Service) EvaluateCustomer(ctx context.Context, id engine.CustomerID) ([]Decision, error) {
	cust, err := s.Customers.Customer(ctx, id)
	if err != nil {
		return nil, err
	}
	if cust == nil {
		return nil, engine.ErrCustomerNotFound
	}
	history, err := s.Aggregates.History(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Engine.Evaluate(id, cust.Introducer, history)
}

// BatchResult is the outcome of evaluating many customers: decisions for
// the ones that evaluated cleanly plus the configuration errors that were
// skipped. One bad introducer never aborts the rest.
type BatchResult struct {
	Decisions map[engine.CustomerID][]Decision
	Skipped   []error
}

// EvaluateAll evaluates every given customer. Configuration errors are
// collected and skipped; anything else (a failing store) aborts.
func (s *Service) EvaluateAll(ctx context.Context, ids []engine.CustomerID) (BatchResult, error) {
	result := BatchResult{Decisions: make(map[engine.CustomerID][]Decision, len(ids))}
	for _, id := range ids {
		decisions, err := s.EvaluateCustomer(ctx, id)
		if errors.Is(err, engine.ErrConfiguration) {
			result.Skipped = append(result.Skipped, err)
			continue
		}
		if err != nil {
			return result, err
		}
		result.Decisions[id] = decisions
	}
	return result, nil
}
