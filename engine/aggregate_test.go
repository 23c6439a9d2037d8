package engine_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caretide/booking-engine/engine"
	"github.com/caretide/booking-engine/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func march() engine.YearMonth {
	ym, _ := engine.ParseYearMonth("2026-03")
	return ym
}

func marchDraft(t *testing.T, customer, staff, day, start, end, fee, salary string) engine.BookingEntry {
	t.Helper()
	e := draft(t, customer, staff, "2026-03-"+day, start, end)
	e.Fee = engine.MustDecimal(fee)
	e.StaffSalary = engine.MustDecimal(salary)
	return e
}

// =============================================================================
// PURE AGGREGATION TESTS
// =============================================================================

func TestAggregate_Deterministic(t *testing.T) {
	// GIVEN: A fixed set of entries
	// WHEN: Aggregating the same month twice
	// THEN: The results are identical

	entries := []engine.BookingEntry{
		entry(t, "e1", "cust-1", "staff-1", "2026-03-10", "09:00", "12:00"),
		entry(t, "e2", "cust-1", "staff-2", "2026-03-11", "13:00", "15:30"),
	}
	for i := range entries {
		entries[i].Hours = engine.DeriveHours(entries[i].Interval())
		entries[i].Fee = engine.MustDecimal("5400")
		entries[i].StaffSalary = engine.MustDecimal("3200")
	}

	first := engine.Aggregate("cust-1", march(), entries, nil)
	second := engine.Aggregate("cust-1", march(), entries, nil)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, first.EntryCount)
	assert.Equal(t, "5.5", first.HoursTotal.String())
	assert.Equal(t, "10800", first.FeeTotal.String())
	assert.Equal(t, "4400", first.ProfitTotal.String())
}

func TestAggregate_DecimalExactness(t *testing.T) {
	// Many 0.1-hour fragments must sum exactly, no float drift.
	entries := make([]engine.BookingEntry, 0, 1000)
	for i := 0; i < 1000; i++ {
		e := entry(t, "e", "cust-1", "staff-1", "2026-03-10", "09:00", "09:06")
		e.Hours = engine.MustDecimal("0.1")
		e.Fee = engine.MustDecimal("0.3")
		e.StaffSalary = engine.MustDecimal("0.1")
		entries = append(entries, e)
	}

	agg := engine.Aggregate("cust-1", march(), entries, nil)

	assert.Equal(t, "100", agg.HoursTotal.String())
	assert.Equal(t, "300", agg.FeeTotal.String())
	assert.Equal(t, "200", agg.ProfitTotal.String())
}

func TestAggregate_SkipsRetiredAndExcluded(t *testing.T) {
	retired := marchDraft(t, "cust-1", "staff-1", "10", "09:00", "12:00", "5400", "3200")
	retired.ID = "e1"
	retired.SupersededBy = "e2"
	retired.Hours = engine.MustDecimal("3")

	walkIn := marchDraft(t, "cust-1", "staff-1", "11", "09:00", "12:00", "5400", "3200")
	walkIn.ID = "e2"
	walkIn.Category = engine.CategoryWalkIn
	walkIn.Hours = engine.MustDecimal("3")

	counted := marchDraft(t, "cust-1", "staff-1", "12", "09:00", "12:00", "5400", "3200")
	counted.ID = "e3"
	counted.Hours = engine.MustDecimal("3")

	exclusions := engine.NewExclusionSet(engine.CategoryWalkIn, engine.CategoryDirect)
	agg := engine.Aggregate("cust-1", march(), []engine.BookingEntry{retired, walkIn, counted}, exclusions)

	assert.Equal(t, 1, agg.EntryCount)
	assert.Equal(t, "3", agg.HoursTotal.String())
	assert.Equal(t, "5400", agg.FeeTotal.String())
}

func TestAggregate_FiltersOtherCustomersAndMonths(t *testing.T) {
	other := entry(t, "e1", "cust-2", "staff-1", "2026-03-10", "09:00", "12:00")
	april := entry(t, "e2", "cust-1", "staff-1", "2026-04-10", "09:00", "12:00")

	agg := engine.Aggregate("cust-1", march(), []engine.BookingEntry{other, april}, nil)
	assert.Equal(t, 0, agg.EntryCount)
	assert.True(t, agg.HoursTotal.IsZero())
}

// =============================================================================
// AGGREGATOR CACHE TESTS
// =============================================================================

func TestAggregator_SupersedeInvalidatesCache(t *testing.T) {
	// GIVEN: A cached monthly aggregate
	// WHEN: An entry in that month is superseded
	// THEN: The next read reflects the correction, not the stale cache

	mem := store.NewMemory()
	ledger := engine.NewLedger(mem)
	agg := engine.NewAggregator(ledger, nil)
	ledger.Listeners = append(ledger.Listeners, agg)
	ctx := context.Background()

	oldID, err := ledger.Append(ctx, marchDraft(t, "cust-1", "staff-1", "10", "09:00", "12:00", "5400", "3200"))
	require.NoError(t, err)

	before, err := agg.Month(ctx, "cust-1", march())
	require.NoError(t, err)
	assert.Equal(t, "3", before.HoursTotal.String())

	_, err = ledger.Supersede(ctx, oldID, marchDraft(t, "cust-1", "staff-1", "10", "09:00", "13:00", "7200", "3200"))
	require.NoError(t, err)

	after, err := agg.Month(ctx, "cust-1", march())
	require.NoError(t, err)
	assert.Equal(t, "4", after.HoursTotal.String())
	assert.Equal(t, "7200", after.FeeTotal.String())
	assert.Equal(t, 1, after.EntryCount, "retired entry dropped out of the total")
}

// gatedLedger pauses after the first EntriesForMonth read returns, so a
// test can land an append between a recompute's read and its cache fill.
type gatedLedger struct {
	engine.Ledger
	paused  chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedLedger) EntriesForMonth(ctx context.Context, customerID engine.CustomerID, ym engine.YearMonth) ([]engine.BookingEntry, error) {
	entries, err := g.Ledger.EntriesForMonth(ctx, customerID, ym)
	g.once.Do(func() {
		close(g.paused)
		<-g.release
	})
	return entries, err
}

func TestAggregator_AppendDuringRecomputeNotServedStale(t *testing.T) {
	// GIVEN: A recompute that read the ledger before a concurrent append
	// WHEN: The append invalidates the month while the recompute is in flight
	// THEN: The stale fill is discarded and later reads see the new entry

	mem := store.NewMemory()
	base := engine.NewLedger(mem)
	gated := &gatedLedger{Ledger: base, paused: make(chan struct{}), release: make(chan struct{})}
	agg := engine.NewAggregator(gated, nil)
	base.Listeners = append(base.Listeners, agg)
	ctx := context.Background()

	done := make(chan engine.MonthlyAggregate, 1)
	go func() {
		m, err := agg.Month(ctx, "cust-1", march())
		assert.NoError(t, err)
		done <- m
	}()

	<-gated.paused
	_, err := base.Append(ctx, marchDraft(t, "cust-1", "staff-1", "10", "09:00", "12:00", "5400", "3200"))
	require.NoError(t, err)
	close(gated.release)

	stale := <-done
	assert.Equal(t, 0, stale.EntryCount, "the in-flight recompute saw the pre-append ledger")

	fresh, err := agg.Month(ctx, "cust-1", march())
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.EntryCount)
	assert.Equal(t, "3", fresh.HoursTotal.String())
}

func TestAggregator_History_Chronological(t *testing.T) {
	mem := store.NewMemory()
	ledger := engine.NewLedger(mem)
	agg := engine.NewAggregator(ledger, nil)
	ledger.Listeners = append(ledger.Listeners, agg)
	ctx := context.Background()

	// Insert out of order; history must still come back chronological.
	_, err := ledger.Append(ctx, draft(t, "cust-1", "staff-1", "2026-05-10", "09:00", "12:00"))
	require.NoError(t, err)
	_, err = ledger.Append(ctx, draft(t, "cust-1", "staff-1", "2026-03-10", "09:00", "12:00"))
	require.NoError(t, err)

	history, err := agg.History(ctx, "cust-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "2026-03", history[0].Month.String())
	assert.Equal(t, "2026-05", history[1].Month.String())
}
