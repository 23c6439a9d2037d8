package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caretide/booking-engine/engine"
	"github.com/caretide/booking-engine/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger() *engine.DefaultLedger {
	return engine.NewLedger(store.NewMemory())
}

func draft(t *testing.T, customer, staff, date, start, end string) engine.BookingEntry {
	t.Helper()
	interval := iv(t, date, start, end)
	return engine.BookingEntry{
		CustomerID:  engine.CustomerID(customer),
		StaffID:     engine.StaffID(staff),
		ServiceDate: interval.Date,
		Start:       interval.Start,
		End:         interval.End,
		Fee:         engine.MustDecimal("5400"),
		StaffSalary: engine.MustDecimal("3200"),
	}
}

// =============================================================================
// APPEND TESTS
// =============================================================================

func TestLedger_Append_FillsDerivedFields(t *testing.T) {
	ledger := newTestLedger()
	ctx := context.Background()

	id, err := ledger.Append(ctx, draft(t, "cust-1", "staff-1", "2026-03-10", "09:00", "12:00"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := ledger.Entry(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "3", got.Hours.String(), "hours derived from the interval")
	assert.Equal(t, engine.CategoryStandard, got.Category)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestLedger_Append_WrappingIntervalHours(t *testing.T) {
	// 22:00 -> 06:00 occupies 8 hours across the midnight boundary.
	ledger := newTestLedger()

	id, err := ledger.Append(context.Background(), draft(t, "cust-1", "staff-1", "2026-03-10", "22:00", "06:00"))
	require.NoError(t, err)

	got, err := ledger.Entry(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "8", got.Hours.String())
}

func TestLedger_Append_RejectsInconsistentHours(t *testing.T) {
	ledger := newTestLedger()

	e := draft(t, "cust-1", "staff-1", "2026-03-10", "09:00", "12:00")
	e.Hours = engine.MustDecimal("4")

	_, err := ledger.Append(context.Background(), e)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestLedger_Append_RejectsNegativeMoney(t *testing.T) {
	ledger := newTestLedger()

	e := draft(t, "cust-1", "staff-1", "2026-03-10", "09:00", "12:00")
	e.Fee = engine.MustDecimal("-1")

	_, err := ledger.Append(context.Background(), e)
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestLedger_Append_RejectsMissingActor(t *testing.T) {
	ledger := newTestLedger()

	e := draft(t, "", "staff-1", "2026-03-10", "09:00", "12:00")
	_, err := ledger.Append(context.Background(), e)
	assert.ErrorIs(t, err, engine.ErrValidation)
}

// =============================================================================
// IDEMPOTENCY TESTS
// =============================================================================

func TestLedger_Append_DuplicateIdempotencyKey(t *testing.T) {
	// GIVEN: A committed entry with an idempotency key
	// WHEN: A retry arrives with the same key
	// THEN: The retry is rejected and the ledger holds one entry

	ledger := newTestLedger()
	ctx := context.Background()

	e := draft(t, "cust-1", "staff-1", "2026-03-10", "09:00", "12:00")
	e.IdempotencyKey = "req-42"
	_, err := ledger.Append(ctx, e)
	require.NoError(t, err)

	retry := draft(t, "cust-1", "staff-1", "2026-03-11", "09:00", "12:00")
	retry.IdempotencyKey = "req-42"
	_, err = ledger.Append(ctx, retry)
	assert.ErrorIs(t, err, engine.ErrDuplicateIdempotencyKey)
}

// =============================================================================
// SUPERSEDE TESTS
// =============================================================================

func TestLedger_Supersede_RetiresOldKeepsBoth(t *testing.T) {
	// GIVEN: A committed 09:00-12:00 entry
	// WHEN: It is corrected to 09:00-13:00
	// THEN: Both entries remain, linked in both directions, old one retired

	ledger := newTestLedger()
	ctx := context.Background()

	oldID, err := ledger.Append(ctx, draft(t, "cust-1", "staff-1", "2026-03-10", "09:00", "12:00"))
	require.NoError(t, err)

	newID, err := ledger.Supersede(ctx, oldID, draft(t, "cust-1", "staff-1", "2026-03-10", "09:00", "13:00"))
	require.NoError(t, err)

	old, err := ledger.Entry(ctx, oldID)
	require.NoError(t, err)
	assert.Equal(t, newID, old.SupersededBy)
	assert.True(t, old.Retired())

	replacement, err := ledger.Entry(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, oldID, replacement.Supersedes)
	assert.False(t, replacement.Retired())
}

func TestLedger_Supersede_MissingEntry(t *testing.T) {
	ledger := newTestLedger()

	_, err := ledger.Supersede(context.Background(), "nope",
		draft(t, "cust-1", "staff-1", "2026-03-10", "09:00", "12:00"))
	assert.ErrorIs(t, err, engine.ErrEntryNotFound)
}

func TestLedger_Supersede_AlreadyRetired(t *testing.T) {
	// A retired entry can never be superseded a second time.
	ledger := newTestLedger()
	ctx := context.Background()

	oldID, err := ledger.Append(ctx, draft(t, "cust-1", "staff-1", "2026-03-10", "09:00", "12:00"))
	require.NoError(t, err)
	_, err = ledger.Supersede(ctx, oldID, draft(t, "cust-1", "staff-1", "2026-03-10", "09:00", "13:00"))
	require.NoError(t, err)

	_, err = ledger.Supersede(ctx, oldID, draft(t, "cust-1", "staff-1", "2026-03-10", "09:00", "14:00"))
	assert.ErrorIs(t, err, engine.ErrEntryRetired)
}

// =============================================================================
// CHANGE NOTIFICATION TESTS
// =============================================================================

type recordingListener struct {
	changes []string
}

func (r *recordingListener) LedgerChanged(customerID engine.CustomerID, ym engine.YearMonth) {
	r.changes = append(r.changes, string(customerID)+"/"+ym.String())
}

func TestLedger_Supersede_NotifiesBothMonths(t *testing.T) {
	// A correction that moves an entry to a new month must invalidate both.
	listener := &recordingListener{}
	ledger := engine.NewLedger(store.NewMemory(), listener)
	ctx := context.Background()

	oldID, err := ledger.Append(ctx, draft(t, "cust-1", "staff-1", "2026-03-31", "09:00", "12:00"))
	require.NoError(t, err)
	listener.changes = nil

	_, err = ledger.Supersede(ctx, oldID, draft(t, "cust-1", "staff-1", "2026-04-01", "09:00", "12:00"))
	require.NoError(t, err)

	assert.Contains(t, listener.changes, "cust-1/2026-03")
	assert.Contains(t, listener.changes, "cust-1/2026-04")
}
