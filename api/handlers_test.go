/*
handlers_test.go - HTTP round-trip tests for the API layer

Tests for:
- Booking submission, conflict responses, batch partial failure
- Conflict check endpoint
- Customer snapshots and identifier proposals
- Aggregates, commissions, and the rate table
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caretide/booking-engine/booking"
	"github.com/caretide/booking-engine/commission"
	"github.com/caretide/booking-engine/engine"
	"github.com/caretide/booking-engine/factory"
	"github.com/caretide/booking-engine/identity"
	"github.com/caretide/booking-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRouter(t *testing.T) (http.Handler, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := factory.DemoConfig()

	ledger := engine.NewLedger(store)
	aggregator := engine.NewAggregator(ledger, cfg.Exclusions)
	ledger.Listeners = append(ledger.Listeners, aggregator)

	bookings := booking.NewService(ledger)
	commissions := commission.NewService(commission.NewEngine(cfg.Rates, cfg.Thresholds), aggregator, store)
	allocator := identity.NewAllocator(store)

	handler := NewHandler(store, bookings, aggregator, commissions, allocator)
	return NewRouter(handler), store
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst))
}

func bookingBody(customer, staff, date, start, end string) BookingRequest {
	return BookingRequest{
		CustomerID:  customer,
		StaffID:     staff,
		Date:        date,
		Start:       start,
		End:         end,
		Fee:         "5400",
		StaffSalary: "3200",
	}
}

// =============================================================================
// BOOKING ENDPOINT TESTS
// =============================================================================

func TestCreateBooking_Success(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/api/bookings",
		bookingBody("cust-1", "staff-1", "2026-03-10", "09:00", "12:00"))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp BookingResponse
	decodeBody(t, rec, &resp)
	assert.NotEmpty(t, resp.EntryID)
}

func TestCreateBooking_ConflictReturns409(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/api/bookings",
		bookingBody("cust-1", "staff-1", "2026-03-10", "09:00", "12:00"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, "POST", "/api/bookings",
		bookingBody("cust-2", "staff-1", "2026-03-10", "11:00", "13:00"))
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp struct {
		Error     string        `json:"error"`
		Conflicts []ConflictDTO `json:"conflicts"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, "cust-1", resp.Conflicts[0].CustomerID)
}

func TestCreateBooking_MalformedBodyReturns400(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest("POST", "/api/bookings", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBooking_BadTimeReturns400(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/api/bookings",
		bookingBody("cust-1", "staff-1", "2026-03-10", "9am", "12:00"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBatch_PartialFailure(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/api/bookings",
		bookingBody("cust-2", "staff-1", "2026-03-11", "09:00", "12:00"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, "POST", "/api/bookings/batch", BatchBookingRequest{
		Bookings: []BookingRequest{
			bookingBody("cust-1", "staff-1", "2026-03-10", "09:00", "12:00"),
			bookingBody("cust-1", "staff-1", "2026-03-11", "09:00", "12:00"),
			bookingBody("cust-1", "staff-1", "2026-03-12", "09:00", "12:00"),
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BatchBookingResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, 2, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Outcomes, 3)
	assert.NotEmpty(t, resp.Outcomes[1].Error)
	assert.NotEmpty(t, resp.Outcomes[1].Conflict)
}

func TestCheckBooking_NoCommit(t *testing.T) {
	router, _ := newTestRouter(t)

	body := CheckRequest{
		ActorKind: "staff",
		ActorID:   "staff-1",
		Date:      "2026-03-10",
		Start:     "09:00",
		End:       "12:00",
	}
	rec := doJSON(t, router, "POST", "/api/bookings/check", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CheckResponse
	decodeBody(t, rec, &resp)
	assert.False(t, resp.Conflict)

	// The check committed nothing, so the same slot still books fine.
	rec = doJSON(t, router, "POST", "/api/bookings",
		bookingBody("cust-1", "staff-1", "2026-03-10", "09:00", "12:00"))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, "POST", "/api/bookings/check", body)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Conflict)
	require.Len(t, resp.Overlaps, 1)
}

func TestSupersedeBooking_RoundTrip(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/api/bookings",
		bookingBody("cust-1", "staff-1", "2026-03-10", "09:00", "12:00"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created BookingResponse
	decodeBody(t, rec, &created)

	rec = doJSON(t, router, "POST", "/api/bookings/"+created.EntryID+"/supersede",
		bookingBody("cust-1", "staff-1", "2026-03-10", "09:00", "13:00"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var corrected BookingResponse
	decodeBody(t, rec, &corrected)

	rec = doJSON(t, router, "GET", "/api/bookings/"+created.EntryID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var old EntryDTO
	decodeBody(t, rec, &old)
	assert.Equal(t, corrected.EntryID, old.SupersededBy)
}

func TestGetBooking_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "GET", "/api/bookings/no-such-entry", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// AGGREGATE AND COMMISSION ENDPOINT TESTS
// =============================================================================

func TestGetAggregate_SumsMonth(t *testing.T) {
	router, _ := newTestRouter(t)

	for day := 10; day <= 12; day++ {
		rec := doJSON(t, router, "POST", "/api/bookings",
			bookingBody("cust-1", "staff-1", fmt.Sprintf("2026-03-%02d", day), "09:00", "12:00"))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, router, "GET", "/api/customers/cust-1/aggregates?month=2026-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AggregateDTO
	decodeBody(t, rec, &resp)
	assert.Equal(t, "9.0", resp.Hours)
	assert.Equal(t, "16200", resp.Fee)
	assert.Equal(t, 3, resp.EntryCount)
}

func TestGetAggregate_BadMonthReturns400(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "GET", "/api/customers/cust-1/aggregates?month=March", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCommissions_MissingRateRowReturns422(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "PUT", "/api/customers/cust-1", CustomerRequest{
		ID:         "cust-1",
		Name:       "A. Customer",
		Type:       "direct-customer",
		Introducer: "unknown-agency",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, "GET", "/api/customers/cust-1/commissions", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestEvaluateAllCommissions_SkipsBadConfiguration(t *testing.T) {
	// GIVEN: A qualifying customer with a configured introducer and one
	//        whose introducer has no rate row
	// WHEN: Evaluating every customer at once
	// THEN: The configured one gets decisions; the other is listed as skipped

	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "PUT", "/api/customers/cust-1", CustomerRequest{
		ID: "cust-1", Name: "A", Type: "direct-customer", Introducer: "carehub",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, router, "PUT", "/api/customers/cust-2", CustomerRequest{
		ID: "cust-2", Name: "B", Type: "direct-customer", Introducer: "unknown-agency",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Nine 3-hour visits clear the 25-hour threshold.
	for day := 1; day <= 9; day++ {
		rec = doJSON(t, router, "POST", "/api/bookings",
			bookingBody("cust-1", "staff-1", fmt.Sprintf("2026-03-%02d", day), "09:00", "12:00"))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec = doJSON(t, router, "GET", "/api/commissions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BatchCommissionResponse
	decodeBody(t, rec, &resp)
	require.Contains(t, resp.Decisions, "cust-1")
	require.Len(t, resp.Decisions["cust-1"], 1)
	assert.True(t, resp.Decisions["cust-1"][0].Qualifies)
	assert.True(t, resp.Decisions["cust-1"][0].FirstQualifyingMonth)
	assert.Equal(t, "10000", resp.Decisions["cust-1"][0].PayableAmount)
	require.Len(t, resp.Skipped, 1)
	assert.Contains(t, resp.Skipped[0], "unknown-agency")
}

func TestGetCommissions_UnknownCustomerReturns404(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "GET", "/api/customers/ghost/commissions", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// CUSTOMER AND IDENTIFIER ENDPOINT TESTS
// =============================================================================

func TestCustomer_UpsertAndGet(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "PUT", "/api/customers/cust-1", CustomerRequest{
		ID:         "cust-1",
		Name:       "A. Customer",
		Type:       "direct-customer",
		Introducer: "carehub",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, "GET", "/api/customers/cust-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CustomerDTO
	decodeBody(t, rec, &resp)
	assert.Equal(t, "A. Customer", resp.Name)
	assert.Equal(t, "carehub", resp.Introducer)
}

func TestProposeIdentifier_DirectCustomer(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "PUT", "/api/customers/cust-1", CustomerRequest{
		ID: "cust-1", Name: "A", Type: "direct-customer", Introducer: "carehub",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, "POST", "/api/customers/cust-1/identifier", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp IdentifierResponse
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Generatable)
	assert.Equal(t, "DC-00001", resp.Candidate)
	assert.False(t, resp.PromptReplacement)
}

func TestProposeIdentifier_PendingVoucherNotGeneratable(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "PUT", "/api/customers/cust-1", CustomerRequest{
		ID: "cust-1", Name: "A", Type: "voucher-customer",
		VoucherStatus: "pending", Introducer: "carehub",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, "POST", "/api/customers/cust-1/identifier", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp IdentifierResponse
	decodeBody(t, rec, &resp)
	assert.False(t, resp.Generatable)
	assert.Empty(t, resp.Candidate)
}

func TestProposeIdentifier_PromptsAcrossKinds(t *testing.T) {
	// GIVEN: A customer carrying a direct-pattern identifier
	// WHEN: Their attributes now call for a voucher-held identifier
	// THEN: The response flags the replacement for confirmation

	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "PUT", "/api/customers/cust-1", CustomerRequest{
		ID: "cust-1", Name: "A", Type: "voucher-customer",
		VoucherStatus: "held", Introducer: "carehub",
		Identifier: "DC-00042",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, "POST", "/api/customers/cust-1/identifier", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp IdentifierResponse
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Generatable)
	assert.Equal(t, "VH-00001", resp.Candidate)
	assert.True(t, resp.PromptReplacement)
}

// =============================================================================
// RATE ENDPOINT TESTS
// =============================================================================

func TestRates_UpsertAndList(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/api/rates", RateRequest{
		Introducer:          "ward-office",
		FirstMonthRate:      "8000",
		SubsequentMonthRate: "2500",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, "GET", "/api/rates", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []RateDTO
	decodeBody(t, rec, &resp)
	require.Len(t, resp, 1)
	assert.Equal(t, "ward-office", resp[0].Introducer)
	assert.Equal(t, "8000", resp[0].FirstMonthRate)
}

func TestRates_NegativeRateReturns400(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/api/rates", RateRequest{
		Introducer:          "ward-office",
		FirstMonthRate:      "-1",
		SubsequentMonthRate: "2500",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
