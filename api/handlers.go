/*
handlers.go - HTTP API handlers for the booking core

PURPOSE:
  Exposes the booking-ledger core via REST. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic. The core itself
  stays transport-free; this package is the host layer.

ENDPOINTS:
  Bookings:
    POST   /api/bookings               Conflict-check and commit one booking
    POST   /api/bookings/batch         Multi-date submission, per-date outcomes
    POST   /api/bookings/check         Conflict check only, commits nothing
    POST   /api/bookings/{id}/supersede Correction entry (retires the old one)
    GET    /api/bookings/{id}          Fetch one committed entry

  Aggregates / commissions:
    GET    /api/customers/{id}/aggregates?month=YYYY-MM
    GET    /api/customers/{id}/commissions
    GET    /api/commissions            Evaluate every customer, skip bad config

  Customers / identifiers:
    GET    /api/customers
    PUT    /api/customers/{id}         Upsert attribute snapshot
    GET    /api/customers/{id}
    POST   /api/customers/{id}/identifier  Propose identifier + prompt decision

  Rates:
    GET    /api/rates                  List the commission rate table
    POST   /api/rates                  Upsert one introducer row

ERROR HANDLING:
  Errors map to JSON with appropriate HTTP status:
  - 400: malformed JSON / DTO validation failures
  - 404: missing entry or customer
  - 409: booking conflicts, duplicate idempotency keys, retired entries
  - 422: configuration errors (missing rate row)
  - 500: internal errors, including concurrency violations

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/caretide/booking-engine/booking"
	"github.com/caretide/booking-engine/commission"
	"github.com/caretide/booking-engine/engine"
	"github.com/caretide/booking-engine/identity"
	"github.com/caretide/booking-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       *sqlite.Store
	Bookings    *booking.Service
	Aggregates  *engine.Aggregator
	Commissions *commission.Service
	Identity    *identity.Allocator

	validate *validator.Validate
}

func NewHandler(store *sqlite.Store, bookings *booking.Service, aggregates *engine.Aggregator, commissions *commission.Service, allocator *identity.Allocator) *Handler {
	return &Handler{
		Store:       store,
		Bookings:    bookings,
		Aggregates:  aggregates,
		Commissions: commissions,
		Identity:    allocator,
		validate:    validator.New(),
	}
}

// =============================================================================
// BOOKING HANDLERS
// =============================================================================

// CreateBooking conflict-checks and commits one booking.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req BookingRequest
	if !h.decode(w, r, &req) {
		return
	}

	proposal, err := toProposal(req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	receipt, err := h.Bookings.Book(r.Context(), proposal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(receipt))
}

// CreateBatch commits each date independently and reports per-date outcomes.
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchBookingRequest
	if !h.decode(w, r, &req) {
		return
	}

	proposals := make([]booking.Proposal, 0, len(req.Bookings))
	for _, b := range req.Bookings {
		p, err := toProposal(b)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		proposals = append(proposals, p)
	}

	report := h.Bookings.BookBatch(r.Context(), proposals)

	resp := BatchBookingResponse{Succeeded: report.Succeeded, Failed: report.Failed}
	for _, o := range report.Outcomes {
		dto := DateOutcomeDTO{Date: o.Date}
		if o.Receipt != nil {
			dto.EntryID = string(o.Receipt.EntryID)
		}
		if o.Err != nil {
			dto.Error = o.Err.Error()
			if ce, ok := booking.ConflictsIn(o.Err); ok {
				dto.Conflict = toConflictDTOs(ce.Overlaps)
			}
		}
		resp.Outcomes = append(resp.Outcomes, dto)
	}

	// Partial failure is the point of batch mode: the response is 200 even
	// when some dates failed, and the caller reads the per-date outcomes.
	writeJSON(w, http.StatusOK, resp)
}

// CheckBooking runs a conflict check without committing.
func (h *Handler) CheckBooking(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.Bookings.Check(r.Context(),
		engine.ActorKind(req.ActorKind), req.ActorID,
		req.Date, req.Start, req.End, engine.EntryID(req.ExcludeID))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CheckResponse{
		Conflict: result.HasConflict(),
		Overlaps: toConflictDTOs(result.Overlaps),
	})
}

// SupersedeBooking appends a correction and retires the original.
func (h *Handler) SupersedeBooking(w http.ResponseWriter, r *http.Request) {
	old := engine.EntryID(chi.URLParam(r, "id"))

	var req BookingRequest
	if !h.decode(w, r, &req) {
		return
	}
	proposal, err := toProposal(req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	receipt, err := h.Bookings.Supersede(r.Context(), old, proposal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(receipt))
}

// GetBooking returns one committed ledger entry.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id := engine.EntryID(chi.URLParam(r, "id"))

	entry, err := h.Bookings.Ledger.Entry(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load entry", err)
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "Entry not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*entry))
}

// =============================================================================
// AGGREGATE AND COMMISSION HANDLERS
// =============================================================================

// GetAggregate returns one customer-month's totals.
func (h *Handler) GetAggregate(w http.ResponseWriter, r *http.Request) {
	customerID := engine.CustomerID(chi.URLParam(r, "id"))

	ym, err := engine.ParseYearMonth(r.URL.Query().Get("month"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	agg, err := h.Aggregates.Month(r.Context(), customerID, ym)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to aggregate", err)
		return
	}
	writeJSON(w, http.StatusOK, toAggregateDTO(agg))
}

// GetCommissions recomputes one customer's full decision history.
func (h *Handler) GetCommissions(w http.ResponseWriter, r *http.Request) {
	customerID := engine.CustomerID(chi.URLParam(r, "id"))

	decisions, err := h.Commissions.EvaluateCustomer(r.Context(), customerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]DecisionDTO, len(decisions))
	for i, d := range decisions {
		dtos[i] = DecisionDTO{
			CustomerID:           string(d.CustomerID),
			Month:                d.Month.String(),
			Qualifies:            d.Qualifies,
			FirstQualifyingMonth: d.FirstQualifyingMonth,
			PayableAmount:        d.PayableAmount.String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// EvaluateAllCommissions recomputes decisions for every stored customer.
// Customers whose introducer has no rate row are reported as skipped; the
// rest still evaluate.
func (h *Handler) EvaluateAllCommissions(w http.ResponseWriter, r *http.Request) {
	customers, err := h.Store.ListCustomers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list customers", err)
		return
	}
	ids := make([]engine.CustomerID, len(customers))
	for i, c := range customers {
		ids[i] = c.ID
	}

	result, err := h.Commissions.EvaluateAll(r.Context(), ids)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := BatchCommissionResponse{Decisions: make(map[string][]DecisionDTO, len(result.Decisions))}
	for id, decisions := range result.Decisions {
		dtos := make([]DecisionDTO, len(decisions))
		for i, d := range decisions {
			dtos[i] = DecisionDTO{
				CustomerID:           string(d.CustomerID),
				Month:                d.Month.String(),
				Qualifies:            d.Qualifies,
				FirstQualifyingMonth: d.FirstQualifyingMonth,
				PayableAmount:        d.PayableAmount.String(),
			}
		}
		resp.Decisions[string(id)] = dtos
	}
	for _, skip := range result.Skipped {
		resp.Skipped = append(resp.Skipped, skip.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// CUSTOMER AND IDENTIFIER HANDLERS
// =============================================================================

// UpsertCustomer stores a customer attribute snapshot.
func (h *Handler) UpsertCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req CustomerRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ID != id {
		writeError(w, http.StatusBadRequest, "Body id does not match URL", nil)
		return
	}

	cust := engine.Customer{
		ID:            engine.CustomerID(req.ID),
		Name:          req.Name,
		Type:          engine.CustomerType(req.Type),
		VoucherStatus: engine.VoucherStatus(req.VoucherStatus),
		Introducer:    req.Introducer,
		Identifier:    req.Identifier,
	}
	if cust.VoucherStatus == "" {
		cust.VoucherStatus = engine.VoucherNone
	}

	if err := h.Store.SaveCustomer(r.Context(), cust); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save customer", err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(cust))
}

// ListCustomers returns every stored customer snapshot.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.Store.ListCustomers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list customers", err)
		return
	}
	dtos := make([]CustomerDTO, len(customers))
	for i, c := range customers {
		dtos[i] = toCustomerDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCustomer returns a customer attribute snapshot.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id := engine.CustomerID(chi.URLParam(r, "id"))

	cust, err := h.Store.Customer(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load customer", err)
		return
	}
	if cust == nil {
		writeError(w, http.StatusNotFound, "Customer not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(*cust))
}

// ProposeIdentifier generates a candidate identifier for the customer's
// current attributes and decides whether to prompt for replacement.
func (h *Handler) ProposeIdentifier(w http.ResponseWriter, r *http.Request) {
	id := engine.CustomerID(chi.URLParam(r, "id"))

	cust, err := h.Store.Customer(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load customer", err)
		return
	}
	if cust == nil {
		writeError(w, http.StatusNotFound, "Customer not found", nil)
		return
	}

	candidate, err := h.Identity.Propose(r.Context(), *cust)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate identifier", err)
		return
	}

	resp := IdentifierResponse{
		Candidate:   candidate,
		Generatable: candidate != "",
	}
	if candidate != "" {
		resp.CandidateKind = string(identity.Classify(candidate))
		if cust.Identifier != "" {
			resp.ExistingKind = string(identity.Classify(cust.Identifier))
			resp.PromptReplacement = identity.ShouldPromptReplacement(cust.Identifier, candidate)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// RATE TABLE HANDLERS
// =============================================================================

// ListRates returns the commission rate table.
func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	table, err := h.Store.ListRates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rates", err)
		return
	}

	dtos := make([]RateDTO, 0, len(table))
	for _, row := range table {
		dtos = append(dtos, RateDTO{
			Introducer:          row.Introducer,
			FirstMonthRate:      row.FirstMonthRate.String(),
			SubsequentMonthRate: row.SubsequentMonthRate.String(),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpsertRate stores one introducer's rate row and refreshes the engine's
// in-memory table so subsequent evaluations see it.
func (h *Handler) UpsertRate(w http.ResponseWriter, r *http.Request) {
	var req RateRequest
	if !h.decode(w, r, &req) {
		return
	}

	first, err := decimal.NewFromString(req.FirstMonthRate)
	if err != nil || first.IsNegative() {
		writeError(w, http.StatusBadRequest, "Invalid first_month_rate", err)
		return
	}
	subsequent, err := decimal.NewFromString(req.SubsequentMonthRate)
	if err != nil || subsequent.IsNegative() {
		writeError(w, http.StatusBadRequest, "Invalid subsequent_month_rate", err)
		return
	}

	row := commission.RateRow{
		Introducer:          req.Introducer,
		FirstMonthRate:      first,
		SubsequentMonthRate: subsequent,
	}
	if err := h.Store.SaveRate(r.Context(), row); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rate", err)
		return
	}
	h.Commissions.Engine.SetRate(row)

	writeJSON(w, http.StatusCreated, RateDTO{
		Introducer:          row.Introducer,
		FirstMonthRate:      row.FirstMonthRate.String(),
		SubsequentMonthRate: row.SubsequentMonthRate.String(),
	})
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toProposal(req BookingRequest) (booking.Proposal, error) {
	fee, err := decimal.NewFromString(req.Fee)
	if err != nil {
		return booking.Proposal{}, &engine.ValidationError{Field: "fee", Value: req.Fee, Reason: "not a decimal"}
	}
	salary, err := decimal.NewFromString(req.StaffSalary)
	if err != nil {
		return booking.Proposal{}, &engine.ValidationError{Field: "staff_salary", Value: req.StaffSalary, Reason: "not a decimal"}
	}
	return booking.Proposal{
		CustomerID:     engine.CustomerID(req.CustomerID),
		StaffID:        engine.StaffID(req.StaffID),
		Date:           req.Date,
		Start:          req.Start,
		End:            req.End,
		Fee:            fee,
		StaffSalary:    salary,
		Category:       engine.Category(req.Category),
		Force:          req.Force,
		IdempotencyKey: req.IdempotencyKey,
	}, nil
}

func toBookingResponse(receipt *booking.Receipt) BookingResponse {
	return BookingResponse{
		EntryID:    string(receipt.EntryID),
		Overridden: toConflictDTOs(receipt.Overridden),
		Warnings:   receipt.Warnings,
	}
}

func toConflictDTOs(overlaps []engine.ConflictSummary) []ConflictDTO {
	if len(overlaps) == 0 {
		return nil
	}
	dtos := make([]ConflictDTO, len(overlaps))
	for i, o := range overlaps {
		dtos[i] = ConflictDTO{
			EntryID:    string(o.EntryID),
			CustomerID: string(o.CustomerID),
			StaffID:    string(o.StaffID),
			Date:       o.Date.String(),
			Start:      o.Start.String(),
			End:        o.End.String(),
		}
	}
	return dtos
}

func toEntryDTO(e engine.BookingEntry) EntryDTO {
	return EntryDTO{
		ID:           string(e.ID),
		CustomerID:   string(e.CustomerID),
		StaffID:      string(e.StaffID),
		Date:         e.ServiceDate.String(),
		Start:        e.Start.String(),
		End:          e.End.String(),
		Hours:        engine.DisplayHours(e.Hours),
		Fee:          e.Fee.String(),
		StaffSalary:  e.StaffSalary.String(),
		Category:     string(e.Category),
		Supersedes:   string(e.Supersedes),
		SupersededBy: string(e.SupersededBy),
		CreatedAt:    e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func toAggregateDTO(agg engine.MonthlyAggregate) AggregateDTO {
	return AggregateDTO{
		CustomerID:  string(agg.CustomerID),
		Month:       agg.Month.String(),
		Hours:       engine.DisplayHours(agg.HoursTotal),
		Fee:         agg.FeeTotal.String(),
		StaffSalary: agg.StaffSalaryTotal.String(),
		Profit:      agg.ProfitTotal.String(),
		EntryCount:  agg.EntryCount,
	}
}

func toCustomerDTO(c engine.Customer) CustomerDTO {
	return CustomerDTO{
		ID:            string(c.ID),
		Name:          c.Name,
		Type:          string(c.Type),
		VoucherStatus: string(c.VoucherStatus),
		Introducer:    c.Introducer,
		Identifier:    c.Identifier,
	}
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

// decode parses and validates the request body, writing the error response
// itself. Returns false when the handler should stop.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// writeDomainError maps the core's error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrConflict):
		var ce *engine.ConflictError
		if errors.As(err, &ce) {
			writeJSON(w, http.StatusConflict, struct {
				ErrorResponse
				Conflicts []ConflictDTO `json:"conflicts"`
			}{
				ErrorResponse: ErrorResponse{Error: "Booking conflict", Details: err.Error()},
				Conflicts:     toConflictDTOs(ce.Overlaps),
			})
			return
		}
		writeError(w, http.StatusConflict, "Booking conflict", err)
	case errors.Is(err, engine.ErrValidation):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case errors.Is(err, engine.ErrDuplicateIdempotencyKey), errors.Is(err, engine.ErrEntryRetired):
		writeError(w, http.StatusConflict, "Conflicting state", err)
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, engine.ErrConfiguration):
		writeError(w, http.StatusUnprocessableEntity, "Configuration error", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
