/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  Wire representations of the core's types. DTOs keep JSON concerns out
  of the engine: times travel as "HH:MM" strings, dates as "YYYY-MM-DD",
  and money as decimal strings so nothing loses precision in transit.
  Hours appear rounded to one decimal place here - and only here.

VALIDATION:
  Structural validation (required fields, formats) runs through
  go-playground/validator tags before anything reaches the core; the
  core still re-validates semantics (interval arithmetic, money signs).
*/
package api

// =============================================================================
// BOOKING DTOs
// =============================================================================

// BookingRequest submits one proposed booking.
type BookingRequest struct {
	CustomerID  string `json:"customer_id" validate:"required"`
	StaffID     string `json:"staff_id" validate:"required"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Start       string `json:"start" validate:"required"`
	End         string `json:"end" validate:"required"`
	Fee         string `json:"fee" validate:"required"`
	StaffSalary string `json:"staff_salary" validate:"required"`
	Category    string `json:"category,omitempty"`

	// Force commits despite conflicts; whether a caller may set it is the
	// host's authorization concern.
	Force          bool   `json:"force,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// BatchBookingRequest submits bookings for several distinct dates at once.
type BatchBookingRequest struct {
	Bookings []BookingRequest `json:"bookings" validate:"required,min=1,dive"`
}

// CheckRequest asks for a conflict check without committing.
type CheckRequest struct {
	ActorKind string `json:"actor_kind" validate:"required,oneof=staff customer"`
	ActorID   string `json:"actor_id" validate:"required"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Start     string `json:"start" validate:"required"`
	End       string `json:"end" validate:"required"`
	ExcludeID string `json:"exclude_id,omitempty"`
}

// BookingResponse reports a committed booking.
type BookingResponse struct {
	EntryID    string        `json:"entry_id"`
	Overridden []ConflictDTO `json:"overridden,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
}

// ConflictDTO summarizes one overlapping entry.
type ConflictDTO struct {
	EntryID    string `json:"entry_id"`
	CustomerID string `json:"customer_id"`
	StaffID    string `json:"staff_id"`
	Date       string `json:"date"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

// CheckResponse reports a conflict check outcome.
type CheckResponse struct {
	Conflict bool          `json:"conflict"`
	Overlaps []ConflictDTO `json:"overlaps,omitempty"`
}

// BatchBookingResponse reports per-date outcomes.
type BatchBookingResponse struct {
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Outcomes  []DateOutcomeDTO `json:"outcomes"`
}

type DateOutcomeDTO struct {
	Date     string        `json:"date"`
	EntryID  string        `json:"entry_id,omitempty"`
	Error    string        `json:"error,omitempty"`
	Conflict []ConflictDTO `json:"conflicts,omitempty"`
}

// EntryDTO is the wire form of a committed ledger entry.
type EntryDTO struct {
	ID           string `json:"id"`
	CustomerID   string `json:"customer_id"`
	StaffID      string `json:"staff_id"`
	Date         string `json:"date"`
	Start        string `json:"start"`
	End          string `json:"end"`
	Hours        string `json:"hours"` // rounded to 1dp at this boundary
	Fee          string `json:"fee"`
	StaffSalary  string `json:"staff_salary"`
	Category     string `json:"category"`
	Supersedes   string `json:"supersedes,omitempty"`
	SupersededBy string `json:"superseded_by,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// =============================================================================
// AGGREGATE AND COMMISSION DTOs
// =============================================================================

type AggregateDTO struct {
	CustomerID  string `json:"customer_id"`
	Month       string `json:"month"`
	Hours       string `json:"hours"` // rounded to 1dp at this boundary
	Fee         string `json:"fee"`
	StaffSalary string `json:"staff_salary"`
	Profit      string `json:"profit"`
	EntryCount  int    `json:"entry_count"`
}

// BatchCommissionResponse reports an all-customers evaluation: decisions
// per evaluated customer plus the configuration errors that were skipped.
type BatchCommissionResponse struct {
	Decisions map[string][]DecisionDTO `json:"decisions"`
	Skipped   []string                 `json:"skipped,omitempty"`
}

type DecisionDTO struct {
	CustomerID           string `json:"customer_id"`
	Month                string `json:"month"`
	Qualifies            bool   `json:"qualifies"`
	FirstQualifyingMonth bool   `json:"first_qualifying_month"`
	PayableAmount        string `json:"payable_amount"`
}

// =============================================================================
// CUSTOMER AND IDENTIFIER DTOs
// =============================================================================

type CustomerRequest struct {
	ID            string `json:"id" validate:"required"`
	Name          string `json:"name,omitempty"`
	Type          string `json:"type" validate:"required,oneof=direct-customer voucher-customer"`
	VoucherStatus string `json:"voucher_status,omitempty" validate:"omitempty,oneof=none pending held"`
	Introducer    string `json:"introducer,omitempty"`
	Identifier    string `json:"identifier,omitempty"`
}

type CustomerDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Type          string `json:"type"`
	VoucherStatus string `json:"voucher_status"`
	Introducer    string `json:"introducer,omitempty"`
	Identifier    string `json:"identifier,omitempty"`
}

// IdentifierResponse reports a proposed identifier and whether the
// operator should be prompted to replace the stored one.
type IdentifierResponse struct {
	Candidate         string `json:"candidate,omitempty"`
	Generatable       bool   `json:"generatable"`
	ExistingKind      string `json:"existing_kind,omitempty"`
	CandidateKind     string `json:"candidate_kind,omitempty"`
	PromptReplacement bool   `json:"prompt_replacement"`
}

// =============================================================================
// RATE TABLE DTOs
// =============================================================================

type RateRequest struct {
	Introducer          string `json:"introducer" validate:"required"`
	FirstMonthRate      string `json:"first_month_rate" validate:"required"`
	SubsequentMonthRate string `json:"subsequent_month_rate" validate:"required"`
}

type RateDTO struct {
	Introducer          string `json:"introducer"`
	FirstMonthRate      string `json:"first_month_rate"`
	SubsequentMonthRate string `json:"subsequent_month_rate"`
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
