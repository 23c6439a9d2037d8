// Package store provides engine.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/caretide/booking-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	entries     map[engine.EntryID]engine.BookingEntry
	order       []engine.EntryID // append order, stable iteration
	idempotency map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		entries:     make(map[engine.EntryID]engine.BookingEntry),
		idempotency: make(map[string]bool),
	}
}

// Append adds a single entry. Append-only.
func (m *Memory) Append(_ context.Context, entry engine.BookingEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.IdempotencyKey != "" && m.idempotency[entry.IdempotencyKey] {
		return engine.ErrDuplicateIdempotencyKey
	}
	m.entries[entry.ID] = entry
	m.order = append(m.order, entry.ID)
	if entry.IdempotencyKey != "" {
		m.idempotency[entry.IdempotencyKey] = true
	}
	return nil
}

// MarkSuperseded sets the back-reference on a committed entry.
// This is the only sanctioned mutation: a relation, not an edit.
func (m *Memory) MarkSuperseded(_ context.Context, old, by engine.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[old]
	if !ok {
		return engine.ErrEntryNotFound
	}
	if e.Retired() {
		return engine.ErrEntryRetired
	}
	e.SupersededBy = by
	m.entries[old] = e
	return nil
}

func (m *Memory) Get(_ context.Context, id engine.EntryID) (*engine.BookingEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) QueryByActorDate(_ context.Context, kind engine.ActorKind, actorID string, date engine.Date) ([]engine.BookingEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.BookingEntry
	for _, id := range m.order {
		e := m.entries[id]
		if e.ActorID(kind) == actorID && e.ServiceDate.Equal(date) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Start < result[j].Start })
	return result, nil
}

func (m *Memory) QueryByCustomerMonth(_ context.Context, customerID engine.CustomerID, ym engine.YearMonth) ([]engine.BookingEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.BookingEntry
	for _, id := range m.order {
		e := m.entries[id]
		if e.CustomerID == customerID && ym.Contains(e.ServiceDate) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ServiceDate.Before(result[j].ServiceDate) })
	return result, nil
}

func (m *Memory) MonthsWithEntries(_ context.Context, customerID engine.CustomerID) ([]engine.YearMonth, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[engine.YearMonth]bool)
	var months []engine.YearMonth
	for _, id := range m.order {
		e := m.entries[id]
		if e.CustomerID != customerID {
			continue
		}
		ym := e.ServiceDate.YearMonth()
		if !seen[ym] {
			seen[ym] = true
			months = append(months, ym)
		}
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })
	return months, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}
