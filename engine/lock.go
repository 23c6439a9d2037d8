/*
lock.go - Per-key mutual exclusion for check-then-append scopes

PURPOSE:
  Conflict-check-then-append is not atomic by construction, so the host
  wraps it in a mutual-exclusion scope keyed by (actorKind, actorID, date)
  for bookings and by identifier pattern for sequence allocation. Two
  requests on different keys proceed independently; there is no global
  lock.

USAGE:
  unlock := locks.Lock(engine.BookingKey(engine.ActorStaff, "staff-3", date))
  defer unlock()
  // check conflicts, then append

  Multi-key scopes (a booking locks both the staff and the customer
  calendar, and both dates of a midnight-wrapping interval) go through
  LockAll, which sorts keys to keep acquisition order total and
  deadlock-free.

SEE ALSO:
  - booking/service.go: The check-then-append scope this protects
  - identity/allocator.go: Per-pattern serialization of sequence numbers
*/
package engine

import (
	"fmt"
	"sort"
	"sync"
)

// =============================================================================
// KEYED MUTEX
// =============================================================================

// KeyedMutex provides one mutex per string key, created on demand and
// reclaimed when no goroutine holds or waits on it.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// LockAll acquires every key in sorted order and returns a single unlock.
// Sorting makes the acquisition order total across callers, so two scopes
// sharing a subset of keys cannot deadlock.
func (k *KeyedMutex) LockAll(keys []string) func() {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if !seen[key] {
			seen[key] = true
			sorted = append(sorted, key)
		}
	}
	sort.Strings(sorted)

	unlocks := make([]func(), 0, len(sorted))
	for _, key := range sorted {
		unlocks = append(unlocks, k.Lock(key))
	}
	return func() {
		// Release in reverse acquisition order.
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// =============================================================================
// KEY CONSTRUCTORS
// =============================================================================

// BookingKey is the serialization key for one actor's calendar day.
func BookingKey(kind ActorKind, actorID string, date Date) string {
	return fmt.Sprintf("booking/%s/%s/%s", kind, actorID, date)
}

// PatternKey is the serialization key for one identifier pattern's sequence.
func PatternKey(pattern string) string {
	return "identifier/" + pattern
}
