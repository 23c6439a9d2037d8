/*
Package identity allocates and classifies customer identifiers.

PURPOSE:
  A small state machine over (customerType, voucherStatus, introducer)
  that decides whether a customer can be issued an identifier, generates
  sequence-numbered candidates per structural pattern, and decides whether
  an attribute change warrants prompting to replace a stored identifier.

IDENTIFIER PATTERNS:
  DC-NNNNN   direct customer        (pattern A)
  VP-NNNNN   voucher, pending       (pattern B, legacy - classified, never
                                     generated under current rules)
  VH-NNNNN   voucher, held          (pattern C)

STATE MACHINE:
  An identifier is generatable only when the introducer is set AND either
  the customer is a direct customer, or a voucher customer whose voucher
  is held. Every other state produces no candidate.

REPLACEMENT PROMPTS:
  Classification is structural (prefix + digits), independent of the state
  machine, so it works on identifiers stored before this system existed.
  A prompt fires only when the existing identifier and a fresh candidate
  both classify to a KNOWN type and the two types differ. Unknown or
  matching types keep the existing identifier silently.

CONCURRENCY:
  Sequence numbers within one pattern are serialized through a per-pattern
  key lock, so concurrent generation never hands out the same number.

SEE ALSO:
  - engine/lock.go: The per-key mutual exclusion used here
  - store/sqlite: The persistent Sequence implementation
*/
package identity

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/caretide/booking-engine/engine"
)

// =============================================================================
// PATTERNS AND CLASSIFICATION
// =============================================================================

// Pattern is a structural identifier family with its own sequence.
type Pattern string

const (
	PatternDirect         Pattern = "DC" // pattern A
	PatternVoucherPending Pattern = "VP" // pattern B
	PatternVoucherHeld    Pattern = "VH" // pattern C
)

// Kind is the structural classification of a stored identifier.
// Pending and held voucher identifiers collapse into one kind: replacement
// prompting only cares about voucher-vs-direct.
type Kind string

const (
	KindDirect               Kind = "direct"
	KindVoucherPendingOrHeld Kind = "voucherPendingOrHeld"
	KindUnknown              Kind = "unknown"
)

var (
	directPattern  = regexp.MustCompile(`^DC-\d{5}$`)
	voucherPattern = regexp.MustCompile(`^V[PH]-\d{5}$`)
)

// Classify maps an identifier string to its structural kind.
// Purely syntactic; ignores the customer's current attributes.
func Classify(id string) Kind {
	switch {
	case directPattern.MatchString(id):
		return KindDirect
	case voucherPattern.MatchString(id):
		return KindVoucherPendingOrHeld
	default:
		return KindUnknown
	}
}

// ShouldPromptReplacement decides whether an attribute change warrants
// asking the operator to replace the stored identifier. True iff both
// identifiers classify to a known kind and the kinds differ.
func ShouldPromptReplacement(existing, candidate string) bool {
	e, c := Classify(existing), Classify(candidate)
	if e == KindUnknown || c == KindUnknown {
		return false
	}
	return e != c
}

// =============================================================================
// STATE MACHINE - When is an identifier generatable?
// =============================================================================

// PatternFor returns the pattern a customer's current attributes call for,
// or false when no identifier is generatable.
func PatternFor(c engine.Customer) (Pattern, bool) {
	if c.Introducer == "" {
		return "", false
	}
	switch c.Type {
	case engine.CustomerDirect:
		return PatternDirect, true
	case engine.CustomerVoucher:
		if c.VoucherStatus == engine.VoucherHeld {
			return PatternVoucherHeld, true
		}
	}
	return "", false
}

// =============================================================================
// ALLOCATOR
// =============================================================================

// Sequence hands out monotonically increasing numbers per pattern.
// Implementations must be atomic per call; the allocator additionally
// serializes calls per pattern so a slow store cannot interleave.
type Sequence interface {
	Next(ctx context.Context, pattern Pattern) (int64, error)
}

// Allocator proposes candidate identifiers from customer attributes.
type Allocator struct {
	seq   Sequence
	locks *engine.KeyedMutex
}

func NewAllocator(seq Sequence) *Allocator {
	return &Allocator{seq: seq, locks: engine.NewKeyedMutex()}
}

// Propose returns a candidate identifier for the customer, or "" when the
// state machine produces none. Generation consumes a sequence number, so
// callers should only invoke it when they intend to offer the candidate.
func (a *Allocator) Propose(ctx context.Context, c engine.Customer) (string, error) {
	pattern, ok := PatternFor(c)
	if !ok {
		return "", nil
	}

	unlock := a.locks.Lock(engine.PatternKey(string(pattern)))
	defer unlock()

	n, err := a.seq.Next(ctx, pattern)
	if err != nil {
		return "", err
	}
	return Format(pattern, n), nil
}

// Format renders a sequence number in its pattern's structural form.
func Format(pattern Pattern, n int64) string {
	return fmt.Sprintf("%s-%05d", pattern, n)
}

// =============================================================================
// MEMORY SEQUENCE - For testing/dev
// =============================================================================

type MemorySequence struct {
	mu   sync.Mutex
	last map[Pattern]int64
}

func NewMemorySequence() *MemorySequence {
	return &MemorySequence{last: make(map[Pattern]int64)}
}

func (s *MemorySequence) Next(_ context.Context, pattern Pattern) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[pattern]++
	return s.last[pattern], nil
}
