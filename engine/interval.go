/*
interval.go - Half-open interval arithmetic and conflict detection

PURPOSE:
  Decides whether a proposed booking overlaps committed bookings on the
  same actor's calendar. This is pure arithmetic: the caller restricts the
  candidate set to entries that share the actor and can share a calendar
  day; the detector never touches storage.

INTERVAL SEMANTICS:
  An interval is [Start, End) on a 24h clock. When End <= Start the
  interval wraps past midnight: it occupies [Start, 24:00) on its date and
  [00:00, End) on the following date. Two intervals conflict iff their
  occupied minute ranges intersect on any shared calendar day.

  Touching endpoints never conflict: [09:00,10:00) and [10:00,11:00) are
  back-to-back bookings, which is normal scheduling.

  A night shift written as 22:00-06:00 therefore conflicts with 01:00-02:00
  on the NEXT day, and not with 20:00-21:00 on its own day.

EDGE CASES:
  - Start == End is a full 24h occupation under the wrap rule.
  - excludeID lets an edit-in-place check ignore the entry being edited.
  - Retired (superseded) entries never conflict.

SEE ALSO:
  - booking/service.go: Gathers candidate entries (date-1 .. date+1) and
    wraps check-then-append in the per-key lock
  - clock.go: Date and TimeOfDay parsing
*/
package engine

// =============================================================================
// INTERVAL - One booking's occupation of calendar time
// =============================================================================

// Interval is a half-open [Start, End) time range anchored to a date.
// End <= Start signifies the interval crosses midnight into the next date.
type Interval struct {
	Date  Date
	Start TimeOfDay
	End   TimeOfDay
}

// NewInterval parses and validates an interval from its wire form.
// Returns a ValidationError for malformed dates or times.
func NewInterval(date, start, end string) (Interval, error) {
	d, err := ParseDate(date)
	if err != nil {
		return Interval{}, err
	}
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return Interval{}, err
	}
	return Interval{Date: d, Start: s, End: e}, nil
}

// Wraps reports whether the interval crosses midnight.
func (iv Interval) Wraps() bool { return iv.End <= iv.Start }

// Minutes returns the occupied duration in minutes under the wrap rule.
func (iv Interval) Minutes() int {
	if iv.Wraps() {
		return (MinutesPerDay - int(iv.Start)) + int(iv.End)
	}
	return int(iv.End) - int(iv.Start)
}

// Dates returns every calendar date the interval touches.
func (iv Interval) Dates() []Date {
	if iv.Wraps() {
		return []Date{iv.Date, iv.Date.Next()}
	}
	return []Date{iv.Date}
}

// segment is the occupied minute range [from, to) on a single date.
type segment struct {
	date     Date
	from, to int
}

// segments splits the interval into per-date minute ranges.
// A wrapping interval yields two segments; a plain one yields one.
func (iv Interval) segments() []segment {
	if iv.Wraps() {
		return []segment{
			{date: iv.Date, from: int(iv.Start), to: MinutesPerDay},
			{date: iv.Date.Next(), from: 0, to: int(iv.End)},
		}
	}
	return []segment{{date: iv.Date, from: int(iv.Start), to: int(iv.End)}}
}

// Overlaps reports whether two intervals occupy any common minute.
// Half-open semantics: segments that only touch at an endpoint do not
// overlap. Symmetric by construction.
func (iv Interval) Overlaps(other Interval) bool {
	for _, a := range iv.segments() {
		for _, b := range other.segments() {
			if a.date.Equal(b.date) && a.from < b.to && b.from < a.to {
				return true
			}
		}
	}
	return false
}

// =============================================================================
// CONFLICT RESULT
// =============================================================================

// ConflictSummary describes one committed entry a proposal overlaps.
type ConflictSummary struct {
	EntryID    EntryID
	CustomerID CustomerID
	StaffID    StaffID
	Date       Date
	Start      TimeOfDay
	End        TimeOfDay
}

// ConflictResult is the outcome of a conflict check. An empty Overlaps
// slice means no conflict; the check never fails for well-formed input.
type ConflictResult struct {
	Overlaps []ConflictSummary
}

func (r ConflictResult) HasConflict() bool { return len(r.Overlaps) > 0 }

// =============================================================================
// DETECTOR
// =============================================================================

// CheckConflict tests a proposed interval against the given committed
// entries. The caller is responsible for restricting existing to entries of
// the same actor whose calendar days can intersect the proposal (the
// proposal's date, the day before, and the day after when wrapping).
//
// excludeID ignores the entry being edited in an edit-in-place check;
// pass "" for a fresh booking. Retired entries are skipped.
func CheckConflict(proposed Interval, existing []BookingEntry, excludeID EntryID) ConflictResult {
	var result ConflictResult
	for _, e := range existing {
		if e.ID == excludeID || e.Retired() {
			continue
		}
		if proposed.Overlaps(e.Interval()) {
			result.Overlaps = append(result.Overlaps, ConflictSummary{
				EntryID:    e.ID,
				CustomerID: e.CustomerID,
				StaffID:    e.StaffID,
				Date:       e.ServiceDate,
				Start:      e.Start,
				End:        e.End,
			})
		}
	}
	return result
}

// DuplicateDates returns the indexes of intervals whose date has already
// appeared earlier in the slice. Batch validation rejects those proposals:
// a deduplicated date set is what makes batch members independent of each
// other.
func DuplicateDates(proposals []Interval) []int {
	seen := make(map[Date]bool, len(proposals))
	var dups []int
	for i, p := range proposals {
		if seen[p.Date] {
			dups = append(dups, i)
			continue
		}
		seen[p.Date] = true
	}
	return dups
}
