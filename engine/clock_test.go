package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caretide/booking-engine/engine"
)

func TestParseTimeOfDay(t *testing.T) {
	tod, err := engine.ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9, tod.Hour())
	assert.Equal(t, 30, tod.Minute())
	assert.Equal(t, "09:30", tod.String())

	midnight, err := engine.ParseTimeOfDay("00:00")
	require.NoError(t, err)
	assert.Equal(t, engine.TimeOfDay(0), midnight)

	for _, bad := range []string{"24:00", "12:60", "9:30", "12.30", "noon", ""} {
		_, err := engine.ParseTimeOfDay(bad)
		assert.ErrorIs(t, err, engine.ErrValidation, "input %q", bad)
	}
}

func TestParseTimeOfDay_RejectsPartialDigits(t *testing.T) {
	// Every character must be part of a well-formed HH:MM; a lenient
	// scanner that stops at the first non-digit would let these through.
	for _, bad := range []string{"09:0a", "09:3x", " 9:00", "0a:30", "09 30", "09:30 "} {
		_, err := engine.ParseTimeOfDay(bad)
		assert.ErrorIs(t, err, engine.ErrValidation, "input %q", bad)
	}
}

func TestDate_ArithmeticAndMonth(t *testing.T) {
	d, err := engine.ParseDate("2026-03-31")
	require.NoError(t, err)

	assert.Equal(t, "2026-04-01", d.Next().String())
	assert.Equal(t, "2026-03-30", d.Prev().String())
	assert.Equal(t, "2026-03", d.YearMonth().String())

	// Month boundary crossing carries into the next YearMonth.
	assert.Equal(t, "2026-04", d.Next().YearMonth().String())
}

func TestYearMonth_BoundsAndOrder(t *testing.T) {
	ym, err := engine.ParseYearMonth("2026-02")
	require.NoError(t, err)

	assert.Equal(t, "2026-02-01", ym.FirstDay().String())
	assert.Equal(t, "2026-02-28", ym.LastDay().String())
	assert.Equal(t, "2026-03", ym.Next().String())

	dec := engine.YearMonth{Year: 2025, Month: time.December}
	assert.True(t, dec.Before(ym))
	assert.False(t, ym.Before(dec))

	assert.True(t, ym.Contains(engine.NewDate(2026, time.February, 15)))
	assert.False(t, ym.Contains(engine.NewDate(2026, time.March, 1)))
}
