/*
Package factory provides JSON to Go commission-configuration conversion.

PURPOSE:
  Converts JSON configuration into the rate table, thresholds, and
  exclusion set the core consumes. This enables configuration without
  code changes - back office staff can adjust commission terms in JSON,
  and the factory creates the proper Go structs.

JSON SCHEMA:
  {
    "thresholds": {"hours": "25", "fee": "62000"},
    "excluded_categories": ["walk_in", "direct_acquisition"],
    "rates": [
      {"introducer": "carehub", "first_month_rate": "10000", "subsequent_month_rate": "3000"},
      {"introducer": "ward-office", "first_month_rate": "8000", "subsequent_month_rate": "2500"}
    ]
  }

  Monetary values are decimal strings so configuration survives round
  trips without floating-point drift.

USAGE:
  cfg, err := factory.ParseConfig(jsonBytes)
  engine := commission.NewEngine(cfg.Rates, cfg.Thresholds)

SEE ALSO:
  - commission/types.go: RateTable and Thresholds definitions
  - cmd/server/main.go: Loads this at startup and seeds the store
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/caretide/booking-engine/commission"
	"github.com/caretide/booking-engine/engine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type ConfigJSON struct {
	Thresholds         ThresholdsJSON `json:"thresholds"`
	ExcludedCategories []string       `json:"excluded_categories"`
	Rates              []RateJSON     `json:"rates"`
}

type ThresholdsJSON struct {
	Hours string `json:"hours"`
	Fee   string `json:"fee"`
}

type RateJSON struct {
	Introducer          string `json:"introducer"`
	FirstMonthRate      string `json:"first_month_rate"`
	SubsequentMonthRate string `json:"subsequent_month_rate"`
}

// =============================================================================
// PARSED CONFIG
// =============================================================================

// Config is the validated, typed form of the JSON configuration.
type Config struct {
	Thresholds commission.Thresholds
	Rates      commission.RateTable
	Exclusions engine.ExclusionSet
}

// ParseConfig validates and converts JSON configuration.
func ParseConfig(data []byte) (*Config, error) {
	var raw ConfigJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid config JSON: %w", err)
	}

	hours, err := parseAmount("thresholds.hours", raw.Thresholds.Hours)
	if err != nil {
		return nil, err
	}
	fee, err := parseAmount("thresholds.fee", raw.Thresholds.Fee)
	if err != nil {
		return nil, err
	}

	rates := make(commission.RateTable, len(raw.Rates))
	for _, r := range raw.Rates {
		if r.Introducer == "" {
			return nil, fmt.Errorf("rate row missing introducer")
		}
		first, err := parseAmount("first_month_rate", r.FirstMonthRate)
		if err != nil {
			return nil, fmt.Errorf("introducer %q: %w", r.Introducer, err)
		}
		subsequent, err := parseAmount("subsequent_month_rate", r.SubsequentMonthRate)
		if err != nil {
			return nil, fmt.Errorf("introducer %q: %w", r.Introducer, err)
		}
		rates[r.Introducer] = commission.RateRow{
			Introducer:          r.Introducer,
			FirstMonthRate:      first,
			SubsequentMonthRate: subsequent,
		}
	}

	exclusions := make(engine.ExclusionSet, len(raw.ExcludedCategories))
	for _, c := range raw.ExcludedCategories {
		exclusions[engine.Category(c)] = true
	}

	return &Config{
		Thresholds: commission.Thresholds{Hours: hours, Fee: fee},
		Rates:      rates,
		Exclusions: exclusions,
	}, nil
}

func parseAmount(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Decimal{}, fmt.Errorf("missing %s", field)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%s must be non-negative, got %s", field, value)
	}
	return d, nil
}

// =============================================================================
// PRESETS
// =============================================================================

// DefaultConfig is the shipped starting configuration: a 25-hour / 62000
// fee qualification threshold and walk-in/direct acquisitions excluded.
// Rate rows come from the host's rate table; the preset carries none.
func DefaultConfig() *Config {
	return &Config{
		Thresholds: commission.Thresholds{
			Hours: engine.MustDecimal("25"),
			Fee:   engine.MustDecimal("62000"),
		},
		Rates: commission.NewRateTable(),
		Exclusions: engine.NewExclusionSet(
			engine.CategoryWalkIn,
			engine.CategoryDirect,
		),
	}
}

// DemoConfig returns DefaultConfig plus a small rate table, for local
// development and the demo scenario data.
func DemoConfig() *Config {
	cfg := DefaultConfig()
	cfg.Rates = commission.NewRateTable(
		commission.RateRow{
			Introducer:          "carehub",
			FirstMonthRate:      engine.MustDecimal("10000"),
			SubsequentMonthRate: engine.MustDecimal("3000"),
		},
		commission.RateRow{
			Introducer:          "ward-office",
			FirstMonthRate:      engine.MustDecimal("8000"),
			SubsequentMonthRate: engine.MustDecimal("2500"),
		},
	)
	return cfg
}
