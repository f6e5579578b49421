package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const defaultBaseRate = 600

// Per-guest base rate by occasion.
var occasionRates = map[string]int64{
	"wedding":     800,
	"birthday":    600,
	"anniversary": 650,
	"corporate":   750,
	"engagement":  700,
	"reception":   850,
	"sangeet":     750,
	"mehendi":     650,
	"other":       600,
}

var menuMultipliers = map[string]decimal.Decimal{
	"vegetarian":     decimal.RequireFromString("1.0"),
	"non-vegetarian": decimal.RequireFromString("1.3"),
	"premium":        decimal.RequireFromString("1.5"),
	"deluxe":         decimal.RequireFromString("1.8"),
	"basic":          decimal.RequireFromString("0.8"),
}

var (
	one        = decimal.NewFromInt(1)
	gstRate    = decimal.RequireFromString("0.18")
	depositPct = decimal.RequireFromString("0.3")
)

func baseRate(occasion string) int64 {
	if rate, ok := occasionRates[strings.ToLower(occasion)]; ok {
		return rate
	}
	return defaultBaseRate
}

func menuMultiplier(menuType string) decimal.Decimal {
	if m, ok := menuMultipliers[strings.ToLower(menuType)]; ok {
		return m
	}
	return one
}

// leadTimeFactor charges rush bookings more and discounts early ones.
func leadTimeFactor(days int) decimal.Decimal {
	switch {
	case days <= 7:
		return decimal.RequireFromString("1.5")
	case days <= 15:
		return decimal.RequireFromString("1.3")
	case days <= 30:
		return decimal.RequireFromString("1.1")
	case days <= 60:
		return one
	default:
		return decimal.RequireFromString("0.9")
	}
}

func isPeakMonth(m time.Month) bool {
	switch m {
	case time.November, time.December, time.January, time.February:
		return true
	}
	return false
}

func seasonalFactor(m time.Month) decimal.Decimal {
	if isPeakMonth(m) {
		return decimal.RequireFromString("1.4")
	}
	switch m {
	case time.March, time.April, time.October:
		return decimal.RequireFromString("1.2")
	}
	return one
}

// paxMultiplier gives a bulk discount to large events and a premium to small ones.
func paxMultiplier(pax int) decimal.Decimal {
	switch {
	case pax >= 500:
		return decimal.RequireFromString("0.85")
	case pax >= 300:
		return decimal.RequireFromString("0.9")
	case pax >= 200:
		return decimal.RequireFromString("0.95")
	case pax >= 100:
		return one
	default:
		return decimal.RequireFromString("1.15")
	}
}

// roundUnits rounds half-up to a whole currency unit. Inputs are never negative.
func roundUnits(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
