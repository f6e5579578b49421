package model

import (
	"math"
	"time"
)

// DateLayout is the wire format of function_date.
const DateLayout = "2006-01-02"

// QuoteRequest is the pricing engine input.
type QuoteRequest struct {
	Occasion     string `json:"occasion"`
	Pax          int    `json:"pax"`
	FunctionDate string `json:"function_date"`
	MenuType     string `json:"menu_type"`
	LeadTimeDays *int   `json:"lead_time_days"`
	LeadSource   string `json:"lead_source,omitempty"`
}

// LeadLabel buckets a lead score.
type LeadLabel string

const (
	LeadHot  LeadLabel = "Hot"
	LeadWarm LeadLabel = "Warm"
	LeadCold LeadLabel = "Cold"
)

// PaymentRisk buckets the likelihood of a payment default.
type PaymentRisk string

const (
	RiskHigh   PaymentRisk = "High"
	RiskMedium PaymentRisk = "Medium"
	RiskLow    PaymentRisk = "Low"
)

// PricingFactors exposes the inputs of the price formula. The JSON names
// are the ones dashboards already consume: occasion_multiplier carries the
// menu multiplier and pax_rate the per-guest base rate.
type PricingFactors struct {
	MenuMultiplier float64 `json:"occasion_multiplier"`
	BaseRate       int64   `json:"pax_rate"`
	LeadTimeFactor float64 `json:"lead_time_factor"`
	SeasonalFactor float64 `json:"seasonal_factor"`
	PaxMultiplier  float64 `json:"pax_multiplier"`
}

// QuoteResult is derived solely from a QuoteRequest. Amounts are whole
// currency units.
type QuoteResult struct {
	BasePrice      int64          `json:"base_price"`
	GSTAmount      int64          `json:"gst_amount"`
	TotalPrice     int64          `json:"total_price"`
	DepositAmount  int64          `json:"deposit_amount"`
	LeadScore      int            `json:"lead_score"`
	LeadLabel      LeadLabel      `json:"lead_label"`
	PaymentRisk    PaymentRisk    `json:"payment_risk"`
	DemandSurge    bool           `json:"demand_surge"`
	PricingFactors PricingFactors `json:"pricing_factors"`
}

// LeadTimeDays returns the whole days from now until functionDate, rounded up.
func LeadTimeDays(functionDate, now time.Time) int {
	return int(math.Ceil(functionDate.Sub(now).Hours() / 24))
}
