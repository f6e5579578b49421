// Package pricing computes catering quotes, lead scores and payment risk
// from a QuoteRequest. It performs no I/O; the only input besides the
// request is the engine clock used to decide whether a date is in the future.
package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teresa-solution/lead-finance-service/internal/model"
)

const (
	MinPax = 10
	MaxPax = 2000
)

// Engine computes quotes. The zero value is not usable; use NewEngine.
type Engine struct {
	now func() time.Time
}

type Option func(*Engine)

// WithClock overrides the clock used for the future-date check.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeQuote validates req and prices it. On a validation failure the
// returned result is the zero QuoteResult and the error is a *ValidationError.
func (e *Engine) ComputeQuote(req model.QuoteRequest) (model.QuoteResult, error) {
	date, err := e.validate(req)
	if err != nil {
		return model.QuoteResult{}, err
	}
	leadTime := *req.LeadTimeDays

	rate := baseRate(req.Occasion)
	menu := menuMultiplier(req.MenuType)
	lead := leadTimeFactor(leadTime)
	season := seasonalFactor(date.Month())
	paxMul := paxMultiplier(req.Pax)

	base := roundUnits(decimal.NewFromInt(rate).
		Mul(decimal.NewFromInt(int64(req.Pax))).
		Mul(menu).
		Mul(lead).
		Mul(season).
		Mul(paxMul))
	gst := roundUnits(decimal.NewFromInt(base).Mul(gstRate))
	total := base + gst
	deposit := roundUnits(decimal.NewFromInt(total).Mul(depositPct))

	score := leadScore(req, leadTime)

	return model.QuoteResult{
		BasePrice:     base,
		GSTAmount:     gst,
		TotalPrice:    total,
		DepositAmount: deposit,
		LeadScore:     score,
		LeadLabel:     leadLabel(score),
		PaymentRisk:   paymentRisk(paymentRiskScore(req, leadTime, total)),
		DemandSurge:   demandSurge(date),
		PricingFactors: model.PricingFactors{
			MenuMultiplier: menu.InexactFloat64(),
			BaseRate:       rate,
			LeadTimeFactor: lead.InexactFloat64(),
			SeasonalFactor: season.InexactFloat64(),
			PaxMultiplier:  paxMul.InexactFloat64(),
		},
	}, nil
}

// validate checks presence, guest count and date in that order and returns
// the parsed function date.
func (e *Engine) validate(req model.QuoteRequest) (time.Time, error) {
	switch {
	case strings.TrimSpace(req.Occasion) == "":
		return time.Time{}, invalid(ErrMissingField, "occasion")
	case req.Pax == 0:
		return time.Time{}, invalid(ErrMissingField, "pax")
	case strings.TrimSpace(req.FunctionDate) == "":
		return time.Time{}, invalid(ErrMissingField, "function_date")
	case strings.TrimSpace(req.MenuType) == "":
		return time.Time{}, invalid(ErrMissingField, "menu_type")
	case req.LeadTimeDays == nil:
		return time.Time{}, invalid(ErrMissingField, "lead_time_days")
	}

	if req.Pax < MinPax || req.Pax > MaxPax {
		return time.Time{}, invalid(ErrInvalidGuestCount, "pax")
	}

	now := e.now()
	date, err := ParseFunctionDate(req.FunctionDate, now.Location())
	if err != nil {
		return time.Time{}, invalid(ErrInvalidDate, "function_date")
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if !date.After(today) {
		return time.Time{}, invalid(ErrInvalidDate, "function_date")
	}
	return date, nil
}

// ParseFunctionDate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns
// midnight of that calendar day in loc.
func ParseFunctionDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.ParseInLocation(model.DateLayout, s, loc)
	if err == nil {
		return t, nil
	}
	ts, tsErr := time.Parse(time.RFC3339, s)
	if tsErr != nil {
		return time.Time{}, err
	}
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
}
