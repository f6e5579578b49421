package pricing

import (
	"strings"
	"time"

	"github.com/teresa-solution/lead-finance-service/internal/model"
)

func leadScore(req model.QuoteRequest, leadTime int) int {
	score := 50

	switch strings.ToLower(req.Occasion) {
	case "wedding", "reception":
		score += 20
	case "corporate", "engagement":
		score += 15
	default:
		score += 10
	}

	switch {
	case req.Pax >= 300:
		score += 20
	case req.Pax >= 200:
		score += 15
	case req.Pax >= 100:
		score += 10
	default:
		score += 5
	}

	switch {
	case leadTime <= 30:
		score += 15
	case leadTime <= 60:
		score += 10
	default:
		score += 5
	}

	switch req.LeadSource {
	case "referral":
		score += 15
	case "website":
		score += 10
	case "social_media":
		score += 8
	default:
		score += 5
	}

	return min(100, max(0, score))
}

func leadLabel(score int) model.LeadLabel {
	switch {
	case score >= 80:
		return model.LeadHot
	case score >= 60:
		return model.LeadWarm
	default:
		return model.LeadCold
	}
}

// budgetRisk compares a client's budget against the predicted total.
// No budget is collected with a quote yet, so the engine passes the total
// for both arguments and this contributes nothing.
func budgetRisk(budget, total int64) int {
	switch {
	case budget*10 < total*8:
		return 30
	case budget*10 >= total*12:
		return -10
	}
	return 0
}

func paymentRiskScore(req model.QuoteRequest, leadTime int, total int64) int {
	risk := budgetRisk(total, total)

	switch {
	case req.Pax < 50:
		risk += 20
	case req.Pax > 300:
		risk -= 10
	}

	if leadTime < 15 {
		risk += 15
	}
	return risk
}

func paymentRisk(score int) model.PaymentRisk {
	switch {
	case score >= 40:
		return model.RiskHigh
	case score >= 20:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

// demandSurge flags peak-season weekends.
func demandSurge(date time.Time) bool {
	wd := date.Weekday()
	return isPeakMonth(date.Month()) && (wd == time.Saturday || wd == time.Sunday)
}
