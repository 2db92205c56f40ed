// Package facts derives the observations the trigger evaluator consumes
// from a case's pre-resolved profile data.
package facts

import (
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.NewFromFloat(0.5)
)

// round rounds half up toward positive infinity, so -2.5 becomes -2.
func round(d decimal.Decimal) float64 {
	return d.Add(half).Floor().InexactFloat64()
}

// BaselineDeviationPct is the rounded percentage by which current exceeds
// baselineAvg. It is negative below baseline and 0 when baselineAvg <= 0.
func BaselineDeviationPct(current, baselineAvg float64) float64 {
	if baselineAvg <= 0 {
		return 0
	}
	cur := decimal.NewFromFloat(current)
	avg := decimal.NewFromFloat(baselineAvg)
	return round(cur.Sub(avg).Div(avg).Mul(hundred))
}

// SpikeMultiple is windowTotal / historicalAvg, unrounded. It is 0 when
// historicalAvg <= 0.
func SpikeMultiple(windowTotal, historicalAvg float64) float64 {
	if historicalAvg <= 0 {
		return 0
	}
	return windowTotal / historicalAvg
}

// PeriodRevenue scales a monthly revenue figure to a window of months.
func PeriodRevenue(monthlyRevenue float64, months int) float64 {
	if months <= 0 {
		return 0
	}
	return decimal.NewFromFloat(monthlyRevenue).Mul(decimal.NewFromInt(int64(months))).InexactFloat64()
}

// RevenueRatioPct is the rounded percentage of amount against declared
// revenue for the same window. The monthly figure is scaled to the window
// before dividing. It is 0 when the scaled revenue is <= 0.
func RevenueRatioPct(amount, monthlyRevenue float64, months int) float64 {
	period := PeriodRevenue(monthlyRevenue, months)
	if period <= 0 {
		return 0
	}
	return SharePct(amount, period)
}

// SharePct is the rounded percentage of part in whole, 0 when whole <= 0.
func SharePct(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return round(decimal.NewFromFloat(part).Div(decimal.NewFromFloat(whole)).Mul(hundred))
}

// RiskRatingElevated reports whether the current rating ranks above the
// rating at onboarding. Unknown ratings never count as elevated.
func RiskRatingElevated(onboarding, current domain.RiskRating) bool {
	if onboarding.Rank() == 0 || current.Rank() == 0 {
		return false
	}
	return current.Rank() > onboarding.Rank()
}
