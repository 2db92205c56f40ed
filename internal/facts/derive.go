package facts

import (
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/policy"
)

// Derive builds the fact set of a case. Every predefined trigger gets a fact
// except rapid movement when the case has no inbound to measure from.
func Derive(c *domain.Case) domain.FactSet {
	p := c.Profile
	fs := domain.FactSet{
		policy.BaselineDeviation:        domain.NumberFact(BaselineDeviationPct(c.Amount, p.AvgOutbound90d)),
		policy.FirstTimeBeneficiary:     domain.BoolFact(p.FirstTimeBeneficiary),
		policy.ElevatedRiskJurisdiction: domain.BoolFact(p.ElevatedRiskJurisdiction),
		policy.DocumentationGap:         domain.BoolFact(!p.DocumentationAttached),
		policy.CorridorNovelty:          domain.BoolFact(p.FirstTimeCountry),
		policy.PriorSARAlertHistory:     domain.NumberFact(float64(p.PriorSARCount)),
		policy.RiskRatingElevated:       domain.BoolFact(RiskRatingElevated(p.RiskRatingAtOnboarding, p.CurrentRiskRating)),
		policy.VelocitySpike:            domain.NumberFact(SpikeMultiple(p.OutboundLast7d, p.Historical7dAvg)),
		policy.IndustryOutlier:          domain.NumberFact(p.PeerPercentile),
		policy.ConcentrationRisk:        domain.NumberFact(SharePct(p.JurisdictionOutbound90d, p.TotalOutbound90d)),
		policy.NegativeMediaRisk:        domain.BoolFact(p.AdverseMedia),
		policy.SanctionsMatch:           domain.BoolFact(p.SanctionsMatch),

		domain.FactRevenueExposurePct: domain.NumberFact(RevenueRatioPct(p.DepositedInWindow, p.DeclaredMonthlyRevenue, p.WindowMonths)),
	}

	if p.TimeGapHours != nil {
		fs[policy.RapidMovement] = domain.NumberFact(*p.TimeGapHours)
		fs[domain.FactRapidMovementHours] = domain.NumberFact(*p.TimeGapHours)
	}

	return fs
}

// Revenue exposure display bands.
const (
	RevenueExposureAmberPct = 25
	RevenueExposureRedPct   = 50
)

// RevenueExposureBand returns "red", "amber" or "" for a revenue ratio.
func RevenueExposureBand(pct float64) string {
	switch {
	case pct >= RevenueExposureRedPct:
		return "red"
	case pct >= RevenueExposureAmberPct:
		return "amber"
	default:
		return ""
	}
}
