// Package policy holds the escalation policy: its default trigger set,
// the merge of stored documents against those defaults, persistence,
// and the editing operations used by the configuration editor.
package policy

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Predefined trigger ids.
const (
	BaselineDeviation        = "baseline_deviation"
	FirstTimeBeneficiary     = "first_time_beneficiary"
	ElevatedRiskJurisdiction = "elevated_risk_jurisdiction"
	RapidMovement            = "rapid_movement"
	DocumentationGap         = "documentation_gap"
	CorridorNovelty          = "corridor_novelty"
	PriorSARAlertHistory     = "prior_sar_alert_history"
	RiskRatingElevated       = "risk_rating_elevated"
	VelocitySpike            = "velocity_spike"
	IndustryOutlier          = "industry_outlier"
	ConcentrationRisk        = "concentration_risk"
	NegativeMediaRisk        = "negative_media_risk"
	SanctionsMatch           = "sanctions_match"
)

// DefaultMinRegularTriggers is the default N of the N-of-regular rule.
const DefaultMinRegularTriggers = 3

var predefinedIDs = []string{
	BaselineDeviation,
	FirstTimeBeneficiary,
	ElevatedRiskJurisdiction,
	RapidMovement,
	DocumentationGap,
	CorridorNovelty,
	PriorSARAlertHistory,
	RiskRatingElevated,
	VelocitySpike,
	IndustryOutlier,
	ConcentrationRisk,
	NegativeMediaRisk,
	SanctionsMatch,
}

// PredefinedIDs returns the closed set of predefined trigger ids in display order.
func PredefinedIDs() []string {
	out := make([]string, len(predefinedIDs))
	copy(out, predefinedIDs)
	return out
}

// IsPredefinedID reports whether id belongs to the predefined set.
func IsPredefinedID(id string) bool {
	for _, p := range predefinedIDs {
		if p == id {
			return true
		}
	}
	return false
}

func boolTrigger(id, label string, critical bool) domain.Trigger {
	return domain.Trigger{
		ID:                 id,
		Label:              label,
		Kind:               domain.TriggerPredefined,
		ThresholdValue:     1,
		ThresholdUnit:      domain.UnitBoolean,
		ComparisonOperator: domain.OpEqual,
		IsCritical:         critical,
		Enabled:            true,
	}
}

func numericTrigger(id, label string, unit domain.ThresholdUnit, op domain.Operator, threshold float64) domain.Trigger {
	return domain.Trigger{
		ID:                 id,
		Label:              label,
		Kind:               domain.TriggerPredefined,
		ThresholdValue:     threshold,
		ThresholdUnit:      unit,
		ComparisonOperator: op,
		Enabled:            true,
	}
}

// Defaults returns a fresh default policy. Callers may mutate the result.
func Defaults() domain.PolicyConfig {
	rapid := numericTrigger(RapidMovement, "Rapid movement (hours)", domain.UnitHours, domain.OpLessEqual, 72)
	rapid.CriticalThresholdValue = domain.Float(24)
	rapid.IsCritical = true

	return domain.PolicyConfig{
		MinRegularTriggersToEscalate: DefaultMinRegularTriggers,
		Triggers: []domain.Trigger{
			numericTrigger(BaselineDeviation, "Baseline deviation", domain.UnitPercentage, domain.OpGreater, 100),
			boolTrigger(FirstTimeBeneficiary, "First-time beneficiary", false),
			boolTrigger(ElevatedRiskJurisdiction, "Elevated-risk jurisdiction", false),
			rapid,
			boolTrigger(DocumentationGap, "Documentation gap", false),
			boolTrigger(CorridorNovelty, "Corridor novelty", false),
			numericTrigger(PriorSARAlertHistory, "Prior SAR/Alert History", domain.UnitCount, domain.OpGreater, 0),
			boolTrigger(RiskRatingElevated, "Risk Rating Elevated", false),
			numericTrigger(VelocitySpike, "Velocity Spike (7d multiple)", domain.UnitMultiplier, domain.OpGreater, 3),
			numericTrigger(IndustryOutlier, "Industry Outlier (percentile)", domain.UnitPercentile, domain.OpGreaterEqual, 90),
			numericTrigger(ConcentrationRisk, "Concentration Risk (%)", domain.UnitPercentage, domain.OpGreater, 50),
			boolTrigger(NegativeMediaRisk, "Negative Media Risk", false),
			boolTrigger(SanctionsMatch, "Sanctions match", true),
		},
	}
}

// ResetToDefaults discards every edit and returns the default policy.
func ResetToDefaults() domain.PolicyConfig {
	return Defaults()
}
