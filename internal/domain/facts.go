package domain

import "fmt"

// Fact is a single observation for a case: either a number or a truth value.
type Fact struct {
	Number float64 `json:"number,omitempty"`
	Bool   bool    `json:"bool,omitempty"`
	IsBool bool    `json:"isBool"`
}

// NumberFact returns a numeric observation.
func NumberFact(v float64) Fact {
	return Fact{Number: v}
}

// BoolFact returns a truth-value observation.
func BoolFact(v bool) Fact {
	return Fact{Bool: v, IsBool: true}
}

// Value returns the fact as a number; truth values map to 1 and 0.
func (f Fact) Value() float64 {
	if !f.IsBool {
		return f.Number
	}
	if f.Bool {
		return 1
	}
	return 0
}

// Truth returns the fact as a truth value; numbers are true when non-zero.
func (f Fact) Truth() bool {
	if f.IsBool {
		return f.Bool
	}
	return f.Number != 0
}

func (f Fact) String() string {
	if f.IsBool {
		return fmt.Sprintf("%t", f.Bool)
	}
	return fmt.Sprintf("%g", f.Number)
}

// FactSet maps predefined trigger ids (and a few display keys) to observations.
type FactSet map[string]Fact

// Display-only fact keys that have no trigger.
const (
	FactRevenueExposurePct = "revenue_exposure_pct"
	FactRapidMovementHours = "rapid_movement_hours"
)

// Severity is the display tier of a met trigger.
type Severity string

const (
	SeverityNone     Severity = ""
	SeverityModerate Severity = "moderate"
	SeverityStrong   Severity = "strong"
)

// TriggerOutcome is the evaluation of one trigger against one fact set.
type TriggerOutcome struct {
	ID         string        `json:"id"`
	Label      string        `json:"label"`
	Unit       ThresholdUnit `json:"unit"`
	Operator   Operator      `json:"operator"`
	Threshold  float64       `json:"threshold"`
	Observed   *Fact         `json:"observed,omitempty"`
	Met        bool          `json:"met"`
	IsCritical bool          `json:"isCritical"`
	Severity   Severity      `json:"severity,omitempty"`
}

// EvaluationResult is the console payload produced by the evaluator.
type EvaluationResult struct {
	Outcomes        []TriggerOutcome `json:"outcomes"`
	MetCount        int              `json:"metCount"`
	TotalCount      int              `json:"totalCount"`
	RegularMetCount int              `json:"regularMetCount"`
	AnyCriticalMet  bool             `json:"anyCriticalMet"`
	ShouldEscalate  bool             `json:"shouldEscalate"`

	// MinRegularTriggersToEscalate echoes the policy threshold used.
	MinRegularTriggersToEscalate int `json:"minRegularTriggersToEscalate"`
}

// Recommendation values.
const (
	RecommendEscalate = "escalate"
	RecommendDismiss  = "dismiss"
)

// Recommendation returns "escalate" or "dismiss".
func (r EvaluationResult) Recommendation() string {
	if r.ShouldEscalate {
		return RecommendEscalate
	}
	return RecommendDismiss
}

// Summary renders the analyst-facing "met X of Y (threshold Z)" line.
func (r EvaluationResult) Summary() string {
	return fmt.Sprintf("met %d of %d (threshold %d)", r.MetCount, r.TotalCount, r.MinRegularTriggersToEscalate)
}

// MetOutcomes returns the outcomes whose trigger was met, in order.
func (r EvaluationResult) MetOutcomes() []TriggerOutcome {
	var met []TriggerOutcome
	for _, o := range r.Outcomes {
		if o.Met {
			met = append(met, o)
		}
	}
	return met
}
