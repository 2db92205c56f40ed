package domain

import (
	"time"
)

// Decision is the persisted outcome of evaluating one case against the policy.
type Decision struct {
	ID        string           `json:"id"`
	CaseID    string           `json:"caseId"`
	Status    string           `json:"status"` // "ESCALATE" or "DISMISS"
	Result    EvaluationResult `json:"result"`
	Reasons   []string         `json:"reasons,omitempty"`
	Timestamp time.Time        `json:"timestamp"`

	// Processing metadata
	Metadata DecisionMetadata `json:"metadata"`
}

// DecisionMetadata contains processing information.
type DecisionMetadata struct {
	TraceID           string `json:"traceId"`
	FactsMs           int64  `json:"factsMs"`
	EvaluateMs        int64  `json:"evaluateMs"`
	TotalMs           int64  `json:"totalMs"`
	TriggersEvaluated int    `json:"triggersEvaluated"`
	EngineVersion     string `json:"engineVersion"`
}

// Decision status constants
const (
	StatusEscalate = "ESCALATE"
	StatusDismiss  = "DISMISS"
)

// DecisionResponse is the API response for a case evaluation.
type DecisionResponse struct {
	DecisionID     string           `json:"decisionId"`
	CaseID         string           `json:"caseId,omitempty"`
	Status         string           `json:"status"`
	Recommendation string           `json:"recommendation"`
	Summary        string           `json:"summary"`
	MetCount       int              `json:"metCount"`
	TotalCount     int              `json:"totalCount"`
	Threshold      int              `json:"minRegularTriggersToEscalate"`
	Reasons        []string         `json:"reasons,omitempty"`
	Outcomes       []TriggerOutcome `json:"outcomes"`
	Metadata       DecisionMetadata `json:"metadata"`
}

// ToResponse converts a Decision to an API response.
func (d *Decision) ToResponse() *DecisionResponse {
	return &DecisionResponse{
		DecisionID:     d.ID,
		CaseID:         d.CaseID,
		Status:         d.Status,
		Recommendation: d.Result.Recommendation(),
		Summary:        d.Result.Summary(),
		MetCount:       d.Result.MetCount,
		TotalCount:     d.Result.TotalCount,
		Threshold:      d.Result.MinRegularTriggersToEscalate,
		Reasons:        d.Reasons,
		Outcomes:       d.Result.Outcomes,
		Metadata:       d.Metadata,
	}
}
