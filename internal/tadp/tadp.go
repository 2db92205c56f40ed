// Package tadp implements the Triage Aggregated Decision Processor.
// TADP turns a trigger evaluation into a recorded decision and carries out
// the analyst's escalate or dismiss action on a case.
package tadp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// EngineVersion is stamped on every decision.
const EngineVersion = "kestrel-1.0"

// Processor evaluates a fact set against a policy and produces a decision.
type Processor struct {
	evaluator *rules.Evaluator
}

// NewProcessor creates a new TADP processor.
func NewProcessor(evaluator *rules.Evaluator) *Processor {
	return &Processor{evaluator: evaluator}
}

// DecisionInput contains all data needed for a decision.
type DecisionInput struct {
	CaseID    string
	TraceID   string
	Facts     domain.FactSet
	Policy    domain.PolicyConfig
	StartTime time.Time

	// FactsMs is the time spent deriving Facts, if known.
	FactsMs int64
}

// Process evaluates the input and produces a decision.
func (p *Processor) Process(ctx context.Context, input *DecisionInput) *domain.Decision {
	start := time.Now()
	if input.StartTime.IsZero() {
		input.StartTime = start
	}

	result := p.evaluator.Evaluate(input.Facts, input.Policy)

	d := &domain.Decision{
		ID:        uuid.New().String(),
		CaseID:    input.CaseID,
		Status:    domain.StatusDismiss,
		Result:    result,
		Reasons:   Reasons(result),
		Timestamp: time.Now().UTC(),
	}
	if result.ShouldEscalate {
		d.Status = domain.StatusEscalate
	}

	d.Metadata = domain.DecisionMetadata{
		TraceID:           input.TraceID,
		FactsMs:           input.FactsMs,
		EvaluateMs:        time.Since(start).Milliseconds(),
		TotalMs:           time.Since(input.StartTime).Milliseconds(),
		TriggersEvaluated: result.TotalCount,
		EngineVersion:     EngineVersion,
	}

	return d
}

// ShouldEscalate returns true if the decision recommends escalation.
func ShouldEscalate(d *domain.Decision) bool {
	return d.Status == domain.StatusEscalate
}

// Reasons lists the checklist labels of met triggers, critical first.
func Reasons(result domain.EvaluationResult) []string {
	var critical, regular []string
	for _, o := range result.Outcomes {
		if !o.Met {
			continue
		}
		if o.IsCritical {
			critical = append(critical, ReasonLabel(o))
		} else {
			regular = append(regular, ReasonLabel(o))
		}
	}
	return append(critical, regular...)
}

// ReasonLabel renders one outcome as a checklist line. Hours triggers show
// the observed hours and their tier.
func ReasonLabel(o domain.TriggerOutcome) string {
	if o.Unit != domain.UnitHours || o.Observed == nil {
		return o.Label
	}
	hours := formatNumber(o.Observed.Value())
	switch o.Severity {
	case domain.SeverityStrong:
		return fmt.Sprintf("Strong %s (%sh)", lowerFirst(trimUnit(o.Label)), hours)
	case domain.SeverityModerate:
		return fmt.Sprintf("Moderate %s (%sh)", lowerFirst(trimUnit(o.Label)), hours)
	default:
		return fmt.Sprintf("%s (%sh) – not triggered", trimUnit(o.Label), hours)
	}
}

// Snapshot captures the checklist at a point in time.
func Snapshot(result domain.EvaluationResult) []domain.TriggerSnapshot {
	out := make([]domain.TriggerSnapshot, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		out = append(out, domain.TriggerSnapshot{Label: ReasonLabel(o), Met: o.Met})
	}
	return out
}

func trimUnit(label string) string {
	return strings.TrimSpace(strings.TrimSuffix(label, "(hours)"))
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func formatNumber(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
