package tadp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/facts"
)

var (
	ErrAlreadyEscalated = errors.New("case already escalated")
	ErrAlreadyDecided   = errors.New("case already decided")
	ErrRationaleMissing = errors.New("escalation rationale is required")
)

// Actions applies analyst decisions to cases.
type Actions struct {
	repo   domain.Repository
	bus    domain.EventBus
	logger *slog.Logger
	now    func() time.Time
}

// NewActions creates an action handler. bus may be nil.
func NewActions(repo domain.Repository, bus domain.EventBus, logger *slog.Logger) *Actions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Actions{
		repo:   repo,
		bus:    bus,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// EscalateInput is an analyst's escalation of a case.
type EscalateInput struct {
	CaseID    string
	Analyst   string
	Rationale string
	Result    domain.EvaluationResult
	Facts     domain.FactSet
}

// Escalate locks an escalation record for the case and moves it to
// Under Investigation. A case can be escalated once.
func (a *Actions) Escalate(ctx context.Context, in EscalateInput) (*domain.EscalationRecord, error) {
	if strings.TrimSpace(in.Rationale) == "" {
		return nil, ErrRationaleMissing
	}

	c, err := a.repo.GetCase(ctx, in.CaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load case: %w", err)
	}

	existing, err := a.repo.GetEscalation(ctx, in.CaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load escalation: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyEscalated, in.CaseID)
	}
	if c.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyDecided, in.CaseID, c.Status)
	}

	now := a.now()
	rec := BuildEscalation(c, in.Result, in.Facts, in.Analyst, in.Rationale, now)

	note := fmt.Sprintf("%d/%d policy triggers met. Case moved to Investigation.", rec.TriggersMet, rec.TriggersTotal)
	if _, err := a.transition(ctx, c, domain.CaseUnderInvestigation, domain.ActionEscalated, in.Analyst, note, now, rec); err != nil {
		return nil, err
	}

	a.publish(ctx, domain.TopicCaseEscalated, rec)
	a.logger.Info("case escalated",
		"case_id", c.ID,
		"analyst", in.Analyst,
		"triggers_met", rec.TriggersMet,
		"triggers_total", rec.TriggersTotal,
	)
	return rec, nil
}

// Dismiss closes the case.
func (a *Actions) Dismiss(ctx context.Context, caseID, analyst, note string) (*domain.CaseTransition, error) {
	c, err := a.repo.GetCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load case: %w", err)
	}

	existing, err := a.repo.GetEscalation(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load escalation: %w", err)
	}
	if existing != nil || c.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyDecided, caseID)
	}

	t, err := a.transition(ctx, c, domain.CaseClosed, domain.ActionDismissed, analyst, note, a.now(), nil)
	if err != nil {
		return nil, err
	}
	a.publish(ctx, domain.TopicCaseDismissed, t)
	a.logger.Info("case dismissed", "case_id", caseID, "analyst", analyst)
	return t, nil
}

// transition moves c to status to. rec, when set, is stored in the same
// write so a failed move leaves no escalation behind.
func (a *Actions) transition(ctx context.Context, c *domain.Case, to domain.CaseStatus, action, analyst, note string, now time.Time, rec *domain.EscalationRecord) (*domain.CaseTransition, error) {
	t := &domain.CaseTransition{
		CaseID:    c.ID,
		From:      c.Status,
		To:        to,
		Action:    action,
		Analyst:   analyst,
		Note:      note,
		Timestamp: now,
	}
	if err := a.repo.RecordTransition(ctx, t, rec); err != nil {
		return nil, fmt.Errorf("failed to record transition: %w", err)
	}
	c.Status = to
	return t, nil
}

func (a *Actions) publish(ctx context.Context, topic string, v any) {
	if a.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		a.logger.Error("failed to encode event", "topic", topic, "error", err)
		return
	}
	if err := a.bus.Publish(ctx, topic, payload); err != nil {
		a.logger.Error("failed to publish event", "topic", topic, "error", err)
	}
}

// BuildEscalation assembles the locked escalation record.
func BuildEscalation(c *domain.Case, result domain.EvaluationResult, fs domain.FactSet, analyst, rationale string, now time.Time) *domain.EscalationRecord {
	rec := &domain.EscalationRecord{
		CaseID:          c.ID,
		Rationale:       rationale,
		Analyst:         analyst,
		Timestamp:       now,
		TriggersMet:     result.MetCount,
		TriggersTotal:   result.TotalCount,
		Threshold:       result.MinRegularTriggersToEscalate,
		DeviationPct:    facts.BaselineDeviationPct(c.Amount, c.Profile.AvgOutbound90d),
		TriggerSnapshot: Snapshot(result),
	}
	if f, ok := fs[domain.FactRapidMovementHours]; ok {
		hours := f.Value()
		rec.TimeGapHours = &hours
	}
	return rec
}

// DefaultRationale pre-fills the escalation rationale for a case.
func DefaultRationale(c *domain.Case, result domain.EvaluationResult) string {
	var b strings.Builder
	b.WriteString("Escalation Rationale:\n\n")
	if result.ShouldEscalate {
		b.WriteString("This alert meets internal AML escalation criteria.\n\n")
	} else {
		b.WriteString("This alert does not meet internal AML escalation criteria; escalation is an analyst override.\n\n")
	}
	fmt.Fprintf(&b, "Triggers met: %d of %d (threshold: %d).\n", result.MetCount, result.TotalCount, result.MinRegularTriggersToEscalate)

	reasons := Reasons(result)
	if len(reasons) > 0 {
		b.WriteString("\nKey escalation drivers:\n")
		for _, r := range reasons {
			fmt.Fprintf(&b, "• %s\n", r)
		}
	}

	fmt.Fprintf(&b, "\nOutbound %s of %s to %s.", strings.ToLower(c.Type), formatAmount(c.Amount, c.Currency), c.CounterpartyCountry)
	if dev := facts.BaselineDeviationPct(c.Amount, c.Profile.AvgOutbound90d); dev != 0 {
		fmt.Fprintf(&b, " %s%% deviation from 90-day outbound baseline.", formatNumber(dev))
	}
	b.WriteString("\n\nThe activity is inconsistent with the customer's historical behavior and declared business profile.")
	b.WriteString(" Escalation to Investigation is required under internal AML policy.")
	return b.String()
}

func formatAmount(v float64, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	return fmt.Sprintf("%s %.2f", currency, v)
}
