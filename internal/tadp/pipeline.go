package tadp

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/facts"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/policy"
)

// Pipeline loads a case, derives its facts, evaluates it against the stored
// policy and records the decision.
type Pipeline struct {
	repo      domain.Repository
	cache     domain.Cache
	policy    *policy.Store
	processor *Processor
	metrics   *metrics.Recorder
	factsTTL  time.Duration
	logger    *slog.Logger
}

// PipelineConfig wires a Pipeline. Cache and Metrics may be nil.
type PipelineConfig struct {
	Repo      domain.Repository
	Cache     domain.Cache
	Policy    *policy.Store
	Processor *Processor
	Metrics   *metrics.Recorder
	FactsTTL  time.Duration
	Logger    *slog.Logger
}

// NewPipeline creates a case evaluation pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		repo:      cfg.Repo,
		cache:     cfg.Cache,
		policy:    cfg.Policy,
		processor: cfg.Processor,
		metrics:   cfg.Metrics,
		factsTTL:  cfg.FactsTTL,
		logger:    cfg.Logger,
	}
}

// CaseEvaluation is everything produced by evaluating one case.
type CaseEvaluation struct {
	Case     *domain.Case
	Facts    domain.FactSet
	Policy   domain.PolicyConfig
	Decision *domain.Decision
}

// Policy returns the current policy configuration.
func (p *Pipeline) Policy(ctx context.Context) domain.PolicyConfig {
	return p.policy.Load(ctx)
}

// Facts returns the fact set of c, from the cache when a fresh entry exists.
func (p *Pipeline) Facts(ctx context.Context, c *domain.Case) domain.FactSet {
	key := factsCacheID(c)

	if p.cache != nil {
		fs, err := p.cache.GetFacts(ctx, key)
		if err != nil {
			p.logger.Warn("failed to read cached facts", "case_id", c.ID, "error", err)
		} else if fs != nil {
			return fs
		}
	}

	fs := facts.Derive(c)

	if p.cache != nil {
		if err := p.cache.SetFacts(ctx, key, fs, p.factsTTL); err != nil {
			p.logger.Warn("failed to cache facts", "case_id", c.ID, "error", err)
		}
	}
	return fs
}

// CaseFacts loads a case and returns it with its fact set.
func (p *Pipeline) CaseFacts(ctx context.Context, caseID string) (*domain.Case, domain.FactSet, error) {
	c, err := p.repo.GetCase(ctx, caseID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load case %s: %w", caseID, err)
	}
	return c, p.Facts(ctx, c), nil
}

// EvaluateCase evaluates a stored case and saves the resulting decision.
func (p *Pipeline) EvaluateCase(ctx context.Context, caseID, traceID string) (*CaseEvaluation, error) {
	start := time.Now()

	c, err := p.repo.GetCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load case %s: %w", caseID, err)
	}

	fs := p.Facts(ctx, c)
	factsMs := time.Since(start).Milliseconds()
	cfg := p.policy.Load(ctx)

	d := p.processor.Process(ctx, &DecisionInput{
		CaseID:    c.ID,
		TraceID:   traceID,
		Facts:     fs,
		Policy:    cfg,
		StartTime: start,
		FactsMs:   factsMs,
	})

	if err := p.repo.SaveDecision(ctx, d); err != nil {
		p.logger.Error("failed to save decision",
			"case_id", c.ID,
			"decision_id", d.ID,
			"error", err,
		)
	}

	p.metrics.RecordEvaluation(ctx, d.Status, d.Result.MetCount, time.Since(start))

	p.logger.Info("case evaluated",
		"case_id", c.ID,
		"trace_id", traceID,
		"status", d.Status,
		"triggers_met", d.Result.MetCount,
		"triggers_total", d.Result.TotalCount,
		"duration_ms", d.Metadata.TotalMs,
	)

	return &CaseEvaluation{Case: c, Facts: fs, Policy: cfg, Decision: d}, nil
}

// EvaluateFacts evaluates an ad-hoc fact set without persisting anything.
func (p *Pipeline) EvaluateFacts(ctx context.Context, fs domain.FactSet, cfg *domain.PolicyConfig, traceID string) *domain.Decision {
	pc := p.policy.Load(ctx)
	if cfg != nil {
		pc = *cfg
	}
	return p.processor.Process(ctx, &DecisionInput{
		TraceID: traceID,
		Facts:   fs,
		Policy:  pc,
	})
}

// factsCacheID keys cached facts by case version so an edited case is re-derived.
func factsCacheID(c *domain.Case) string {
	return c.ID + "@" + strconv.FormatInt(c.UpdatedAt.UnixNano(), 10)
}
