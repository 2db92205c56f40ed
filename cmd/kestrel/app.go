package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fixtures"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/tadp"
)

// app is the wired set of components shared by the commands.
type app struct {
	cfg      *domain.Config
	logger   *slog.Logger
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	metrics  *metrics.Recorder
	policy   *policy.Store
	pipeline *tadp.Pipeline
	actions  *tadp.Actions
}

// newApp loads the configuration and initializes every component.
// Logs are written to logOut.
func newApp(ctx context.Context, opts *options, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(opts.profile, opts.configPath)
	if err != nil {
		return nil, err
	}

	logger := config.NewLogger(cfg.Logging, logOut)
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		"profile", opts.profile,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"policy_backend", cfg.Policy.Backend,
	)

	a := &app{cfg: cfg, logger: logger}

	a.repo, err = repository.New(cfg.Repository)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}
	logger.Info("repository initialized", "driver", cfg.Repository.Driver)

	a.cache, err = cache.New(cfg.Cache)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	logger.Info("cache initialized", "type", cfg.Cache.Type)

	a.bus, err = bus.New(cfg.EventBus, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize event bus: %w", err)
	}
	logger.Info("event bus initialized", "type", cfg.EventBus.Type)

	a.metrics, err = metrics.New(nil)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	evaluator, err := rules.NewEvaluator()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize evaluator: %w", err)
	}

	a.policy = policy.NewStore(policyBackend(cfg.Policy, a.repo, a.cache), cfg.Policy.Key, logger)

	a.pipeline = tadp.NewPipeline(tadp.PipelineConfig{
		Repo:      a.repo,
		Cache:     a.cache,
		Policy:    a.policy,
		Processor: tadp.NewProcessor(evaluator),
		Metrics:   a.metrics,
		FactsTTL:  cfg.Cache.FactsTTL,
		Logger:    logger,
	})
	a.actions = tadp.NewActions(a.repo, a.bus, logger)

	if cfg.Fixtures {
		if _, err := fixtures.Seed(ctx, a.repo, logger); err != nil {
			a.close()
			return nil, err
		}
	}

	return a, nil
}

// policyBackend selects where the policy document lives.
func policyBackend(cfg domain.PolicyStoreConfig, repo domain.Repository, c domain.Cache) domain.BlobStore {
	switch cfg.Backend {
	case "cache":
		return cache.NewBlobStore(c)
	case "none":
		return nil
	default:
		return repo
	}
}

func (a *app) close() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.logger.Error("failed to close event bus", "error", err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close cache", "error", err)
		}
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.logger.Error("failed to close repository", "error", err)
		}
	}
}
