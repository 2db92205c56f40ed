package policy

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Store loads and saves the policy document under a single key.
// A Store with no backend is valid: Load returns the defaults and Save is a no-op.
type Store struct {
	backend domain.BlobStore
	key     string
	logger  *slog.Logger
}

// NewStore creates a store over backend. An empty key uses domain.DefaultPolicyKey.
func NewStore(backend domain.BlobStore, key string, logger *slog.Logger) *Store {
	if key == "" {
		key = domain.DefaultPolicyKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		key:     key,
		logger:  logger,
	}
}

// Key returns the storage key.
func (s *Store) Key() string {
	return s.key
}

// Load returns the stored policy reconciled against the defaults.
// It never fails: a missing, unreadable or corrupt document yields the defaults.
func (s *Store) Load(ctx context.Context) domain.PolicyConfig {
	if s.backend == nil {
		return Defaults()
	}

	raw, err := s.backend.GetBlob(ctx, s.key)
	if err != nil {
		s.logger.Warn("policy load failed, using defaults", "key", s.key, "error", err)
		return Defaults()
	}
	if raw == nil {
		return Defaults()
	}

	cfg, err := Reconcile(raw, Defaults())
	if err != nil {
		s.logger.Warn("stored policy unreadable, using defaults", "key", s.key, "error", err)
		return Defaults()
	}
	return cfg
}

// Save deduplicates the triggers of cfg by id (first occurrence wins) and
// replaces the stored document with the result. Write failures are logged
// and dropped. Save returns the value it attempted to write.
func (s *Store) Save(ctx context.Context, cfg domain.PolicyConfig) domain.PolicyConfig {
	out := Normalize(cfg)

	if s.backend == nil {
		return out
	}

	data, err := json.Marshal(out)
	if err != nil {
		s.logger.Warn("policy encode failed", "key", s.key, "error", err)
		return out
	}
	if err := s.backend.PutBlob(ctx, s.key, data); err != nil {
		s.logger.Warn("policy save failed", "key", s.key, "error", err)
		return out
	}

	s.logger.Debug("policy saved", "key", s.key, "triggers", len(out.Triggers))
	return out
}

// Normalize prepares a policy for storage: triggers are deduplicated by id
// and a missing comparison operator is written as "=".
func Normalize(cfg domain.PolicyConfig) domain.PolicyConfig {
	out := domain.PolicyConfig{
		MinRegularTriggersToEscalate: cfg.MinRegularTriggersToEscalate,
		Triggers:                     Dedup(cfg.Triggers),
	}
	for i := range out.Triggers {
		out.Triggers[i].ComparisonOperator = out.Triggers[i].ComparisonOperator.OrDefault()
	}
	return out
}
