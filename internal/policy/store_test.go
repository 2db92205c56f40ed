package policy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/opensource-finance/kestrel/internal/domain"
)

type memBlobs struct {
	data   map[string][]byte
	getErr error
	putErr error
	puts   int
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: make(map[string][]byte)}
}

func (m *memBlobs) GetBlob(ctx context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return bytes.Clone(v), nil
}

func (m *memBlobs) PutBlob(ctx context.Context, key string, value []byte) error {
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	m.data[key] = bytes.Clone(value)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("NoBackend", func(t *testing.T) {
		store := NewStore(nil, "", quietLogger())

		if diff := cmp.Diff(Defaults(), store.Load(ctx)); diff != "" {
			t.Errorf("expected defaults (-want +got):\n%s", diff)
		}

		cfg := Defaults()
		cfg.Triggers = append(cfg.Triggers, cfg.Triggers[0])
		saved := store.Save(ctx, cfg)
		if len(saved.Triggers) != len(Defaults().Triggers) {
			t.Errorf("expected deduplicated result, got %d triggers", len(saved.Triggers))
		}
		if store.Key() != domain.DefaultPolicyKey {
			t.Errorf("expected default key, got %s", store.Key())
		}
	})

	t.Run("MissingKeyReturnsDefaults", func(t *testing.T) {
		store := NewStore(newMemBlobs(), "", quietLogger())

		if diff := cmp.Diff(Defaults(), store.Load(ctx)); diff != "" {
			t.Errorf("expected defaults (-want +got):\n%s", diff)
		}
	})

	t.Run("SaveThenLoad", func(t *testing.T) {
		backend := newMemBlobs()
		store := NewStore(backend, "", quietLogger())

		cfg := Defaults()
		cfg.MinRegularTriggersToEscalate = 2
		cfg.Triggers[0].ThresholdValue = 150
		cfg, custom := AddCustomTrigger(cfg, fixedNow)

		store.Save(ctx, cfg)

		got := store.Load(ctx)
		if diff := cmp.Diff(cfg, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
		if _, ok := got.Trigger(custom.ID); !ok {
			t.Error("custom trigger not persisted")
		}
		if _, ok := backend.data[domain.DefaultPolicyKey]; !ok {
			t.Error("expected document under the policy key")
		}
	})

	t.Run("SaveDedupsFirstWins", func(t *testing.T) {
		store := NewStore(newMemBlobs(), "", quietLogger())

		cfg := Defaults()
		first := cfg.Triggers[0]
		dup := first
		dup.ThresholdValue = 999
		dupRapid := cfg.Triggers[3].Clone()
		dupRapid.ThresholdValue = 1
		cfg.Triggers = append(cfg.Triggers, dup, dupRapid)

		store.Save(ctx, cfg)
		got := store.Load(ctx)

		seen := map[string]int{}
		for _, tr := range got.Triggers {
			seen[tr.ID]++
		}
		for id, n := range seen {
			if n != 1 {
				t.Errorf("id %s appears %d times", id, n)
			}
		}

		baseline, _ := got.Trigger(BaselineDeviation)
		if baseline.ThresholdValue != first.ThresholdValue {
			t.Errorf("expected first occurrence (threshold %v), got %v", first.ThresholdValue, baseline.ThresholdValue)
		}
		rapid, _ := got.Trigger(RapidMovement)
		if rapid.ThresholdValue != 72 {
			t.Errorf("expected first rapid_movement occurrence, got threshold %v", rapid.ThresholdValue)
		}
	})

	t.Run("SaveReplacesDocument", func(t *testing.T) {
		store := NewStore(newMemBlobs(), "", quietLogger())

		cfg := Defaults()
		cfg, custom := AddCustomTrigger(cfg, fixedNow)
		store.Save(ctx, cfg)

		cfg, err := RemoveTrigger(cfg, custom.ID)
		if err != nil {
			t.Fatalf("remove: %v", err)
		}
		store.Save(ctx, cfg)

		if _, ok := store.Load(ctx).Trigger(custom.ID); ok {
			t.Error("removed custom trigger came back after save")
		}
	})

	t.Run("SaveBackfillsOperator", func(t *testing.T) {
		store := NewStore(newMemBlobs(), "", quietLogger())

		cfg := Defaults()
		cfg.Triggers[0].ComparisonOperator = ""

		saved := store.Save(ctx, cfg)
		if saved.Triggers[0].ComparisonOperator != domain.OpEqual {
			t.Errorf("expected '=', got %q", saved.Triggers[0].ComparisonOperator)
		}
		if cfg.Triggers[0].ComparisonOperator != "" {
			t.Error("Save mutated its argument")
		}
	})

	t.Run("CorruptDocumentReturnsDefaults", func(t *testing.T) {
		backend := newMemBlobs()
		backend.data[domain.DefaultPolicyKey] = []byte(`{"triggers": [`)

		var logs strings.Builder
		store := NewStore(backend, "", slog.New(slog.NewTextHandler(&logs, nil)))

		if diff := cmp.Diff(Defaults(), store.Load(ctx)); diff != "" {
			t.Errorf("expected defaults (-want +got):\n%s", diff)
		}
		if !strings.Contains(logs.String(), "level=WARN") {
			t.Errorf("expected a warning, got %q", logs.String())
		}
	})

	t.Run("BackendErrorsAreSwallowed", func(t *testing.T) {
		backend := newMemBlobs()
		backend.getErr = errors.New("disk unavailable")
		backend.putErr = errors.New("disk unavailable")
		store := NewStore(backend, "", quietLogger())

		if diff := cmp.Diff(Defaults(), store.Load(ctx)); diff != "" {
			t.Errorf("expected defaults (-want +got):\n%s", diff)
		}

		cfg := Defaults()
		cfg.MinRegularTriggersToEscalate = 5
		saved := store.Save(ctx, cfg)
		if saved.MinRegularTriggersToEscalate != 5 {
			t.Errorf("expected attempted value returned, got %d", saved.MinRegularTriggersToEscalate)
		}
		if backend.puts != 1 {
			t.Errorf("expected one write attempt, got %d", backend.puts)
		}
	})

	t.Run("CustomKey", func(t *testing.T) {
		backend := newMemBlobs()
		store := NewStore(backend, "policy-staging", quietLogger())
		store.Save(ctx, Defaults())

		if _, ok := backend.data["policy-staging"]; !ok {
			t.Error("expected document under custom key")
		}
	})
}
