package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/tadp"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T) (*bus.ChannelBus, domain.Repository, *Worker) {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	evaluator, err := rules.NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}

	pipeline := tadp.NewPipeline(tadp.PipelineConfig{
		Repo:      repo,
		Policy:    policy.NewStore(repo, "", quietLogger()),
		Processor: tadp.NewProcessor(evaluator),
		Logger:    quietLogger(),
	})

	eventBus := bus.NewChannelBus(100, nil)
	t.Cleanup(func() { eventBus.Close() })

	return eventBus, repo, New(eventBus, pipeline, WithLogger(quietLogger()), WithConcurrency(2))
}

func saveCase(t *testing.T, repo domain.Repository, id string, sanctions bool) {
	t.Helper()
	c := &domain.Case{
		ID:     id,
		Title:  "Test case",
		Status: domain.CaseOpen,
		Profile: domain.CaseProfile{
			DocumentationAttached: true,
			SanctionsMatch:        sanctions,
		},
	}
	if err := repo.SaveCase(context.Background(), c); err != nil {
		t.Fatalf("SaveCase failed: %v", err)
	}
}

func submit(t *testing.T, b domain.EventBus, id string) {
	t.Helper()
	payload, _ := json.Marshal(domain.CaseSubmitted{CaseID: id, TraceID: "trace-" + id})
	if err := b.Publish(context.Background(), domain.TopicCaseSubmitted, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
}

func TestWorker(t *testing.T) {
	t.Run("StartAndStop", func(t *testing.T) {
		_, _, worker := setup(t)

		if err := worker.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := worker.Stats()
		if len(stats.Topics) != 2 {
			t.Errorf("expected 2 subscriptions, got %v", stats.Topics)
		}
		if stats.Concurrency != 2 {
			t.Errorf("expected concurrency 2, got %d", stats.Concurrency)
		}
		if err := worker.Start(context.Background()); err == nil {
			t.Error("expected second Start to fail")
		}

		if err := worker.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = worker.Stats()
		if len(stats.Topics) != 0 {
			t.Errorf("expected no subscriptions after stop, got %v", stats.Topics)
		}

		if err := worker.Start(context.Background()); err != nil {
			t.Errorf("restart failed: %v", err)
		}
		worker.Stop()
	})

	t.Run("EvaluatesSubmittedCase", func(t *testing.T) {
		eventBus, repo, worker := setup(t)
		ctx := context.Background()
		saveCase(t, repo, "ALRT-S1", true)

		decisions := make(chan *domain.Message, 1)
		escalations := make(chan *domain.Message, 1)
		_, _ = eventBus.Subscribe(ctx, domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
			decisions <- msg
			return nil
		})
		_, _ = eventBus.Subscribe(ctx, domain.TopicEscalationRecommended, func(ctx context.Context, msg *domain.Message) error {
			escalations <- msg
			return nil
		})

		if err := worker.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer worker.Stop()

		submit(t, eventBus, "ALRT-S1")

		select {
		case msg := <-decisions:
			var resp domain.DecisionResponse
			if err := json.Unmarshal(msg.Payload, &resp); err != nil {
				t.Fatalf("bad decision payload: %v", err)
			}
			if resp.CaseID != "ALRT-S1" || resp.Status != domain.StatusEscalate {
				t.Errorf("unexpected decision %+v", resp)
			}
			if resp.Metadata.TraceID != "trace-ALRT-S1" {
				t.Errorf("expected trace ID to propagate, got %q", resp.Metadata.TraceID)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for decision")
		}

		select {
		case <-escalations:
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for escalation recommendation")
		}

		saved, err := repo.ListDecisions(ctx, "ALRT-S1")
		if err != nil {
			t.Fatalf("ListDecisions failed: %v", err)
		}
		if len(saved) != 1 {
			t.Errorf("expected 1 saved decision, got %d", len(saved))
		}
	})

	t.Run("DismissedCaseIsNotRecommended", func(t *testing.T) {
		eventBus, repo, worker := setup(t)
		ctx := context.Background()
		saveCase(t, repo, "ALRT-Q1", false)

		decisions := make(chan *domain.Message, 1)
		escalations := make(chan *domain.Message, 1)
		_, _ = eventBus.Subscribe(ctx, domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
			decisions <- msg
			return nil
		})
		_, _ = eventBus.Subscribe(ctx, domain.TopicEscalationRecommended, func(ctx context.Context, msg *domain.Message) error {
			escalations <- msg
			return nil
		})

		if err := worker.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer worker.Stop()

		submit(t, eventBus, "ALRT-Q1")

		select {
		case msg := <-decisions:
			var resp domain.DecisionResponse
			_ = json.Unmarshal(msg.Payload, &resp)
			if resp.Status != domain.StatusDismiss {
				t.Errorf("expected DISMISS, got %s", resp.Status)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for decision")
		}

		select {
		case <-escalations:
			t.Error("unexpected escalation recommendation")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("RequestReply", func(t *testing.T) {
		eventBus, repo, worker := setup(t)
		saveCase(t, repo, "ALRT-R1", true)

		if err := worker.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer worker.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		payload, _ := json.Marshal(domain.CaseSubmitted{CaseID: "ALRT-R1"})
		reply, err := eventBus.Request(ctx, domain.TopicCaseEvaluate, payload)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}

		var resp domain.DecisionResponse
		if err := json.Unmarshal(reply, &resp); err != nil {
			t.Fatalf("bad reply: %v", err)
		}
		if resp.Recommendation != domain.RecommendEscalate {
			t.Errorf("expected escalate, got %s", resp.Recommendation)
		}
	})

	t.Run("MalformedMessage", func(t *testing.T) {
		_, _, worker := setup(t)

		err := worker.handleSubmitted(context.Background(), &domain.Message{ID: "m-1", Payload: []byte("not json")})
		if err == nil {
			t.Error("expected error for malformed payload")
		}

		err = worker.handleSubmitted(context.Background(), &domain.Message{ID: "m-2", Payload: []byte(`{}`)})
		if !errors.Is(err, errNoCaseID) {
			t.Errorf("expected errNoCaseID, got %v", err)
		}
	})

	t.Run("RequestUnknownCase", func(t *testing.T) {
		eventBus, _, worker := setup(t)
		if err := worker.Start(context.Background()); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer worker.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		payload, _ := json.Marshal(domain.CaseSubmitted{CaseID: "ALRT-MISSING"})
		reply, err := eventBus.Request(ctx, domain.TopicCaseEvaluate, payload)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}

		var resp map[string]string
		if err := json.Unmarshal(reply, &resp); err != nil {
			t.Fatalf("bad reply: %v", err)
		}
		if !strings.Contains(resp["error"], "ALRT-MISSING") {
			t.Errorf("expected error naming the case, got %v", resp)
		}
	})

	t.Run("CountsOutcomes", func(t *testing.T) {
		eventBus, repo, worker := setup(t)
		ctx := context.Background()
		for _, id := range []string{"ALRT-C1", "ALRT-C2", "ALRT-C3"} {
			saveCase(t, repo, id, false)
		}

		decisions := make(chan *domain.Message, 3)
		_, _ = eventBus.Subscribe(ctx, domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
			decisions <- msg
			return nil
		})

		if err := worker.Start(ctx); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		for _, id := range []string{"ALRT-C1", "ALRT-C2", "ALRT-C3", "ALRT-NONE"} {
			submit(t, eventBus, id)
		}
		for i := 0; i < 3; i++ {
			select {
			case <-decisions:
			case <-time.After(2 * time.Second):
				t.Fatal("timeout waiting for decisions")
			}
		}

		deadline := time.Now().Add(2 * time.Second)
		for worker.Stats().Failed == 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		worker.Stop()

		stats := worker.Stats()
		if stats.Evaluated != 3 {
			t.Errorf("expected 3 evaluated, got %d", stats.Evaluated)
		}
		if stats.Failed != 1 {
			t.Errorf("expected 1 failed, got %d", stats.Failed)
		}
	})
}
