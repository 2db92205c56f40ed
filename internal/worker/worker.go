// Package worker evaluates cases submitted over the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/tadp"
)

// DefaultConcurrency is the number of cases evaluated at once when no limit is set.
const DefaultConcurrency = 4

var errNoCaseID = errors.New("case message has no case id")

// Worker subscribes to case submissions and evaluation requests. Each
// message is evaluated on its own goroutine, at most Concurrency at a time;
// the bus delivery goroutine blocks while the limit is reached.
type Worker struct {
	bus         domain.EventBus
	pipeline    *tadp.Pipeline
	logger      *slog.Logger
	concurrency int

	evaluated atomic.Int64
	failed    atomic.Int64

	mu       sync.Mutex
	subs     []domain.Subscription
	inflight *errgroup.Group
}

// Option configures a Worker.
type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithConcurrency caps parallel evaluations. Values below one use DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

func New(b domain.EventBus, pipeline *tadp.Pipeline, opts ...Option) *Worker {
	w := &Worker{
		bus:         b,
		pipeline:    pipeline,
		logger:      slog.Default(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "worker")
	return w
}

// Start subscribes to kestrel.case.submitted and kestrel.case.evaluate.
// Starting a running worker is an error.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.inflight != nil {
		return errors.New("worker already started")
	}
	w.inflight = new(errgroup.Group)
	w.inflight.SetLimit(w.concurrency)

	routes := map[string]domain.MessageHandler{
		domain.TopicCaseSubmitted: w.handleSubmitted,
		domain.TopicCaseEvaluate:  w.handleEvaluate,
	}
	for topic, handle := range routes {
		sub, err := w.bus.Subscribe(ctx, topic, w.dispatch(w.inflight, handle))
		if err != nil {
			w.unsubscribeAll()
			w.inflight = nil
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		w.subs = append(w.subs, sub)
	}

	w.logger.Info("worker started", "concurrency", w.concurrency)
	return nil
}

// dispatch runs handle on the in-flight group. Handlers get a context that
// survives Stop so an evaluation already under way is saved.
func (w *Worker) dispatch(g *errgroup.Group, handle domain.MessageHandler) domain.MessageHandler {
	return func(ctx context.Context, msg *domain.Message) error {
		// Holding mu keeps Go from racing the Wait in Stop.
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.inflight != g {
			return nil
		}

		hctx := context.WithoutCancel(ctx)
		g.Go(func() error {
			if err := handle(hctx, msg); err != nil {
				w.failed.Add(1)
				w.logger.Error("case message failed",
					"topic", msg.Topic,
					"message_id", msg.ID,
					"error", err,
				)
				return nil
			}
			w.evaluated.Add(1)
			return nil
		})
		return nil
	}
}

func parseSubmission(msg *domain.Message) (domain.CaseSubmitted, error) {
	var sub domain.CaseSubmitted
	if err := json.Unmarshal(msg.Payload, &sub); err != nil {
		return sub, fmt.Errorf("message %s: %w", msg.ID, err)
	}
	if sub.CaseID == "" {
		return sub, fmt.Errorf("message %s: %w", msg.ID, errNoCaseID)
	}
	if sub.TraceID == "" {
		sub.TraceID = msg.ID
	}
	return sub, nil
}

// handleSubmitted evaluates the case, then publishes the decision and, for an
// escalate recommendation, kestrel.case.escalation_recommended.
func (w *Worker) handleSubmitted(ctx context.Context, msg *domain.Message) error {
	sub, err := parseSubmission(msg)
	if err != nil {
		return err
	}

	ev, err := w.pipeline.EvaluateCase(ctx, sub.CaseID, sub.TraceID)
	if err != nil {
		return fmt.Errorf("case %s: %w", sub.CaseID, err)
	}

	payload, err := json.Marshal(ev.Decision.ToResponse())
	if err != nil {
		return fmt.Errorf("case %s: %w", sub.CaseID, err)
	}

	topics := []string{domain.TopicDecision}
	if tadp.ShouldEscalate(ev.Decision) {
		topics = append(topics, domain.TopicEscalationRecommended)
	}
	for _, topic := range topics {
		if err := w.bus.Publish(ctx, topic, payload); err != nil {
			w.logger.Error("failed to publish",
				"topic", topic,
				"case_id", sub.CaseID,
				"error", err,
			)
		}
	}
	return nil
}

// handleEvaluate answers a Request with the decision, or with {"error": ...}.
func (w *Worker) handleEvaluate(ctx context.Context, msg *domain.Message) error {
	sub, err := parseSubmission(msg)
	if err != nil {
		return w.replyError(ctx, msg, err)
	}

	ev, err := w.pipeline.EvaluateCase(ctx, sub.CaseID, sub.TraceID)
	if err != nil {
		return w.replyError(ctx, msg, fmt.Errorf("case %s: %w", sub.CaseID, err))
	}

	reply, err := json.Marshal(ev.Decision.ToResponse())
	if err != nil {
		return w.replyError(ctx, msg, err)
	}
	return bus.Reply(ctx, w.bus, msg, reply)
}

func (w *Worker) replyError(ctx context.Context, msg *domain.Message, cause error) error {
	reply, _ := json.Marshal(map[string]string{"error": cause.Error()})
	if err := bus.Reply(ctx, w.bus, msg, reply); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// Stop unsubscribes and waits for in-flight evaluations to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	w.unsubscribeAll()
	g := w.inflight
	w.inflight = nil
	w.mu.Unlock()

	if g != nil {
		_ = g.Wait()
	}
	w.logger.Info("worker stopped",
		"evaluated", w.evaluated.Load(),
		"failed", w.failed.Load(),
	)
	return nil
}

func (w *Worker) unsubscribeAll() {
	for _, sub := range w.subs {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Warn("failed to unsubscribe", "topic", sub.Topic(), "error", err)
		}
	}
	w.subs = nil
}

// Stats is a snapshot of worker activity.
type Stats struct {
	Topics      []string `json:"topics"`
	Concurrency int      `json:"concurrency"`
	Evaluated   int64    `json:"evaluated"`
	Failed      int64    `json:"failed"`
}

func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, 0, len(w.subs))
	for _, sub := range w.subs {
		topics = append(topics, sub.Topic())
	}
	return Stats{
		Topics:      topics,
		Concurrency: w.concurrency,
		Evaluated:   w.evaluated.Load(),
		Failed:      w.failed.Load(),
	}
}
