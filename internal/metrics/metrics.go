// Package metrics holds the OpenTelemetry instruments recorded by Kestrel.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/opensource-finance/kestrel"

// Recorder records evaluation and case-action measurements.
// A nil Recorder is valid and records nothing.
type Recorder struct {
	evaluations metric.Int64Counter
	triggersMet metric.Int64Histogram
	duration    metric.Float64Histogram
	actions     metric.Int64Counter
	policySaves metric.Int64Counter
}

// New creates a Recorder on mp, or on the global provider when mp is nil.
func New(mp metric.MeterProvider) (*Recorder, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	evaluations, err := meter.Int64Counter("kestrel.evaluations",
		metric.WithDescription("Cases evaluated against the escalation policy"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluations counter: %w", err)
	}

	triggersMet, err := meter.Int64Histogram("kestrel.evaluation.triggers_met",
		metric.WithDescription("Triggers met per evaluation"),
		metric.WithUnit("{trigger}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create triggers histogram: %w", err)
	}

	duration, err := meter.Float64Histogram("kestrel.evaluation.duration",
		metric.WithDescription("Time to derive facts and evaluate a case"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	actions, err := meter.Int64Counter("kestrel.case.actions",
		metric.WithDescription("Analyst escalate and dismiss actions"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create actions counter: %w", err)
	}

	policySaves, err := meter.Int64Counter("kestrel.policy.saves",
		metric.WithDescription("Policy configuration saves"),
		metric.WithUnit("{save}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy saves counter: %w", err)
	}

	return &Recorder{
		evaluations: evaluations,
		triggersMet: triggersMet,
		duration:    duration,
		actions:     actions,
		policySaves: policySaves,
	}, nil
}

// RecordEvaluation records one case evaluation.
func (r *Recorder) RecordEvaluation(ctx context.Context, status string, triggersMet int, elapsed time.Duration) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	r.evaluations.Add(ctx, 1, attrs)
	r.triggersMet.Record(ctx, int64(triggersMet), attrs)
	r.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

// RecordAction records an analyst action on a case.
func (r *Recorder) RecordAction(ctx context.Context, action string) {
	if r == nil {
		return
	}
	r.actions.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// RecordPolicySave records a policy configuration save.
func (r *Recorder) RecordPolicySave(ctx context.Context) {
	if r == nil {
		return
	}
	r.policySaves.Add(ctx, 1)
}
