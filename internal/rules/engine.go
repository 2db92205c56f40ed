// Package rules provides the CEL-Go based trigger evaluator.
package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Evaluator checks a case's facts against the escalation policy.
// Comparison programs are compiled once; Evaluate is pure and safe for
// concurrent use.
type Evaluator struct {
	env      *cel.Env
	programs map[domain.Operator]cel.Program
}

// celOperators maps policy operators to CEL syntax.
var celOperators = map[domain.Operator]string{
	domain.OpGreater:      ">",
	domain.OpGreaterEqual: ">=",
	domain.OpLess:         "<",
	domain.OpLessEqual:    "<=",
	domain.OpEqual:        "==",
}

// factAliases lists the alternative fact keys a trigger may read.
var factAliases = map[string]string{
	"rapid_movement": domain.FactRapidMovementHours,
}

// NewEvaluator creates an evaluator with one compiled program per operator.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("observed", cel.DoubleType),
		cel.Variable("threshold", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Evaluator{
		env:      env,
		programs: make(map[domain.Operator]cel.Program, len(celOperators)),
	}
	for _, op := range domain.Operators {
		prg, err := e.compile("observed " + celOperators[op] + " threshold")
		if err != nil {
			return nil, fmt.Errorf("operator %s: %w", op, err)
		}
		e.programs[op] = prg
	}
	return e, nil
}

func (e *Evaluator) compile(expr string) (cel.Program, error) {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression %q must return bool, got %s", expr, ast.OutputType())
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for %q: %w", expr, err)
	}
	return program, nil
}

// Compare reports whether observed <op> threshold holds.
func (e *Evaluator) Compare(observed float64, op domain.Operator, threshold float64) (bool, error) {
	prg, ok := e.programs[op]
	if !ok {
		return false, fmt.Errorf("unknown operator %q", op)
	}
	out, _, err := prg.Eval(map[string]any{
		"observed":  observed,
		"threshold": threshold,
	})
	if err != nil {
		return false, fmt.Errorf("evaluation error: %w", err)
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("unexpected result type %s", out.Type())
	}
	return bool(b), nil
}

// Evaluate computes per-trigger outcomes and the escalation recommendation.
//
// Only enabled predefined triggers are evaluated. A case escalates when any
// critical trigger is met, or when at least MinRegularTriggersToEscalate
// regular triggers are met. A missing fact never meets its trigger.
func (e *Evaluator) Evaluate(facts domain.FactSet, cfg domain.PolicyConfig) domain.EvaluationResult {
	result := domain.EvaluationResult{
		Outcomes:                     []domain.TriggerOutcome{},
		MinRegularTriggersToEscalate: cfg.MinRegularTriggersToEscalate,
	}

	for _, t := range cfg.Triggers {
		if !t.Evaluable() {
			continue
		}

		outcome := e.evaluateTrigger(t, facts)
		result.Outcomes = append(result.Outcomes, outcome)
		result.TotalCount++

		if !outcome.Met {
			continue
		}
		result.MetCount++
		if t.IsCritical {
			result.AnyCriticalMet = true
		} else {
			result.RegularMetCount++
		}
	}

	result.ShouldEscalate = result.AnyCriticalMet ||
		(result.TotalCount > 0 && result.RegularMetCount >= cfg.MinRegularTriggersToEscalate)

	return result
}

func (e *Evaluator) evaluateTrigger(t domain.Trigger, facts domain.FactSet) domain.TriggerOutcome {
	op := t.ComparisonOperator.OrDefault()
	outcome := domain.TriggerOutcome{
		ID:         t.ID,
		Label:      t.Label,
		Unit:       t.ThresholdUnit,
		Operator:   op,
		Threshold:  t.ThresholdValue,
		IsCritical: t.IsCritical,
	}

	fact, ok := lookup(facts, t.ID)
	if !ok {
		return outcome
	}
	observed := fact
	outcome.Observed = &observed

	if t.ThresholdUnit.IsBoolean() && op == domain.OpEqual {
		outcome.Met = fact.Truth() == (t.ThresholdValue != 0)
	} else {
		met, err := e.Compare(fact.Value(), op, t.ThresholdValue)
		outcome.Met = err == nil && met
	}

	if !outcome.Met {
		return outcome
	}

	outcome.Severity = domain.SeverityModerate
	if t.CriticalThresholdValue != nil && !t.ThresholdUnit.IsBoolean() {
		if strong, err := e.Compare(fact.Value(), op, *t.CriticalThresholdValue); err == nil && strong {
			outcome.Severity = domain.SeverityStrong
		}
	}
	return outcome
}

func lookup(facts domain.FactSet, id string) (domain.Fact, bool) {
	if f, ok := facts[id]; ok {
		return f, true
	}
	if alias, ok := factAliases[id]; ok {
		f, ok := facts[alias]
		return f, ok
	}
	return domain.Fact{}, false
}
