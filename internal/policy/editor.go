package policy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrTriggerNotFound   = errors.New("trigger not found")
	ErrPredefinedTrigger = errors.New("predefined triggers cannot be removed")
	ErrInvalidMinimum    = errors.New("minimum regular triggers must be at least 1")
	ErrInvalidTrigger    = errors.New("invalid trigger")
)

// Defaults for a newly added custom trigger.
const (
	CustomTriggerLabel  = "New custom trigger"
	customTriggerPrefix = "custom_"
)

// AddCustomTrigger appends a new custom trigger and returns the updated
// policy and the trigger. The id is derived from now and is unique within cfg.
func AddCustomTrigger(cfg domain.PolicyConfig, now time.Time) (domain.PolicyConfig, domain.Trigger) {
	out := cfg.Clone()

	existing := make(map[string]struct{}, len(out.Triggers))
	for _, t := range out.Triggers {
		existing[t.ID] = struct{}{}
	}

	ms := now.UnixMilli()
	id := fmt.Sprintf("%s%d", customTriggerPrefix, ms)
	for {
		if _, taken := existing[id]; !taken {
			break
		}
		id = fmt.Sprintf("%s%d_%s", customTriggerPrefix, ms, randomSuffix())
	}

	t := domain.Trigger{
		ID:                 id,
		Label:              CustomTriggerLabel,
		Kind:               domain.TriggerCustom,
		ThresholdValue:     0,
		ThresholdUnit:      domain.UnitPercentage,
		ComparisonOperator: domain.OpGreater,
		Enabled:            true,
	}
	out.Triggers = append(out.Triggers, t)
	return out, t
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

// UpdateTrigger replaces the trigger with the same id as t.
//
// The kind of a trigger never changes. Predefined triggers also keep their
// label, unit and enablement. The critical sub-threshold is editable only on
// predefined hours triggers, and the operator only on non-boolean triggers.
func UpdateTrigger(cfg domain.PolicyConfig, t domain.Trigger) (domain.PolicyConfig, error) {
	idx := -1
	for i, existing := range cfg.Triggers {
		if existing.ID == t.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return cfg, fmt.Errorf("%w: %s", ErrTriggerNotFound, t.ID)
	}

	existing := cfg.Triggers[idx]
	next := t.Clone()
	next.Kind = existing.Kind
	if predefined(existing) {
		next.Kind = domain.TriggerPredefined
	}

	if next.Kind == domain.TriggerPredefined {
		next.Label = existing.Label
		next.ThresholdUnit = existing.ThresholdUnit
		next.Enabled = existing.Enabled
	}

	if next.Label == "" {
		return cfg, fmt.Errorf("%w: label is required", ErrInvalidTrigger)
	}
	if !next.ThresholdUnit.Valid() {
		return cfg, fmt.Errorf("%w: unknown unit %q", ErrInvalidTrigger, next.ThresholdUnit)
	}
	if next.ThresholdValue < 0 {
		return cfg, fmt.Errorf("%w: threshold must not be negative", ErrInvalidTrigger)
	}

	if next.ThresholdUnit.IsBoolean() {
		next.ComparisonOperator = existing.ComparisonOperator.OrDefault()
	} else if next.ComparisonOperator == "" {
		next.ComparisonOperator = existing.ComparisonOperator.OrDefault()
	}
	if !next.ComparisonOperator.Valid() {
		return cfg, fmt.Errorf("%w: unknown operator %q", ErrInvalidTrigger, next.ComparisonOperator)
	}

	if next.Kind != domain.TriggerPredefined || next.ThresholdUnit != domain.UnitHours {
		next.CriticalThresholdValue = existing.Clone().CriticalThresholdValue
	} else if next.CriticalThresholdValue != nil && *next.CriticalThresholdValue < 0 {
		return cfg, fmt.Errorf("%w: critical threshold must not be negative", ErrInvalidTrigger)
	}

	out := cfg.Clone()
	out.Triggers[idx] = next
	return out, nil
}

// RemoveTrigger removes the custom trigger with the given id.
func RemoveTrigger(cfg domain.PolicyConfig, id string) (domain.PolicyConfig, error) {
	t, ok := cfg.Trigger(id)
	if !ok {
		return cfg, fmt.Errorf("%w: %s", ErrTriggerNotFound, id)
	}
	if t.Kind != domain.TriggerCustom || predefined(t) {
		return cfg, fmt.Errorf("%w: %s", ErrPredefinedTrigger, id)
	}

	out := domain.PolicyConfig{
		MinRegularTriggersToEscalate: cfg.MinRegularTriggersToEscalate,
		Triggers:                     make([]domain.Trigger, 0, len(cfg.Triggers)),
	}
	for _, existing := range cfg.Triggers {
		if existing.ID == id {
			continue
		}
		out.Triggers = append(out.Triggers, existing.Clone())
	}
	return out, nil
}

// predefined reports whether t is one of the built-in triggers, whatever kind
// a stored config claims for it.
func predefined(t domain.Trigger) bool {
	return t.Kind == domain.TriggerPredefined || IsPredefinedID(t.ID)
}

// SetMinRegularTriggers sets the N of the N-of-regular rule.
func SetMinRegularTriggers(cfg domain.PolicyConfig, n int) (domain.PolicyConfig, error) {
	if n < 1 {
		return cfg, fmt.Errorf("%w: got %d", ErrInvalidMinimum, n)
	}
	out := cfg.Clone()
	out.MinRegularTriggersToEscalate = n
	return out, nil
}

// RegularTriggerCount counts enabled non-critical triggers, the M of
// "N out of M regular triggers".
func RegularTriggerCount(cfg domain.PolicyConfig) int {
	n := 0
	for _, t := range cfg.Triggers {
		if t.Enabled && !t.IsCritical {
			n++
		}
	}
	return n
}
