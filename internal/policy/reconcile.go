package policy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrMalformed is returned by Reconcile when the stored document cannot be read.
var ErrMalformed = errors.New("malformed policy document")

// stored mirrors the persisted document loosely so that each field can be
// accepted or rejected on its own.
type stored struct {
	Triggers                     json.RawMessage `json:"triggers"`
	MinRegularTriggersToEscalate json.RawMessage `json:"minRegularTriggersToEscalate"`
}

// Reconcile merges a stored policy document with the current defaults.
//
//  1. minRegularTriggersToEscalate is taken from raw when it is a number,
//     truncated and clamped to at least 1; otherwise the default is used.
//  2. triggers are taken from raw when they are an array; otherwise the
//     default triggers are used.
//  3. A stored trigger without a comparison operator gets the operator of
//     the default trigger with the same id, or "=".
//  4. When the merged list is shorter than the default list, every default
//     trigger whose id is missing is appended. Stored triggers are never
//     modified by this step.
//
// Reconcile is pure; defaults is not mutated.
func Reconcile(raw []byte, defaults domain.PolicyConfig) (domain.PolicyConfig, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return domain.PolicyConfig{}, fmt.Errorf("%w: not a JSON object", ErrMalformed)
	}

	var doc stored
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.PolicyConfig{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	merged := domain.PolicyConfig{
		MinRegularTriggersToEscalate: defaults.MinRegularTriggersToEscalate,
	}

	if isJSONNumber(doc.MinRegularTriggersToEscalate) {
		var n float64
		if err := json.Unmarshal(doc.MinRegularTriggersToEscalate, &n); err != nil {
			return domain.PolicyConfig{}, fmt.Errorf("%w: minRegularTriggersToEscalate: %v", ErrMalformed, err)
		}
		merged.MinRegularTriggersToEscalate = clampMinimum(n)
	}

	if isJSONArray(doc.Triggers) {
		var triggers []domain.Trigger
		if err := json.Unmarshal(doc.Triggers, &triggers); err != nil {
			return domain.PolicyConfig{}, fmt.Errorf("%w: triggers: %v", ErrMalformed, err)
		}
		for i := range triggers {
			if triggers[i].ComparisonOperator == "" {
				triggers[i].ComparisonOperator = defaultOperator(defaults, triggers[i].ID)
			}
		}
		merged.Triggers = triggers
	} else {
		merged.Triggers = defaults.Clone().Triggers
	}

	if merged.Triggers == nil {
		merged.Triggers = []domain.Trigger{}
	}

	if len(merged.Triggers) < len(defaults.Triggers) {
		present := make(map[string]struct{}, len(merged.Triggers))
		for _, t := range merged.Triggers {
			present[t.ID] = struct{}{}
		}
		for _, d := range defaults.Triggers {
			if _, ok := present[d.ID]; !ok {
				merged.Triggers = append(merged.Triggers, d.Clone())
			}
		}
	}

	return merged, nil
}

func defaultOperator(defaults domain.PolicyConfig, id string) domain.Operator {
	if d, ok := defaults.Trigger(id); ok && d.ComparisonOperator != "" {
		return d.ComparisonOperator
	}
	return domain.OpEqual
}

// clampMinimum rounds a stored minimum up so a fractional value never
// loosens the rule.
func clampMinimum(n float64) int {
	if math.IsNaN(n) || n < 1 {
		return 1
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Ceil(n))
}

func isJSONNumber(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	c := raw[0]
	return c == '-' || (c >= '0' && c <= '9')
}

func isJSONArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// Dedup keeps the first trigger of each id, preserving order.
func Dedup(triggers []domain.Trigger) []domain.Trigger {
	seen := make(map[string]struct{}, len(triggers))
	out := make([]domain.Trigger, 0, len(triggers))
	for _, t := range triggers {
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t.Clone())
	}
	return out
}
