package domain

// TriggerKind distinguishes code-defined triggers from analyst-created ones.
type TriggerKind string

const (
	// TriggerPredefined triggers are wired to a case fact and are evaluated.
	TriggerPredefined TriggerKind = "predefined"

	// TriggerCustom triggers are stored for future use and never evaluated.
	TriggerCustom TriggerKind = "custom"
)

// Valid reports whether k is a known trigger kind.
func (k TriggerKind) Valid() bool {
	return k == TriggerPredefined || k == TriggerCustom
}

// ThresholdUnit describes how a threshold is displayed and whether it is numeric.
type ThresholdUnit string

const (
	UnitPercentage ThresholdUnit = "percentage"
	UnitAmount     ThresholdUnit = "amount"
	UnitHours      ThresholdUnit = "hours"
	UnitCount      ThresholdUnit = "count"
	UnitMultiplier ThresholdUnit = "multiplier"
	UnitPercentile ThresholdUnit = "percentile"
	UnitBoolean    ThresholdUnit = "boolean"
)

// Units lists every threshold unit in display order.
var Units = []ThresholdUnit{
	UnitPercentage, UnitAmount, UnitHours, UnitCount, UnitMultiplier, UnitPercentile, UnitBoolean,
}

// IsBoolean reports whether the threshold is a truth-value polarity flag.
func (u ThresholdUnit) IsBoolean() bool {
	return u == UnitBoolean
}

// Valid reports whether u is a known unit.
func (u ThresholdUnit) Valid() bool {
	for _, known := range Units {
		if u == known {
			return true
		}
	}
	return false
}

// Operator is the comparison applied as: observed <op> threshold.
type Operator string

const (
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "="
)

// Operators lists every comparison operator.
var Operators = []Operator{OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpEqual}

// Valid reports whether o is one of the five comparison operators.
func (o Operator) Valid() bool {
	for _, known := range Operators {
		if o == known {
			return true
		}
	}
	return false
}

// OrDefault returns o, or "=" when o is empty.
func (o Operator) OrDefault() Operator {
	if o == "" {
		return OpEqual
	}
	return o
}

// Trigger is a single escalation rule.
// JSON field names match the stored policy document.
type Trigger struct {
	ID    string      `json:"id" validate:"required"`
	Label string      `json:"label" validate:"required"`
	Kind  TriggerKind `json:"type" validate:"required,trigger_kind"`

	// ThresholdValue is compared against the observed fact. For boolean
	// triggers 1 requires true and 0 requires false.
	ThresholdValue float64       `json:"thresholdValue"`
	ThresholdUnit  ThresholdUnit `json:"thresholdUnit" validate:"required,trigger_unit"`

	// ComparisonOperator may be empty in documents written before the field existed.
	ComparisonOperator Operator `json:"comparisonOperator,omitempty" validate:"omitempty,trigger_operator"`

	// CriticalThresholdValue is a display-only "strong" tier.
	CriticalThresholdValue *float64 `json:"criticalThresholdValue"`

	// IsCritical forces escalation when the trigger is met.
	IsCritical bool `json:"isCritical"`
	Enabled    bool `json:"enabled"`
}

// Evaluable reports whether the trigger takes part in evaluation.
func (t Trigger) Evaluable() bool {
	return t.Enabled && t.Kind == TriggerPredefined
}

// Clone returns a copy that shares no memory with t.
func (t Trigger) Clone() Trigger {
	if t.CriticalThresholdValue != nil {
		v := *t.CriticalThresholdValue
		t.CriticalThresholdValue = &v
	}
	return t
}

// PolicyConfig is the full escalation policy.
type PolicyConfig struct {
	Triggers []Trigger `json:"triggers" validate:"dive"`

	// MinRegularTriggersToEscalate is the number of met non-critical triggers
	// that escalates a case when no critical trigger is met.
	MinRegularTriggersToEscalate int `json:"minRegularTriggersToEscalate" validate:"min=1"`
}

// Clone returns a deep copy of the policy.
func (c PolicyConfig) Clone() PolicyConfig {
	out := PolicyConfig{
		MinRegularTriggersToEscalate: c.MinRegularTriggersToEscalate,
	}
	if c.Triggers != nil {
		out.Triggers = make([]Trigger, len(c.Triggers))
		for i, t := range c.Triggers {
			out.Triggers[i] = t.Clone()
		}
	}
	return out
}

// Trigger returns the trigger with the given id.
func (c PolicyConfig) Trigger(id string) (Trigger, bool) {
	for _, t := range c.Triggers {
		if t.ID == id {
			return t, true
		}
	}
	return Trigger{}, false
}

// Float returns a pointer to v, for CriticalThresholdValue literals.
func Float(v float64) *float64 {
	return &v
}
