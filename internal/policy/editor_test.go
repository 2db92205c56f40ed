package policy

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var fixedNow = time.UnixMilli(1733140800000)

func TestAddCustomTrigger(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		base := Defaults()
		cfg, tr := AddCustomTrigger(base, fixedNow)

		if tr.ID != "custom_1733140800000" {
			t.Errorf("unexpected id %s", tr.ID)
		}
		if tr.Label != CustomTriggerLabel || tr.Kind != domain.TriggerCustom {
			t.Errorf("unexpected trigger %+v", tr)
		}
		if tr.ThresholdUnit != domain.UnitPercentage || tr.ComparisonOperator != domain.OpGreater || tr.ThresholdValue != 0 {
			t.Errorf("unexpected threshold settings %+v", tr)
		}
		if !tr.Enabled || tr.IsCritical || tr.CriticalThresholdValue != nil {
			t.Errorf("unexpected flags %+v", tr)
		}
		if len(cfg.Triggers) != len(base.Triggers)+1 {
			t.Fatalf("expected %d triggers, got %d", len(base.Triggers)+1, len(cfg.Triggers))
		}
		if len(base.Triggers) != len(Defaults().Triggers) {
			t.Error("input config was mutated")
		}
	})

	t.Run("CollisionGetsSuffix", func(t *testing.T) {
		cfg, first := AddCustomTrigger(Defaults(), fixedNow)
		cfg, second := AddCustomTrigger(cfg, fixedNow)
		cfg, third := AddCustomTrigger(cfg, fixedNow)

		pattern := regexp.MustCompile(`^custom_1733140800000_[0-9a-f]{6}$`)
		if !pattern.MatchString(second.ID) || !pattern.MatchString(third.ID) {
			t.Errorf("unexpected collision ids %s, %s", second.ID, third.ID)
		}

		seen := map[string]bool{}
		for _, tr := range cfg.Triggers {
			if seen[tr.ID] {
				t.Errorf("duplicate id %s", tr.ID)
			}
			seen[tr.ID] = true
		}
		if !seen[first.ID] {
			t.Error("first custom trigger lost")
		}
	})
}

func TestUpdateTrigger(t *testing.T) {
	t.Run("PredefinedKeepsIdentity", func(t *testing.T) {
		cfg := Defaults()
		edit := domain.Trigger{
			ID:                 BaselineDeviation,
			Label:              "Renamed",
			Kind:               domain.TriggerCustom,
			ThresholdValue:     200,
			ThresholdUnit:      domain.UnitAmount,
			ComparisonOperator: domain.OpGreaterEqual,
			IsCritical:         true,
			Enabled:            false,
		}

		out, err := UpdateTrigger(cfg, edit)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, _ := out.Trigger(BaselineDeviation)
		if got.Label != "Baseline deviation" || got.Kind != domain.TriggerPredefined || got.ThresholdUnit != domain.UnitPercentage {
			t.Errorf("predefined identity changed: %+v", got)
		}
		if !got.Enabled {
			t.Error("predefined triggers cannot be disabled from the editor")
		}
		if got.ThresholdValue != 200 || got.ComparisonOperator != domain.OpGreaterEqual || !got.IsCritical {
			t.Errorf("editable fields not applied: %+v", got)
		}

		orig, _ := cfg.Trigger(BaselineDeviation)
		if orig.ThresholdValue != 100 {
			t.Error("input config was mutated")
		}
	})

	t.Run("BooleanKeepsOperator", func(t *testing.T) {
		edit, _ := Defaults().Trigger(FirstTimeBeneficiary)
		edit.ComparisonOperator = domain.OpLess
		edit.ThresholdValue = 0

		out, err := UpdateTrigger(Defaults(), edit)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, _ := out.Trigger(FirstTimeBeneficiary)
		if got.ComparisonOperator != domain.OpEqual || got.ThresholdValue != 0 {
			t.Errorf("unexpected boolean trigger %+v", got)
		}
	})

	t.Run("CriticalSubThresholdOnlyOnHours", func(t *testing.T) {
		rapid, _ := Defaults().Trigger(RapidMovement)
		rapid.CriticalThresholdValue = domain.Float(12)
		out, err := UpdateTrigger(Defaults(), rapid)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, _ := out.Trigger(RapidMovement)
		if *got.CriticalThresholdValue != 12 {
			t.Errorf("expected 12, got %v", *got.CriticalThresholdValue)
		}

		rapid.CriticalThresholdValue = nil
		out, _ = UpdateTrigger(Defaults(), rapid)
		got, _ = out.Trigger(RapidMovement)
		if got.CriticalThresholdValue != nil {
			t.Error("expected critical sub-threshold cleared")
		}

		velocity, _ := Defaults().Trigger(VelocitySpike)
		velocity.CriticalThresholdValue = domain.Float(5)
		out, _ = UpdateTrigger(Defaults(), velocity)
		got, _ = out.Trigger(VelocitySpike)
		if got.CriticalThresholdValue != nil {
			t.Error("critical sub-threshold must stay empty on non-hours triggers")
		}
	})

	t.Run("CustomIsEditable", func(t *testing.T) {
		cfg, custom := AddCustomTrigger(Defaults(), fixedNow)
		custom.Label = "Cash intensity"
		custom.ThresholdUnit = domain.UnitAmount
		custom.ThresholdValue = 10000
		custom.ComparisonOperator = domain.OpGreaterEqual
		custom.Enabled = false

		out, err := UpdateTrigger(cfg, custom)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, _ := out.Trigger(custom.ID)
		if got.Label != "Cash intensity" || got.ThresholdUnit != domain.UnitAmount || got.Enabled {
			t.Errorf("custom edits not applied: %+v", got)
		}
		if got.Kind != domain.TriggerCustom {
			t.Error("kind changed")
		}
	})

	t.Run("Errors", func(t *testing.T) {
		cfg, custom := AddCustomTrigger(Defaults(), fixedNow)

		tests := []struct {
			name string
			edit func() domain.Trigger
			want error
		}{
			{"UnknownID", func() domain.Trigger { return domain.Trigger{ID: "nope"} }, ErrTriggerNotFound},
			{"NegativeThreshold", func() domain.Trigger {
				tr := custom
				tr.ThresholdValue = -1
				return tr
			}, ErrInvalidTrigger},
			{"BadOperator", func() domain.Trigger {
				tr := custom
				tr.ComparisonOperator = "!="
				return tr
			}, ErrInvalidTrigger},
			{"BadUnit", func() domain.Trigger {
				tr := custom
				tr.ThresholdUnit = "days"
				return tr
			}, ErrInvalidTrigger},
			{"EmptyLabel", func() domain.Trigger {
				tr := custom
				tr.Label = ""
				return tr
			}, ErrInvalidTrigger},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := UpdateTrigger(cfg, tt.edit())
				if !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
			})
		}
	})
}

func TestRemoveTrigger(t *testing.T) {
	cfg, custom := AddCustomTrigger(Defaults(), fixedNow)

	if _, err := RemoveTrigger(cfg, SanctionsMatch); !errors.Is(err, ErrPredefinedTrigger) {
		t.Errorf("expected ErrPredefinedTrigger, got %v", err)
	}
	if _, err := RemoveTrigger(cfg, "missing"); !errors.Is(err, ErrTriggerNotFound) {
		t.Errorf("expected ErrTriggerNotFound, got %v", err)
	}

	out, err := RemoveTrigger(cfg, custom.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := out.Trigger(custom.ID); ok {
		t.Error("custom trigger still present")
	}
	if len(out.Triggers) != len(Defaults().Triggers) {
		t.Errorf("expected %d triggers, got %d", len(Defaults().Triggers), len(out.Triggers))
	}
	if _, ok := cfg.Trigger(custom.ID); !ok {
		t.Error("input config was mutated")
	}
}

func TestMislabelledPredefinedTrigger(t *testing.T) {
	cfg := Defaults()
	for i := range cfg.Triggers {
		if cfg.Triggers[i].ID == SanctionsMatch {
			cfg.Triggers[i].Kind = domain.TriggerCustom
		}
	}

	t.Run("Remove", func(t *testing.T) {
		if _, err := RemoveTrigger(cfg, SanctionsMatch); !errors.Is(err, ErrPredefinedTrigger) {
			t.Errorf("expected ErrPredefinedTrigger, got %v", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		edit, _ := cfg.Trigger(SanctionsMatch)
		edit.Label = "Renamed"
		edit.Enabled = false

		out, err := UpdateTrigger(cfg, edit)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, _ := out.Trigger(SanctionsMatch)
		if got.Kind != domain.TriggerPredefined {
			t.Errorf("expected kind %q, got %q", domain.TriggerPredefined, got.Kind)
		}
		if got.Label == "Renamed" || !got.Enabled {
			t.Errorf("predefined identity changed: %+v", got)
		}
	})
}

func TestSetMinRegularTriggers(t *testing.T) {
	for _, n := range []int{0, -1} {
		if _, err := SetMinRegularTriggers(Defaults(), n); !errors.Is(err, ErrInvalidMinimum) {
			t.Errorf("%d: expected ErrInvalidMinimum, got %v", n, err)
		}
	}

	out, err := SetMinRegularTriggers(Defaults(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.MinRegularTriggersToEscalate != 5 {
		t.Errorf("expected 5, got %d", out.MinRegularTriggersToEscalate)
	}
}

func TestRegularTriggerCount(t *testing.T) {
	cfg := Defaults()
	// 13 defaults, two critical.
	if got := RegularTriggerCount(cfg); got != 11 {
		t.Errorf("expected 11, got %d", got)
	}

	cfg, custom := AddCustomTrigger(cfg, fixedNow)
	if got := RegularTriggerCount(cfg); got != 12 {
		t.Errorf("expected 12 with an enabled custom trigger, got %d", got)
	}

	custom.Enabled = false
	cfg, _ = UpdateTrigger(cfg, custom)
	if got := RegularTriggerCount(cfg); got != 11 {
		t.Errorf("expected 11 with the custom trigger disabled, got %d", got)
	}

	if got := ResetToDefaults(); len(got.Triggers) != 13 {
		t.Errorf("expected 13 default triggers, got %d", len(got.Triggers))
	}
}
