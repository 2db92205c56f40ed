package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// newValidator returns a validator that knows the trigger enums and
// reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	mustRegister(v, "trigger_kind", func(fl validator.FieldLevel) bool {
		return domain.TriggerKind(fl.Field().String()).Valid()
	})
	mustRegister(v, "trigger_unit", func(fl validator.FieldLevel) bool {
		return domain.ThresholdUnit(fl.Field().String()).Valid()
	})
	mustRegister(v, "trigger_operator", func(fl validator.FieldLevel) bool {
		return domain.Operator(fl.Field().String()).Valid()
	})
	mustRegister(v, "case_status", func(fl validator.FieldLevel) bool {
		return domain.CaseStatus(fl.Field().String()).Valid()
	})

	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %s: %v", tag, err))
	}
}

// validationMessage flattens validator errors into one line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return "invalid request: " + strings.Join(parts, "; ")
}
