package validator

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	playground "github.com/go-playground/validator/v10"
	"github.com/plantbox/plantbox-api/internal/alerts"
	"github.com/plantbox/plantbox-api/internal/models"
	"github.com/plantbox/plantbox-api/tools/timeparser"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("validation failed")

// percentage targets must stay within 0-100
var percentTargets = map[string]bool{
	models.TargetHumidity:   true,
	models.TargetWaterLevel: true,
}

// Validator checks inbound payloads before they reach the pipeline
type Validator struct {
	validate *playground.Validate
}

// NewValidator creates a validator with the Plantbox rules registered
func NewValidator() *Validator {
	v := playground.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("timeofday", func(fl playground.FieldLevel) bool {
		_, err := timeparser.ParseTimeOfDay(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("profile", func(fl playground.FieldLevel) bool {
		_, ok := alerts.Profile(fl.Field().String())
		return ok
	})
	return &Validator{validate: v}
}

// Struct validates any tagged struct
func (v *Validator) Struct(s any) error {
	if err := v.validate.Struct(s); err != nil {
		return describe(err)
	}
	return nil
}

// ValidateConfigState checks a single-device configuration
func (v *Validator) ValidateConfigState(cfg models.ConfigState) error {
	return v.Struct(cfg)
}

// ValidateDeviceConfig checks a per-device configuration. Unknown target keys
// only need a well-formed range.
func (v *Validator) ValidateDeviceConfig(cfg models.DeviceConfig) error {
	if err := v.Struct(cfg.LightSchedule); err != nil {
		return err
	}
	if cfg.ActiveProfile != "" {
		if _, ok := alerts.Profile(cfg.ActiveProfile); !ok {
			return fmt.Errorf("%w: active_profile: unknown profile %q", ErrInvalid, cfg.ActiveProfile)
		}
	}

	names := make([]string, 0, len(cfg.Targets))
	for name := range cfg.Targets {
		names = append(names, name)
	}
	sort.Strings(names)

	var problems []string
	for _, name := range names {
		r := cfg.Targets[name]
		if r.Min > r.Max {
			problems = append(problems, fmt.Sprintf("targets.%s: min exceeds max", name))
		}
		if percentTargets[name] && (r.Min < 0 || r.Max > 100) {
			problems = append(problems, fmt.Sprintf("targets.%s: must be within 0-100", name))
		}
		if name == models.TargetAirTemp && r.Min < 0 {
			problems = append(problems, fmt.Sprintf("targets.%s: must be >= 0", name))
		}
		if name == models.TargetFlowRate && r.Min < 0 {
			problems = append(problems, fmt.Sprintf("targets.%s: must be >= 0", name))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func describe(err error) error {
	var fieldErrs playground.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		if fe.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s: failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			problems = append(problems, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
}
