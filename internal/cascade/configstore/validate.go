package configstore

import (
	"errors"
	"fmt"
	"strings"

	"cascade_backend/internal/cascade/calendar"
	"cascade_backend/internal/cascade/domain"
	"cascade_backend/platform/validator"

	playground "github.com/go-playground/validator/v10"
)

// Validate checks field rules and the cross-field invariants of cfg.
// Every failure wraps domain.ErrConfiguration.
func Validate(v *validator.Validator, cfg domain.AutomationConfig) error {
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrConfiguration, describe(err))
	}

	var problems []string
	if cfg.WarningPercentage >= cfg.CriticalPercentage {
		problems = append(problems, "warningPercentage must be lower than criticalPercentage")
	}
	if cfg.CriticalPercentage >= 100 {
		problems = append(problems, "criticalPercentage must be lower than 100")
	}
	if cfg.KeepSameConsultant && cfg.AssignNewConsultant {
		problems = append(problems, "keepSameConsultant and assignNewConsultant cannot both be set")
	}
	if _, err := calendar.New(cfg.WorkingHoursStart, cfg.WorkingHoursEnd, cfg.WorkingHoursWeekend, nil); err != nil {
		problems = append(problems, "workingHoursStart must not be after workingHoursEnd")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

func describe(err error) string {
	var verrs playground.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
