package configstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cascade_backend/internal/cascade/domain"
	"cascade_backend/internal/cascade/repository"

	"gopkg.in/yaml.v3"
)

// seedFile is the YAML layout of an automation config seed.
type seedFile struct {
	DistributionMethod  string   `yaml:"distribution_method"`
	UseSpecialty        bool     `yaml:"use_specialty"`
	UseAvailability     bool     `yaml:"use_availability"`
	UseRegion           bool     `yaml:"use_region"`
	WorkingHoursStart   string   `yaml:"working_hours_start"`
	WorkingHoursEnd     string   `yaml:"working_hours_end"`
	WorkingHoursWeekend bool     `yaml:"working_hours_weekend"`
	Timezone            string   `yaml:"timezone"`
	FirstContactSLA     int      `yaml:"first_contact_sla"`
	WarningPercentage   int      `yaml:"warning_percentage"`
	CriticalPercentage  int      `yaml:"critical_percentage"`
	NotifyVisual        bool     `yaml:"notify_visual"`
	NotifySystem        bool     `yaml:"notify_system"`
	NotifyManager       bool     `yaml:"notify_manager"`
	AutoRedistribute    bool     `yaml:"auto_redistribute"`
	EscalateToManager   bool     `yaml:"escalate_to_manager"`
	IdentifyByEmail     bool     `yaml:"identify_by_email"`
	IdentifyByPhone     bool     `yaml:"identify_by_phone"`
	IdentifyByDocument  bool     `yaml:"identify_by_document"`
	IdentifierOrder     []string `yaml:"identifier_order"`
	KeepSameConsultant  bool     `yaml:"keep_same_consultant"`
	AssignNewConsultant bool     `yaml:"assign_new_consultant"`
	BasedOnTime         bool     `yaml:"based_on_time"`
	BasedOnOutcome      bool     `yaml:"based_on_outcome"`
	RecencyWindowHours  int      `yaml:"recency_window_hours"`
	InactivityPeriod    int      `yaml:"inactivity_period"`
	ContactAttempts     int      `yaml:"contact_attempts"`
}

// ParseSeed decodes a YAML automation config.
func ParseSeed(data []byte) (domain.AutomationConfig, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return domain.AutomationConfig{}, fmt.Errorf("%w: parse seed: %v", domain.ErrConfiguration, err)
	}
	order := make([]domain.Identifier, len(f.IdentifierOrder))
	for i, id := range f.IdentifierOrder {
		order[i] = domain.Identifier(id)
	}
	return domain.AutomationConfig{
		DistributionMethod:  domain.DistributionMethod(f.DistributionMethod),
		UseSpecialty:        f.UseSpecialty,
		UseAvailability:     f.UseAvailability,
		UseRegion:           f.UseRegion,
		WorkingHoursStart:   f.WorkingHoursStart,
		WorkingHoursEnd:     f.WorkingHoursEnd,
		WorkingHoursWeekend: f.WorkingHoursWeekend,
		Timezone:            f.Timezone,
		FirstContactSLA:     f.FirstContactSLA,
		WarningPercentage:   f.WarningPercentage,
		CriticalPercentage:  f.CriticalPercentage,
		NotifyVisual:        f.NotifyVisual,
		NotifySystem:        f.NotifySystem,
		NotifyManager:       f.NotifyManager,
		AutoRedistribute:    f.AutoRedistribute,
		EscalateToManager:   f.EscalateToManager,
		IdentifyByEmail:     f.IdentifyByEmail,
		IdentifyByPhone:     f.IdentifyByPhone,
		IdentifyByDocument:  f.IdentifyByDocument,
		IdentifierOrder:     order,
		KeepSameConsultant:  f.KeepSameConsultant,
		AssignNewConsultant: f.AssignNewConsultant,
		BasedOnTime:         f.BasedOnTime,
		BasedOnOutcome:      f.BasedOnOutcome,
		RecencyWindowHours:  f.RecencyWindowHours,
		InactivityPeriod:    f.InactivityPeriod,
		ContactAttempts:     f.ContactAttempts,
	}, nil
}

// EnsureSeed stores the seed at path when no config is active yet.
// It reports whether a config was written.
func (s *Store) EnsureSeed(ctx context.Context, path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if _, err := s.repo.GetActiveConfig(ctx); err == nil {
		return false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read automation config seed: %w", err)
	}
	cfg, err := ParseSeed(data)
	if err != nil {
		return false, err
	}
	if _, err := s.Save(ctx, cfg); err != nil {
		return false, err
	}
	return true, nil
}
