package repository

import (
	"context"
	"errors"
	"fmt"

	"cascade_backend/internal/cascade/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const configColumns = `
	id, is_active, distribution_method, use_specialty, use_availability, use_region,
	working_hours_start, working_hours_end, working_hours_weekend, timezone,
	first_contact_sla, warning_percentage, critical_percentage,
	notify_visual, notify_system, notify_manager, auto_redistribute, escalate_to_manager,
	identify_by_email, identify_by_phone, identify_by_document, identifier_order,
	keep_same_consultant, assign_new_consultant, based_on_time, based_on_outcome,
	recency_window_hours, inactivity_period, contact_attempts,
	created_by, created_at, updated_at`

func (r *Repository) GetActiveConfig(ctx context.Context) (domain.AutomationConfig, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+configColumns+` FROM cascade_automation_configs WHERE is_active`)
	cfg, err := scanConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AutomationConfig{}, ErrNotFound
	}
	if err != nil {
		return domain.AutomationConfig{}, fmt.Errorf("get active config: %w", err)
	}
	return cfg, nil
}

// SaveConfig deactivates the current version and inserts cfg as active.
func (r *Repository) SaveConfig(ctx context.Context, cfg domain.AutomationConfig) (domain.AutomationConfig, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.AutomationConfig{}, fmt.Errorf("begin save config: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE cascade_automation_configs SET is_active = FALSE, updated_at = now() WHERE is_active`); err != nil {
		return domain.AutomationConfig{}, fmt.Errorf("deactivate config: %w", err)
	}

	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	order := make([]string, len(cfg.IdentifierOrder))
	for i, id := range cfg.IdentifierOrder {
		order[i] = string(id)
	}
	if len(order) == 0 {
		for _, id := range domain.DefaultIdentifierOrder {
			order = append(order, string(id))
		}
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO cascade_automation_configs (
			id, is_active, distribution_method, use_specialty, use_availability, use_region,
			working_hours_start, working_hours_end, working_hours_weekend, timezone,
			first_contact_sla, warning_percentage, critical_percentage,
			notify_visual, notify_system, notify_manager, auto_redistribute, escalate_to_manager,
			identify_by_email, identify_by_phone, identify_by_document, identifier_order,
			keep_same_consultant, assign_new_consultant, based_on_time, based_on_outcome,
			recency_window_hours, inactivity_period, contact_attempts, created_by
		) VALUES (
			$1, TRUE, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29
		)
		RETURNING `+configColumns,
		cfg.ID, string(cfg.DistributionMethod), cfg.UseSpecialty, cfg.UseAvailability, cfg.UseRegion,
		cfg.WorkingHoursStart, cfg.WorkingHoursEnd, cfg.WorkingHoursWeekend, cfg.Timezone,
		cfg.FirstContactSLA, cfg.WarningPercentage, cfg.CriticalPercentage,
		cfg.NotifyVisual, cfg.NotifySystem, cfg.NotifyManager, cfg.AutoRedistribute, cfg.EscalateToManager,
		cfg.IdentifyByEmail, cfg.IdentifyByPhone, cfg.IdentifyByDocument, order,
		cfg.KeepSameConsultant, cfg.AssignNewConsultant, cfg.BasedOnTime, cfg.BasedOnOutcome,
		cfg.RecencyWindowHours, cfg.InactivityPeriod, cfg.ContactAttempts, cfg.CreatedBy,
	)
	saved, err := scanConfig(row)
	if err != nil {
		return domain.AutomationConfig{}, fmt.Errorf("insert config: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.AutomationConfig{}, fmt.Errorf("commit save config: %w", err)
	}
	return saved, nil
}

func scanConfig(row pgx.Row) (domain.AutomationConfig, error) {
	var (
		cfg    domain.AutomationConfig
		method string
		order  []string
	)
	err := row.Scan(
		&cfg.ID, &cfg.Active, &method, &cfg.UseSpecialty, &cfg.UseAvailability, &cfg.UseRegion,
		&cfg.WorkingHoursStart, &cfg.WorkingHoursEnd, &cfg.WorkingHoursWeekend, &cfg.Timezone,
		&cfg.FirstContactSLA, &cfg.WarningPercentage, &cfg.CriticalPercentage,
		&cfg.NotifyVisual, &cfg.NotifySystem, &cfg.NotifyManager, &cfg.AutoRedistribute, &cfg.EscalateToManager,
		&cfg.IdentifyByEmail, &cfg.IdentifyByPhone, &cfg.IdentifyByDocument, &order,
		&cfg.KeepSameConsultant, &cfg.AssignNewConsultant, &cfg.BasedOnTime, &cfg.BasedOnOutcome,
		&cfg.RecencyWindowHours, &cfg.InactivityPeriod, &cfg.ContactAttempts,
		&cfg.CreatedBy, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return domain.AutomationConfig{}, err
	}
	cfg.DistributionMethod = domain.DistributionMethod(method)
	cfg.IdentifierOrder = make([]domain.Identifier, len(order))
	for i, id := range order {
		cfg.IdentifierOrder[i] = domain.Identifier(id)
	}
	return cfg, nil
}
