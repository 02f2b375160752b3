package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cascade_backend/internal/cascade/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const assignmentColumns = `
	id, chain_id, lead_id, consultant_id, broker_id, status, region, specialty,
	assigned_at, expires_at, contacted_at, escalated_at, finalized_at,
	last_notified_level, notify_lease_until, attempt_count, config_snapshot,
	created_at, updated_at`

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Assignment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM cascade_assignments WHERE id = $1`, id)
	a, err := scanAssignment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Assignment{}, ErrNotFound
	}
	return a, err
}

func (r *Repository) GetOpenForLead(ctx context.Context, leadID uuid.UUID) (domain.Assignment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+assignmentColumns+`
		FROM cascade_assignments
		WHERE lead_id = $1 AND status = ANY($2)
		LIMIT 1
	`, leadID, statusStrings(domain.OpenStatuses))
	a, err := scanAssignment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Assignment{}, ErrNotFound
	}
	return a, err
}

func (r *Repository) LatestForLeads(ctx context.Context, leadIDs []uuid.UUID) (domain.Assignment, error) {
	if len(leadIDs) == 0 {
		return domain.Assignment{}, ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `
		SELECT `+assignmentColumns+`
		FROM cascade_assignments
		WHERE lead_id = ANY($1)
		ORDER BY assigned_at DESC, id DESC
		LIMIT 1
	`, leadIDs)
	a, err := scanAssignment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Assignment{}, ErrNotFound
	}
	return a, err
}

func (r *Repository) ListByLead(ctx context.Context, leadID uuid.UUID) ([]domain.Assignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+assignmentColumns+`
		FROM cascade_assignments
		WHERE lead_id = $1
		ORDER BY assigned_at ASC, id ASC
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list lead assignments: %w", err)
	}
	return collectAssignments(rows)
}

func (r *Repository) ListPending(ctx context.Context, after uuid.UUID, limit int) ([]domain.Assignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+assignmentColumns+`
		FROM cascade_assignments
		WHERE status = ANY($1) AND id > $2
		ORDER BY id ASC
		LIMIT $3
	`, statusStrings(domain.PendingStatuses), after, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending assignments: %w", err)
	}
	return collectAssignments(rows)
}

func (r *Repository) ChainConsultants(ctx context.Context, chainID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT consultant_id FROM cascade_assignments WHERE chain_id = $1
	`, chainID)
	if err != nil {
		return nil, fmt.Errorf("list chain consultants: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chain consultant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) ConsultantLoads(ctx context.Context) (map[uuid.UUID]ConsultantLoad, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT consultant_id,
		       COUNT(*) FILTER (WHERE status = ANY($1)),
		       MAX(assigned_at)
		FROM cascade_assignments
		GROUP BY consultant_id
	`, statusStrings(domain.OpenStatuses))
	if err != nil {
		return nil, fmt.Errorf("consultant loads: %w", err)
	}
	defer rows.Close()

	loads := make(map[uuid.UUID]ConsultantLoad)
	for rows.Next() {
		var (
			id   uuid.UUID
			load ConsultantLoad
		)
		if err := rows.Scan(&id, &load.OpenAssignments, &load.LastAssignedAt); err != nil {
			return nil, fmt.Errorf("scan consultant load: %w", err)
		}
		loads[id] = load
	}
	return loads, rows.Err()
}

func (r *Repository) Create(ctx context.Context, a domain.Assignment) error {
	return insertAssignment(ctx, r.pool, a)
}

func (r *Repository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next domain.Status, at time.Time) error {
	if !domain.CanTransition(expected, next) {
		return fmt.Errorf("illegal transition %s -> %s", expected, next)
	}

	var escalatedAt, finalizedAt *time.Time
	if next == domain.StatusEscalated {
		escalatedAt = &at
	}
	if next.IsTerminal() {
		finalizedAt = &at
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE cascade_assignments
		SET status = $3,
		    escalated_at = COALESCE($4, escalated_at),
		    finalized_at = COALESCE($5, finalized_at),
		    updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, string(expected), string(next), escalatedAt, finalizedAt)
	if err != nil {
		return fmt.Errorf("update assignment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *Repository) Redistribute(ctx context.Context, id uuid.UUID, expected domain.Status, next domain.Assignment, at time.Time) error {
	if !domain.CanTransition(expected, domain.StatusRedistributed) {
		return fmt.Errorf("illegal transition %s -> %s", expected, domain.StatusRedistributed)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin redistribute: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE cascade_assignments
		SET status = $3, broker_id = $4, finalized_at = $5, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, string(expected), string(domain.StatusRedistributed), next.ConsultantID, at)
	if err != nil {
		return fmt.Errorf("close redistributed assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}

	if err := insertAssignment(ctx, tx, next); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit redistribute: %w", err)
	}
	return nil
}

func (r *Repository) MarkContacted(ctx context.Context, id uuid.UUID, at time.Time) (domain.Assignment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE cascade_assignments
		SET status = $3, contacted_at = $2, finalized_at = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($4)
		RETURNING `+assignmentColumns,
		id, at, string(domain.StatusCompleted), statusStrings(domain.PendingStatuses))
	a, err := scanAssignment(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Assignment{}, fmt.Errorf("mark contacted: %w", err)
	}

	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return domain.Assignment{}, getErr
	}
	return current, ErrConflict
}

func (r *Repository) DeleteFinalizedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM cascade_assignments
		WHERE status = ANY($1) AND finalized_at < $2
	`, statusStrings(domain.TerminalStatuses), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge finalized assignments: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) ClaimNotification(ctx context.Context, id uuid.UUID, level domain.NotificationLevel, now, leaseUntil time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE cascade_assignments
		SET notify_lease_until = $4
		WHERE id = $1
		  AND last_notified_level < $2
		  AND (notify_lease_until IS NULL OR notify_lease_until < $3)
	`, id, int16(level), now, leaseUntil)
	if err != nil {
		return false, fmt.Errorf("claim notification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) CompleteNotification(ctx context.Context, id uuid.UUID, level domain.NotificationLevel) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE cascade_assignments
		SET last_notified_level = GREATEST(last_notified_level, $2),
		    notify_lease_until = NULL
		WHERE id = $1
	`, id, int16(level))
	if err != nil {
		return fmt.Errorf("complete notification: %w", err)
	}
	return nil
}

func (r *Repository) ReleaseNotification(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE cascade_assignments SET notify_lease_until = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("release notification: %w", err)
	}
	return nil
}

func (r *Repository) ListFinalizedBetween(ctx context.Context, from, to time.Time) ([]domain.Assignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+assignmentColumns+`
		FROM cascade_assignments
		WHERE status = ANY($1) AND finalized_at >= $2 AND finalized_at < $3
	`, statusStrings(domain.TerminalStatuses), from, to)
	if err != nil {
		return nil, fmt.Errorf("list finalized assignments: %w", err)
	}
	return collectAssignments(rows)
}

func (r *Repository) CountEscalatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM cascade_assignments
		WHERE escalated_at >= $1 AND escalated_at < $2
	`, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count escalations: %w", err)
	}
	return count, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertAssignment(ctx context.Context, db execer, a domain.Assignment) error {
	snapshot, err := json.Marshal(a.Snapshot)
	if err != nil {
		return fmt.Errorf("encode config snapshot: %w", err)
	}

	_, err = db.Exec(ctx, `
		INSERT INTO cascade_assignments (
			id, chain_id, lead_id, consultant_id, status, region, specialty,
			assigned_at, expires_at, last_notified_level, attempt_count, config_snapshot
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, a.ID, a.ChainID, a.LeadID, a.ConsultantID, string(a.Status), a.Region, a.Specialty,
		a.AssignedAt, a.ExpiresAt, int16(a.LastNotifiedLevel), a.AttemptCount, snapshot)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == openPerLeadIndex {
				return ErrLeadHasOpen
			}
			return ErrConflict
		}
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

func scanAssignment(row pgx.Row) (domain.Assignment, error) {
	var (
		a        domain.Assignment
		status   string
		level    int16
		snapshot []byte
	)
	err := row.Scan(
		&a.ID, &a.ChainID, &a.LeadID, &a.ConsultantID, &a.BrokerID, &status, &a.Region, &a.Specialty,
		&a.AssignedAt, &a.ExpiresAt, &a.ContactedAt, &a.EscalatedAt, &a.FinalizedAt,
		&level, &a.NotifyLeaseUntil, &a.AttemptCount, &snapshot,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Assignment{}, err
	}
	a.Status = domain.Status(status)
	a.LastNotifiedLevel = domain.NotificationLevel(level)
	if err := json.Unmarshal(snapshot, &a.Snapshot); err != nil {
		return domain.Assignment{}, fmt.Errorf("decode config snapshot: %w", err)
	}
	return a, nil
}

func collectAssignments(rows pgx.Rows) ([]domain.Assignment, error) {
	defer rows.Close()
	items := make([]domain.Assignment, 0)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return items, nil
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
