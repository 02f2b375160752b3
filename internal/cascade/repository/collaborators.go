package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cascade_backend/internal/cascade/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const agentColumns = `id, name, email, phone, is_manager, is_active, is_available, specialties, regions`

func (r *Repository) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	return r.listAgents(ctx, false)
}

func (r *Repository) ListManagers(ctx context.Context) ([]domain.Agent, error) {
	return r.listAgents(ctx, true)
}

func (r *Repository) GetAgent(ctx context.Context, id uuid.UUID) (domain.Agent, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM cascade_agents WHERE id = $1`, id)
	a, err := scanAgent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Agent{}, ErrNotFound
	}
	if err != nil {
		return domain.Agent{}, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

func (r *Repository) listAgents(ctx context.Context, managers bool) ([]domain.Agent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+agentColumns+`
		FROM cascade_agents
		WHERE is_active AND is_manager = $1
		ORDER BY id
	`, managers)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	agents := make([]domain.Agent, 0)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func scanAgent(row pgx.Row) (domain.Agent, error) {
	var a domain.Agent
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Phone, &a.Manager, &a.Active, &a.Available, &a.Specialties, &a.Regions)
	return a, err
}

// identifierColumn maps an identifier to its normalised column in the view.
var identifierColumn = map[domain.Identifier]string{
	domain.IdentifierEmail:    "email_normalized",
	domain.IdentifierPhone:    "phone_e164",
	domain.IdentifierDocument: "document_normalized",
}

func (r *Repository) FindByIdentifier(ctx context.Context, kind domain.Identifier, value string, excludeLead uuid.UUID, since time.Time) (ClientMatch, error) {
	column, ok := identifierColumn[kind]
	if !ok {
		return ClientMatch{}, fmt.Errorf("unknown identifier %q", kind)
	}

	row := r.pool.QueryRow(ctx, `
		SELECT client_id,
		       array_agg(lead_id ORDER BY lead_created_at DESC),
		       bool_or(closed_at IS NULL),
		       max(closed_at)
		FROM cascade_client_identities
		WHERE `+column+` = $1
		  AND lead_id <> $2
		  AND (closed_at IS NULL OR closed_at >= $3)
		GROUP BY client_id
		ORDER BY max(lead_created_at) DESC
		LIMIT 1
	`, value, excludeLead, since)

	var m ClientMatch
	if err := row.Scan(&m.ClientID, &m.LeadIDs, &m.Open, &m.ClosedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ClientMatch{}, ErrNotFound
		}
		return ClientMatch{}, fmt.Errorf("find client by %s: %w", kind, err)
	}
	return m, nil
}
