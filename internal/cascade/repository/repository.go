// Package repository persists the cascade ledger and reads the CRM
// collaborators (agents, clients) the engine depends on.
//
// The engine owns cascade_* tables. Agents and clients are read through the
// cascade_agents and cascade_client_identities views the CRM exposes.
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound    = errors.New("cascade record not found")
	// ErrConflict means a conditional update lost against a concurrent writer.
	ErrConflict    = errors.New("cascade record changed concurrently")
	// ErrLeadHasOpen means an insert would give the lead a second open row.
	ErrLeadHasOpen = errors.New("lead already holds an open assignment")
)

const openPerLeadIndex = "cascade_assignments_one_open_per_lead"

const uniqueViolation = "23505"

// Repository is the Postgres implementation of every store in this package.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var (
	_ Ledger          = (*Repository)(nil)
	_ ConfigStore     = (*Repository)(nil)
	_ AgentPool       = (*Repository)(nil)
	_ ClientDirectory = (*Repository)(nil)
)
