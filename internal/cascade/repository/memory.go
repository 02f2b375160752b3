package repository

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"cascade_backend/internal/cascade/domain"

	"github.com/google/uuid"
)

// ClientIdentity is one row of the CRM client identity view.
type ClientIdentity struct {
	ClientID      uuid.UUID
	LeadID        uuid.UUID
	Email         string
	Phone         string
	Document      string
	ClosedAt      *time.Time
	LeadCreatedAt time.Time
}

// Memory is an in-process implementation of every store in this package.
// It applies the same conditional-update rules as the Postgres store and is
// used by tests and single-node development runs.
type Memory struct {
	mu          sync.Mutex
	assignments map[uuid.UUID]domain.Assignment
	configs     []domain.AutomationConfig
	agents      map[uuid.UUID]domain.Agent
	clients     []ClientIdentity

	// Hooks let tests inject failures; nil means no failure.
	FailListPending func() error
}

func NewMemory() *Memory {
	return &Memory{
		assignments: make(map[uuid.UUID]domain.Assignment),
		agents:      make(map[uuid.UUID]domain.Agent),
	}
}

var (
	_ Ledger          = (*Memory)(nil)
	_ ConfigStore     = (*Memory)(nil)
	_ AgentPool       = (*Memory)(nil)
	_ ClientDirectory = (*Memory)(nil)
)

// PutAgent inserts or replaces an agent.
func (m *Memory) PutAgent(a domain.Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[a.ID] = a
}

// AddClientIdentity registers a known client lead.
func (m *Memory) AddClientIdentity(c ClientIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients = append(m.clients, c)
}

// Put stores a row as-is, bypassing the open-lead check.
func (m *Memory) Put(a domain.Assignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.ID] = a
}

// All returns every row ordered by assignment time.
func (m *Memory) All() []domain.Assignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Assignment, 0, len(m.assignments))
	for _, a := range m.assignments {
		out = append(out, a)
	}
	sortByAssigned(out)
	return out
}

func (m *Memory) GetByID(_ context.Context, id uuid.UUID) (domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return domain.Assignment{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) GetOpenForLead(_ context.Context, leadID uuid.UUID) (domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.openForLeadLocked(leadID); ok {
		return a, nil
	}
	return domain.Assignment{}, ErrNotFound
}

func (m *Memory) LatestForLeads(_ context.Context, leadIDs []uuid.UUID) (domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[uuid.UUID]bool, len(leadIDs))
	for _, id := range leadIDs {
		wanted[id] = true
	}
	var (
		latest domain.Assignment
		found  bool
	)
	for _, a := range m.assignments {
		if !wanted[a.LeadID] {
			continue
		}
		if !found || a.AssignedAt.After(latest.AssignedAt) {
			latest, found = a, true
		}
	}
	if !found {
		return domain.Assignment{}, ErrNotFound
	}
	return latest, nil
}

func (m *Memory) ListByLead(_ context.Context, leadID uuid.UUID) ([]domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Assignment, 0)
	for _, a := range m.assignments {
		if a.LeadID == leadID {
			out = append(out, a)
		}
	}
	sortByAssigned(out)
	return out, nil
}

func (m *Memory) ListPending(_ context.Context, after uuid.UUID, limit int) ([]domain.Assignment, error) {
	if m.FailListPending != nil {
		if err := m.FailListPending(); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Assignment, 0)
	for _, a := range m.assignments {
		if a.Status.IsPending() && compareUUID(a.ID, after) > 0 {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return compareUUID(out[i].ID, out[j].ID) < 0 })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ChainConsultants(_ context.Context, chainID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	out := make([]uuid.UUID, 0)
	for _, a := range m.assignments {
		if a.ChainID == chainID && !seen[a.ConsultantID] {
			seen[a.ConsultantID] = true
			out = append(out, a.ConsultantID)
		}
	}
	return out, nil
}

func (m *Memory) ConsultantLoads(_ context.Context) (map[uuid.UUID]ConsultantLoad, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loads := make(map[uuid.UUID]ConsultantLoad)
	for _, a := range m.assignments {
		load := loads[a.ConsultantID]
		if a.Status.IsOpen() {
			load.OpenAssignments++
		}
		if load.LastAssignedAt == nil || a.AssignedAt.After(*load.LastAssignedAt) {
			at := a.AssignedAt
			load.LastAssignedAt = &at
		}
		loads[a.ConsultantID] = load
	}
	return loads, nil
}

func (m *Memory) Create(_ context.Context, a domain.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(a)
}

func (m *Memory) CompareAndSetStatus(_ context.Context, id uuid.UUID, expected, next domain.Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok || a.Status != expected {
		return ErrConflict
	}
	if !domain.CanTransition(expected, next) {
		return ErrConflict
	}
	a.Status = next
	if next == domain.StatusEscalated {
		a.EscalatedAt = &at
	}
	if next.IsTerminal() {
		a.FinalizedAt = &at
	}
	a.UpdatedAt = at
	m.assignments[id] = a
	return nil
}

func (m *Memory) Redistribute(_ context.Context, id uuid.UUID, expected domain.Status, next domain.Assignment, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok || a.Status != expected || !domain.CanTransition(expected, domain.StatusRedistributed) {
		return ErrConflict
	}

	closed := a
	broker := next.ConsultantID
	closed.Status = domain.StatusRedistributed
	closed.BrokerID = &broker
	closed.FinalizedAt = &at
	closed.UpdatedAt = at
	m.assignments[id] = closed

	if err := m.insertLocked(next); err != nil {
		m.assignments[id] = a
		return err
	}
	return nil
}

func (m *Memory) MarkContacted(_ context.Context, id uuid.UUID, at time.Time) (domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return domain.Assignment{}, ErrNotFound
	}
	if !a.Status.IsPending() {
		return a, ErrConflict
	}
	a.Status = domain.StatusCompleted
	a.ContactedAt = &at
	a.FinalizedAt = &at
	a.UpdatedAt = at
	m.assignments[id] = a
	return a, nil
}

func (m *Memory) DeleteFinalizedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, a := range m.assignments {
		if a.Status.IsTerminal() && a.FinalizedAt != nil && a.FinalizedAt.Before(cutoff) {
			delete(m.assignments, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) ClaimNotification(_ context.Context, id uuid.UUID, level domain.NotificationLevel, now, leaseUntil time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok || a.LastNotifiedLevel >= level {
		return false, nil
	}
	if a.NotifyLeaseUntil != nil && !a.NotifyLeaseUntil.Before(now) {
		return false, nil
	}
	a.NotifyLeaseUntil = &leaseUntil
	m.assignments[id] = a
	return true, nil
}

func (m *Memory) CompleteNotification(_ context.Context, id uuid.UUID, level domain.NotificationLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return nil
	}
	if level > a.LastNotifiedLevel {
		a.LastNotifiedLevel = level
	}
	a.NotifyLeaseUntil = nil
	m.assignments[id] = a
	return nil
}

func (m *Memory) ReleaseNotification(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.assignments[id]; ok {
		a.NotifyLeaseUntil = nil
		m.assignments[id] = a
	}
	return nil
}

func (m *Memory) ListFinalizedBetween(_ context.Context, from, to time.Time) ([]domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Assignment, 0)
	for _, a := range m.assignments {
		if a.Status.IsTerminal() && a.FinalizedAt != nil && !a.FinalizedAt.Before(from) && a.FinalizedAt.Before(to) {
			out = append(out, a)
		}
	}
	sortByAssigned(out)
	return out, nil
}

func (m *Memory) CountEscalatedBetween(_ context.Context, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.assignments {
		if a.EscalatedAt != nil && !a.EscalatedAt.Before(from) && a.EscalatedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) GetActiveConfig(_ context.Context) (domain.AutomationConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.configs) - 1; i >= 0; i-- {
		if m.configs[i].Active {
			return m.configs[i], nil
		}
	}
	return domain.AutomationConfig{}, ErrNotFound
}

func (m *Memory) SaveConfig(_ context.Context, cfg domain.AutomationConfig) (domain.AutomationConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.configs {
		m.configs[i].Active = false
	}
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	now := time.Now().UTC()
	cfg.Active = true
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	m.configs = append(m.configs, cfg)
	return cfg, nil
}

func (m *Memory) ListAgents(_ context.Context) ([]domain.Agent, error) {
	return m.listAgents(false), nil
}

func (m *Memory) ListManagers(_ context.Context) ([]domain.Agent, error) {
	return m.listAgents(true), nil
}

func (m *Memory) GetAgent(_ context.Context, id uuid.UUID) (domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return domain.Agent{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) FindByIdentifier(_ context.Context, kind domain.Identifier, value string, excludeLead uuid.UUID, since time.Time) (ClientMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type group struct {
		match  ClientMatch
		newest time.Time
	}
	groups := make(map[uuid.UUID]*group)
	for _, c := range m.clients {
		if c.LeadID == excludeLead || identityValue(c, kind) != value || value == "" {
			continue
		}
		if c.ClosedAt != nil && c.ClosedAt.Before(since) {
			continue
		}
		g, ok := groups[c.ClientID]
		if !ok {
			g = &group{match: ClientMatch{ClientID: c.ClientID}}
			groups[c.ClientID] = g
		}
		g.match.LeadIDs = append(g.match.LeadIDs, c.LeadID)
		if c.ClosedAt == nil {
			g.match.Open = true
		} else if g.match.ClosedAt == nil || c.ClosedAt.After(*g.match.ClosedAt) {
			closed := *c.ClosedAt
			g.match.ClosedAt = &closed
		}
		if c.LeadCreatedAt.After(g.newest) {
			g.newest = c.LeadCreatedAt
		}
	}

	var best *group
	for _, g := range groups {
		if best == nil || g.newest.After(best.newest) {
			best = g
		}
	}
	if best == nil {
		return ClientMatch{}, ErrNotFound
	}
	return best.match, nil
}

func (m *Memory) listAgents(managers bool) []domain.Agent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Agent, 0)
	for _, a := range m.agents {
		if a.Active && a.Manager == managers {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return compareUUID(out[i].ID, out[j].ID) < 0 })
	return out
}

func (m *Memory) openForLeadLocked(leadID uuid.UUID) (domain.Assignment, bool) {
	for _, a := range m.assignments {
		if a.LeadID == leadID && a.Status.IsOpen() {
			return a, true
		}
	}
	return domain.Assignment{}, false
}

func (m *Memory) insertLocked(a domain.Assignment) error {
	if _, exists := m.assignments[a.ID]; exists {
		return ErrConflict
	}
	if a.Status.IsOpen() {
		if _, open := m.openForLeadLocked(a.LeadID); open {
			return ErrLeadHasOpen
		}
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = a.AssignedAt
	}
	a.UpdatedAt = a.CreatedAt
	m.assignments[a.ID] = a
	return nil
}

func identityValue(c ClientIdentity, kind domain.Identifier) string {
	switch kind {
	case domain.IdentifierEmail:
		return c.Email
	case domain.IdentifierPhone:
		return c.Phone
	case domain.IdentifierDocument:
		return c.Document
	}
	return ""
}

func sortByAssigned(items []domain.Assignment) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].AssignedAt.Equal(items[j].AssignedAt) {
			return compareUUID(items[i].ID, items[j].ID) < 0
		}
		return items[i].AssignedAt.Before(items[j].AssignedAt)
	})
}

func compareUUID(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}
