// Package selector picks the agent that receives a lead.
package selector

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"cascade_backend/internal/cascade/domain"
	"cascade_backend/internal/cascade/repository"

	"github.com/google/uuid"
)

// Request describes the lead being placed and the policy in force.
type Request struct {
	Region    string
	Specialty string
	Exclude   []uuid.UUID
	Policy    domain.ConfigSnapshot
}

// Selector filters the agent pool and picks the least loaded candidate.
type Selector struct {
	agents repository.AgentPool
	loads  loadReader
}

type loadReader interface {
	ConsultantLoads(ctx context.Context) (map[uuid.UUID]repository.ConsultantLoad, error)
}

func New(agents repository.AgentPool, loads loadReader) *Selector {
	return &Selector{agents: agents, loads: loads}
}

// Select returns domain.ErrNoEligibleAgent when every agent is filtered out.
func (s *Selector) Select(ctx context.Context, req Request) (domain.Agent, error) {
	agents, err := s.agents.ListAgents(ctx)
	if err != nil {
		return domain.Agent{}, fmt.Errorf("list agents: %w", err)
	}
	loads, err := s.loads.ConsultantLoads(ctx)
	if err != nil {
		return domain.Agent{}, fmt.Errorf("consultant loads: %w", err)
	}

	candidates := Filter(withLoads(agents, loads), req)
	if len(candidates) == 0 {
		return domain.Agent{}, domain.ErrNoEligibleAgent
	}
	return Pick(candidates, req.Policy.DistributionMethod).Agent, nil
}

// Filter applies exclusion and the availability, specialty and region rules.
// Specialty and region rules are skipped when the lead carries no value.
func Filter(pool []domain.AgentLoad, req Request) []domain.AgentLoad {
	excluded := make(map[uuid.UUID]bool, len(req.Exclude))
	for _, id := range req.Exclude {
		excluded[id] = true
	}

	p := req.Policy
	byAvailability := p.UseAvailability || p.DistributionMethod == domain.MethodAvailability
	bySpecialty := (p.UseSpecialty || p.DistributionMethod == domain.MethodSpecialty) && req.Specialty != ""
	byRegion := (p.UseRegion || p.DistributionMethod == domain.MethodRegion) && req.Region != ""

	out := make([]domain.AgentLoad, 0, len(pool))
	for _, a := range pool {
		switch {
		case !a.Active, a.Manager, excluded[a.ID]:
			continue
		case byAvailability && !a.Available:
			continue
		case bySpecialty && !a.HasSpecialty(req.Specialty):
			continue
		case byRegion && !a.CoversRegion(req.Region):
			continue
		}
		out = append(out, a)
	}
	return out
}

// Pick orders candidates deterministically and returns the first.
// candidates must be non-empty.
func Pick(candidates []domain.AgentLoad, method domain.DistributionMethod) domain.AgentLoad {
	sorted := append([]domain.AgentLoad(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if method == domain.MethodRoundRobin {
			if c := compareLast(a, b); c != 0 {
				return c < 0
			}
			if a.OpenAssignments != b.OpenAssignments {
				return a.OpenAssignments < b.OpenAssignments
			}
		} else {
			if a.OpenAssignments != b.OpenAssignments {
				return a.OpenAssignments < b.OpenAssignments
			}
			if c := compareLast(a, b); c != 0 {
				return c < 0
			}
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
	return sorted[0]
}

// compareLast orders never-assigned agents first, then oldest assignment.
func compareLast(a, b domain.AgentLoad) int {
	switch {
	case a.LastAssignedAt == nil && b.LastAssignedAt == nil:
		return 0
	case a.LastAssignedAt == nil:
		return -1
	case b.LastAssignedAt == nil:
		return 1
	case a.LastAssignedAt.Before(*b.LastAssignedAt):
		return -1
	case b.LastAssignedAt.Before(*a.LastAssignedAt):
		return 1
	}
	return 0
}

func withLoads(agents []domain.Agent, loads map[uuid.UUID]repository.ConsultantLoad) []domain.AgentLoad {
	out := make([]domain.AgentLoad, len(agents))
	for i, a := range agents {
		load := loads[a.ID]
		out[i] = domain.AgentLoad{Agent: a, OpenAssignments: load.OpenAssignments, LastAssignedAt: load.LastAssignedAt}
	}
	return out
}
