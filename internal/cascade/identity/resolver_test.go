package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cascade_backend/internal/cascade/domain"
	"cascade_backend/internal/cascade/repository"

	"github.com/google/uuid"
)

var now = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	mem        *repository.Memory
	client     uuid.UUID
	priorLead  uuid.UUID
	consultant uuid.UUID
	prior      domain.Assignment
}

func newFixture(t *testing.T, priorStatus domain.Status, finalizedAgo time.Duration) fixture {
	t.Helper()
	mem := repository.NewMemory()
	f := fixture{mem: mem, client: uuid.New(), priorLead: uuid.New(), consultant: uuid.New()}
	mem.PutAgent(domain.Agent{ID: f.consultant, Active: true, Available: true})
	mem.AddClientIdentity(repository.ClientIdentity{
		ClientID:      f.client,
		LeadID:        f.priorLead,
		Email:         "maria.souza@example.com",
		Phone:         "+5511987654321",
		Document:      "12345678909",
		LeadCreatedAt: now.Add(-30 * 24 * time.Hour),
	})

	f.prior = domain.Assignment{
		ID:           uuid.New(),
		LeadID:       f.priorLead,
		ConsultantID: f.consultant,
		Status:       priorStatus,
		AssignedAt:   now.Add(-30 * 24 * time.Hour),
	}
	f.prior.ChainID = f.prior.ID
	if priorStatus.IsTerminal() {
		at := now.Add(-finalizedAgo)
		f.prior.FinalizedAt = &at
	}
	mem.Put(f.prior)
	return f
}

func (f fixture) resolver() *Resolver {
	return NewResolver(f.mem, f.mem, f.mem, WithClock(func() time.Time { return now }), WithPhoneRegion("BR"))
}

func baseConfig() *domain.AutomationConfig {
	return &domain.AutomationConfig{
		IdentifyByEmail:    true,
		IdentifyByPhone:    true,
		IdentifyByDocument: true,
		KeepSameConsultant: true,
	}
}

// A returning client keeps the prior consultant when the policy asks for it.
func TestRecurringLeadKeepsPriorConsultant(t *testing.T) {
	f := newFixture(t, domain.StatusCompleted, 200*24*time.Hour)
	res, err := f.resolver().Resolve(context.Background(), Candidate{LeadID: uuid.New(), Email: "  Maria.Souza@Example.COM "}, baseConfig())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.Recurring || res.MatchedBy != domain.IdentifierEmail || res.ClientID != f.client {
		t.Fatalf("expected email match, got %+v", res)
	}
	if res.ConsultantID == nil || *res.ConsultantID != f.consultant {
		t.Fatalf("expected prior consultant, got %+v", res.ConsultantID)
	}
}

func TestPhoneMatchAfterNormalisation(t *testing.T) {
	f := newFixture(t, domain.StatusCompleted, time.Hour)
	res, _ := f.resolver().Resolve(context.Background(), Candidate{LeadID: uuid.New(), Phone: "(11) 98765-4321"}, baseConfig())
	if !res.Recurring || res.MatchedBy != domain.IdentifierPhone {
		t.Fatalf("expected phone match, got %+v", res)
	}
}

func TestIdentifierOrderShortCircuits(t *testing.T) {
	f := newFixture(t, domain.StatusCompleted, time.Hour)
	cfg := baseConfig()
	cfg.IdentifierOrder = []domain.Identifier{domain.IdentifierDocument, domain.IdentifierEmail}
	res, _ := f.resolver().Resolve(context.Background(), Candidate{
		LeadID:   uuid.New(),
		Email:    "maria.souza@example.com",
		Document: "123.456.789-09",
	}, cfg)
	if res.MatchedBy != domain.IdentifierDocument {
		t.Fatalf("expected document to win by order, got %s", res.MatchedBy)
	}
}

func TestDisabledIdentifierIsIgnored(t *testing.T) {
	f := newFixture(t, domain.StatusCompleted, time.Hour)
	cfg := baseConfig()
	cfg.IdentifyByEmail = false
	res, _ := f.resolver().Resolve(context.Background(), Candidate{LeadID: uuid.New(), Email: "maria.souza@example.com"}, cfg)
	if res.Recurring {
		t.Fatalf("expected no match with email disabled, got %+v", res)
	}
}

// The exact recency threshold is a policy parameter; these cases sit
// clearly inside and outside it rather than on the boundary.
func TestBasedOnTimeRecencyWindow(t *testing.T) {
	cfg := baseConfig()
	cfg.BasedOnTime = true
	cfg.RecencyWindowHours = 72

	recent := newFixture(t, domain.StatusCompleted, 24*time.Hour)
	res, _ := recent.resolver().Resolve(context.Background(), Candidate{LeadID: uuid.New(), Email: "maria.souza@example.com"}, cfg)
	if res.ConsultantID == nil {
		t.Fatal("expected continuity inside the recency window")
	}

	stale := newFixture(t, domain.StatusCompleted, 10*24*time.Hour)
	res, _ = stale.resolver().Resolve(context.Background(), Candidate{LeadID: uuid.New(), Email: "maria.souza@example.com"}, cfg)
	if !res.Recurring || res.ConsultantID != nil {
		t.Fatalf("expected recurring without continuity, got %+v", res)
	}
}

func TestBasedOnOutcomeSkipsNegativePrior(t *testing.T) {
	cfg := baseConfig()
	cfg.BasedOnOutcome = true
	f := newFixture(t, domain.StatusExpired, time.Hour)
	res, _ := f.resolver().Resolve(context.Background(), Candidate{LeadID: uuid.New(), Email: "maria.souza@example.com"}, cfg)
	if res.ConsultantID != nil {
		t.Fatal("expired prior must not keep the consultant")
	}
}

func TestAssignNewConsultantExcludesPrior(t *testing.T) {
	cfg := baseConfig()
	cfg.KeepSameConsultant = false
	cfg.AssignNewConsultant = true
	f := newFixture(t, domain.StatusCompleted, time.Hour)
	res, _ := f.resolver().Resolve(context.Background(), Candidate{LeadID: uuid.New(), Email: "maria.souza@example.com"}, cfg)
	if res.ConsultantID != nil || len(res.Exclude) != 1 || res.Exclude[0] != f.consultant {
		t.Fatalf("expected prior consultant excluded, got %+v", res)
	}
}

func TestInactivePriorConsultantDefers(t *testing.T) {
	f := newFixture(t, domain.StatusCompleted, time.Hour)
	f.mem.PutAgent(domain.Agent{ID: f.consultant, Active: false})
	res, _ := f.resolver().Resolve(context.Background(), Candidate{LeadID: uuid.New(), Email: "maria.souza@example.com"}, baseConfig())
	if res.ConsultantID != nil {
		t.Fatal("inactive consultant must not receive the lead")
	}
}

func TestContradictoryPolicyFailsClosed(t *testing.T) {
	cfg := baseConfig()
	cfg.AssignNewConsultant = true
	f := newFixture(t, domain.StatusCompleted, time.Hour)
	res, _ := f.resolver().Resolve(context.Background(), Candidate{LeadID: uuid.New(), Email: "maria.souza@example.com"}, cfg)
	if res.ConsultantID != nil || len(res.Exclude) != 0 {
		t.Fatalf("expected deferral to selector, got %+v", res)
	}

	res, err := f.resolver().Resolve(context.Background(), Candidate{LeadID: uuid.New(), Email: "maria.souza@example.com"}, nil)
	if err != nil || res.Recurring {
		t.Fatalf("nil policy must defer, got %+v err=%v", res, err)
	}
}

type failingDirectory struct{ err error }

func (d failingDirectory) FindByIdentifier(context.Context, domain.Identifier, string, uuid.UUID, time.Time) (repository.ClientMatch, error) {
	return repository.ClientMatch{}, d.err
}

func TestDirectoryFailureDegradesToNewClient(t *testing.T) {
	mem := repository.NewMemory()
	r := NewResolver(failingDirectory{err: errors.New("db down")}, mem, mem)
	res, err := r.Resolve(context.Background(), Candidate{LeadID: uuid.New(), Email: "a@b.c"}, baseConfig())
	if err != nil || res.Recurring {
		t.Fatalf("expected new-client fallback, got %+v err=%v", res, err)
	}
}

func TestNormalizers(t *testing.T) {
	if got := NormalizeEmail(" Maria@Example.COM "); got != "maria@example.com" {
		t.Errorf("NormalizeEmail = %q", got)
	}
	if got := NormalizeEmail("not-an-email"); got != "" {
		t.Errorf("expected empty for invalid email, got %q", got)
	}
	if got := NormalizeDocument("123.456.789-09"); got != "12345678909" {
		t.Errorf("NormalizeDocument = %q", got)
	}
	if got := NormalizePhone("12", "BR"); got != "" {
		t.Errorf("expected empty for invalid phone, got %q", got)
	}
}

// Intake resolves leads from many request goroutines at once.
func TestNormalizeEmailConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := fmt.Sprintf("  Cliente.%d@Straße.EXAMPLE ", i)
			want := fmt.Sprintf("cliente.%d@strasse.example", i)
			for j := 0; j < 50; j++ {
				if got := NormalizeEmail(in); got != want {
					errs <- fmt.Sprintf("NormalizeEmail(%q) = %q, want %q", in, got, want)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Error(msg)
	}
}
