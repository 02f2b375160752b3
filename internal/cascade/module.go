// Package cascade provides the SLA cascade domain module.
package cascade

import (
	"fmt"
	"time"

	"cascade_backend/internal/cascade/configstore"
	"cascade_backend/internal/cascade/handler"
	"cascade_backend/internal/cascade/identity"
	"cascade_backend/internal/cascade/reporting"
	"cascade_backend/internal/cascade/repository"
	"cascade_backend/internal/cascade/selector"
	"cascade_backend/internal/cascade/service"
	"cascade_backend/internal/email"
	"cascade_backend/internal/events"
	apphttp "cascade_backend/internal/http"
	"cascade_backend/platform/config"
	"cascade_backend/platform/logger"
	"cascade_backend/platform/metrics"
	"cascade_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ModuleConfig is what the module reads from the process config.
type ModuleConfig interface {
	config.EngineConfig
	config.NotificationConfig
}

// Module represents the cascade domain module.
type Module struct {
	handler *handler.Handler

	Service  *service.Service
	Ledger   *repository.Repository
	Configs  *configstore.Store
	Reporter *reporting.Reporter
}

// NewModule wires the cascade module over pool.
func NewModule(pool *pgxpool.Pool, cfg ModuleConfig, val *validator.Validator, bus events.Bus, mail email.Sender, m *metrics.Metrics, log *logger.Logger) (*Module, error) {
	loc, err := time.LoadLocation(cfg.GetTimezone())
	if err != nil {
		return nil, fmt.Errorf("cascade timezone: %w", err)
	}

	repo := repository.New(pool)
	configs := configstore.New(repo, val, configstore.WithDefaultTimezone(cfg.GetTimezone()))
	resolver := identity.NewResolver(repo, repo, repo,
		identity.WithPhoneRegion(cfg.GetPhoneRegion()),
		identity.WithMatchWindow(cfg.GetMatchWindow()),
		identity.WithLogger(log),
	)
	svc := service.New(repo, configs, resolver, selector.New(repo, repo), repo,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithPublisher(bus),
		service.WithLocation(loc),
	)
	reporter := reporting.New(repo, repo, mail,
		reporting.WithLocation(loc),
		reporting.WithBaseURL(cfg.GetAppBaseURL()),
		reporting.WithLogger(log),
		reporting.WithMetrics(m),
	)

	return &Module{
		handler:  handler.New(svc, reporter, val),
		Service:  svc,
		Ledger:   repo,
		Configs:  configs,
		Reporter: reporter,
	}, nil
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "cascade"
}

// RegisterRoutes registers the module's routes under /api/v1/cascade
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/cascade"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
