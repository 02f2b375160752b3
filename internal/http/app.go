// Package http holds what the router needs from the composition root: the
// assembled App and the Module contract each domain mounts its routes through.
package http

import (
	"context"

	"cascade_backend/internal/events"
	"cascade_backend/platform/config"
	"cascade_backend/platform/logger"
	"cascade_backend/platform/metrics"

	"github.com/gin-gonic/gin"
)

// HealthChecker backs /api/health. *pgxpool.Pool satisfies it.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is built in cmd/api and handed to router.New.
type App struct {
	Config config.HTTPConfig
	Logger *logger.Logger
	// Health may be nil, in which case /api/health always reports ok.
	Health HealthChecker
	// Metrics instruments every request; nil disables instrumentation.
	Metrics  *metrics.Metrics
	EventBus events.Bus
	Modules  []Module
}

// Module is a domain that owns a set of routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext exposes the route groups modules mount on.
type RouterContext struct {
	Engine *gin.Engine
	// V1 is /api/v1 behind the rate limiter only.
	V1 *gin.RouterGroup
	// Protected is V1 plus a required gateway identity.
	Protected *gin.RouterGroup
}
