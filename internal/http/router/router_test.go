package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apphttp "cascade_backend/internal/http"
	"cascade_backend/platform/httpkit"
	"cascade_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type httpConfig struct{}

func (httpConfig) GetHTTPAddr() string      { return ":0" }
func (httpConfig) GetMetricsAddr() string   { return ":0" }
func (httpConfig) GetCORSAllowAll() bool    { return false }
func (httpConfig) GetCORSOrigins() []string { return []string{"http://crm.local"} }
func (httpConfig) GetCORSAllowCreds() bool  { return false }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type echoModule struct{}

func (echoModule) Name() string { return "echo" }

func (echoModule) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/echo", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	ctx.V1.GET("/open", func(c *gin.Context) { c.String(http.StatusOK, "open") })
}

func newEngine(health apphttp.HealthChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return New(&apphttp.App{
		Config:  httpConfig{},
		Logger:  logger.Discard(),
		Health:  health,
		Modules: []apphttp.Module{echoModule{}},
	})
}

func TestHealthReflectsDatabase(t *testing.T) {
	w := httptest.NewRecorder()
	newEngine(pinger{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(httpkit.HeaderRequestID))

	w = httptest.NewRecorder()
	newEngine(pinger{err: errors.New("down")}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestProtectedGroupNeedsIdentity(t *testing.T) {
	engine := newEngine(pinger{})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/echo", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/echo", nil)
	req.Header.Set(httpkit.HeaderUserID, uuid.NewString())
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/open", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(httpkit.HeaderRequestID, "req-123")
	w := httptest.NewRecorder()
	newEngine(nil).ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(httpkit.HeaderRequestID))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
