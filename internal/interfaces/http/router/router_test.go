package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/edubill/backend/internal/bootstrap"
	"github.com/edubill/backend/internal/infrastructure/cache"
	"github.com/edubill/backend/internal/infrastructure/config"
	"github.com/edubill/backend/internal/infrastructure/persistence"
	"github.com/edubill/backend/internal/infrastructure/persistence/models"
	"github.com/edubill/backend/internal/interfaces/http/dto"
	"github.com/edubill/backend/internal/interfaces/http/handler"
	"github.com/edubill/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMount(t *testing.T) {
	engine := gin.New()
	var order []string
	tag := func(name string) gin.HandlerFunc {
		return func(c *gin.Context) {
			order = append(order, name)
			c.Next()
		}
	}

	items := NewResource("schedule-items", "/schedule-items").
		Guard(tag("tenant"), tag("rate")).
		GET("/:id", func(c *gin.Context) { c.String(http.StatusOK, c.Param("id")) }).
		PATCH("/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	assert.Equal(t, "schedule-items", items.Name())
	assert.Equal(t, []string{"GET /schedule-items/:id", "PATCH /schedule-items/:id"}, items.Endpoints())

	Mount(engine, "v2", items)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/schedule-items/7", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7", w.Body.String())
	assert.Equal(t, []string{"tenant", "rate"}, order)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/schedule-items/7", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	other := gin.New()
	Mount(other, "", NewResource("system", "/system").GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) }))
	w = httptest.NewRecorder()
	other.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/system/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

type testServer struct {
	engine    *Engine
	accountID uuid.UUID
}

func newTestServer(t *testing.T, httpCfg config.HTTPConfig) *testServer {
	t.Helper()
	database, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, persistence.AutoMigrate(database.DB))

	account := models.AccountModel{Name: "Northwind Education", IsActive: true}
	account.ID = uuid.New()
	require.NoError(t, database.DB.Create(&account).Error)

	locks := cache.NewInMemoryLockStore()
	t.Cleanup(func() { _ = locks.Close() })
	services := bootstrap.NewServices(bootstrap.Deps{DB: database.DB, Locks: locks})

	engine, err := NewEngine(EngineOptions{
		HTTP:        httpCfg,
		ServiceName: "edubill-test",
		Checker:     services.Guard,
		Logger:      zaptest.NewLogger(t),
		Handlers: Handlers{
			Agencies:     handler.NewAgencyHandler(services.Agencies),
			Schedule:     handler.NewScheduleHandler(services.Schedule),
			Transactions: handler.NewTransactionHandler(services.Transactions),
			History:      handler.NewHistoryHandler(services.History),
		},
		System: handler.NewSystemHandler("edubill-test", "0.0.0", database),
	})
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return &testServer{engine: engine, accountID: account.ID}
}

func (s *testServer) get(path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) owner() map[string]string {
	return map[string]string{
		middleware.TenantHeaderKey: s.accountID.String(),
		middleware.UserHeaderKey:   uuid.NewString(),
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestNewEngine_Unauthenticated(t *testing.T) {
	s := newTestServer(t, config.HTTPConfig{})

	w := s.get("/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))

	w = s.get("/api/v1/system/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewEngine_BillingRoutesRequireTenant(t *testing.T) {
	s := newTestServer(t, config.HTTPConfig{})

	w := s.get("/api/v1/transactions", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, w))

	w = s.get("/api/v1/transactions", map[string]string{
		middleware.TenantHeaderKey: uuid.NewString(),
		middleware.UserHeaderKey:   uuid.NewString(),
	})
	assert.Equal(t, http.StatusForbidden, w.Code, "unknown account")

	w = s.get("/api/v1/transactions", s.owner())
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestNewEngine_RateLimit(t *testing.T) {
	s := newTestServer(t, config.HTTPConfig{RateLimit: 2, RateLimitWindow: time.Hour})
	headers := s.owner()

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, s.get("/api/v1/schedule-items", headers).Code)
	}
	w := s.get("/api/v1/schedule-items", headers)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", errorCode(t, w))

	assert.Equal(t, http.StatusOK, s.get("/health", nil).Code, "health is not rate limited")
}

func TestNewEngine_BodyLimit(t *testing.T) {
	s := newTestServer(t, config.HTTPConfig{MaxBodySize: 16})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agencies",
		strings.NewReader(`{"name":"A branch name well past sixteen bytes"}`))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.owner() {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestNewEngine_Routes(t *testing.T) {
	s := newTestServer(t, config.HTTPConfig{})

	routes := make(map[string]bool)
	for _, r := range s.engine.Routes() {
		routes[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /api/v1/system/info",
		"POST /api/v1/agencies",
		"POST /api/v1/schedule-items/:id/generate-recurring",
		"POST /api/v1/schedule-items/expand-recurring",
		"POST /api/v1/transactions/generate",
		"POST /api/v1/transactions/:id/reconcile",
		"GET /api/v1/transactions/:id/timeline",
		"DELETE /api/v1/billing-events/:id",
	} {
		assert.True(t, routes[want], want)
	}
}
