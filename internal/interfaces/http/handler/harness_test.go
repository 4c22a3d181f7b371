package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edubill/backend/internal/bootstrap"
	"github.com/edubill/backend/internal/infrastructure/cache"
	"github.com/edubill/backend/internal/infrastructure/config"
	"github.com/edubill/backend/internal/infrastructure/persistence"
	"github.com/edubill/backend/internal/infrastructure/persistence/models"
	"github.com/edubill/backend/internal/interfaces/http/dto"
	"github.com/edubill/backend/internal/interfaces/http/middleware"
	"github.com/edubill/backend/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// apiHarness serves the billing handlers over a migrated in-memory database
type apiHarness struct {
	t         *testing.T
	db        *gorm.DB
	engine    *gin.Engine
	services  *bootstrap.Services
	published *testutil.RecordingPublisher
	accountID uuid.UUID
	agencyID  uuid.UUID
	actorID   uuid.UUID
	offer     models.OfferLetterModel
}

type apiResponse struct {
	Code int
	Body dto.Response
	Raw  []byte
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	database, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, persistence.AutoMigrate(database.DB))

	h := &apiHarness{
		t:         t,
		db:        database.DB,
		published: testutil.NewRecordingPublisher(),
		actorID:   uuid.New(),
	}
	h.accountID = h.seedAccount("Northwind Education")
	h.agencyID = h.seedAgency(h.accountID, "Sydney Branch")
	h.offer = h.seedOffer(h.accountID, h.agencyID)

	locks := cache.NewInMemoryLockStore()
	t.Cleanup(func() { _ = locks.Close() })

	h.services = bootstrap.NewServices(bootstrap.Deps{
		DB:        h.db,
		Locks:     locks,
		Publisher: h.published,
	})
	h.services.Schedule.SetClock(testutil.FixedClock(testutil.Now))
	h.services.Transactions.SetClock(testutil.FixedClock(testutil.Now))

	middleware.SetupValidator()
	h.engine = gin.New()
	h.engine.Use(middleware.RequestID())
	cfg := middleware.DefaultTenantConfig()
	cfg.Checker = h.services.Guard
	api := h.engine.Group("/api/v1", middleware.TenantMiddlewareWithConfig(cfg))

	agencies := NewAgencyHandler(h.services.Agencies)
	api.POST("/agencies", agencies.Register)
	api.GET("/agencies/count", agencies.Count)
	api.GET("/agencies/:id", agencies.Get)

	items := NewScheduleHandler(h.services.Schedule)
	api.POST("/schedule-items", items.Create)
	api.GET("/schedule-items", items.List)
	api.GET("/schedule-items/overdue", items.ListOverdue)
	api.GET("/schedule-items/upcoming", items.ListUpcoming)
	api.POST("/schedule-items/expand-recurring", items.ExpandPending)
	api.GET("/schedule-items/:id", items.Get)
	api.PATCH("/schedule-items/:id", items.Update)
	api.POST("/schedule-items/:id/retire", items.Retire)
	api.POST("/schedule-items/:id/replace", items.Replace)
	api.POST("/schedule-items/:id/complete", items.Complete)
	api.POST("/schedule-items/:id/cancel", items.Cancel)
	api.POST("/schedule-items/:id/generate-recurring", items.GenerateRecurring)

	txs := NewTransactionHandler(h.services.Transactions)
	events := NewHistoryHandler(h.services.History)
	api.POST("/transactions", txs.Create)
	api.GET("/transactions", txs.List)
	api.POST("/transactions/generate", txs.Generate)
	api.POST("/transactions/flag-overdue", txs.FlagOverdue)
	api.GET("/transactions/overdue", txs.ListOverdue)
	api.GET("/transactions/disputed", txs.ListDisputed)
	api.GET("/transactions/revenue-summary", txs.RevenueSummary)
	api.GET("/transactions/:id", txs.Get)
	api.PATCH("/transactions/:id", txs.Update)
	api.GET("/transactions/:id/timeline", events.Timeline)
	api.POST("/transactions/:id/status", txs.UpdateStatus)
	api.POST("/transactions/:id/claim", txs.Claim)
	api.POST("/transactions/:id/pay", txs.MarkAsPaid)
	api.POST("/transactions/:id/dispute", txs.Dispute)
	api.POST("/transactions/:id/resolve-dispute", txs.ResolveDispute)
	api.POST("/transactions/:id/cancel", txs.Cancel)
	api.POST("/transactions/:id/refund", txs.Refund)
	api.POST("/transactions/:id/approvals", txs.AddApproval)
	api.POST("/transactions/:id/reconcile", txs.Reconcile)
	api.GET("/billing-events/summary", events.ActivitySummary)
	api.GET("/billing-events/users/:userId", events.UserActivity)
	api.POST("/billing-events/:id/hide", events.Hide)
	api.PATCH("/billing-events/:id", events.Amend)
	api.DELETE("/billing-events/:id", events.Delete)

	return h
}

func (h *apiHarness) seedAccount(name string) uuid.UUID {
	account := models.AccountModel{Name: name, IsActive: true}
	account.ID = uuid.New()
	require.NoError(h.t, h.db.Create(&account).Error)
	return account.ID
}

func (h *apiHarness) seedAgency(accountID uuid.UUID, name string) uuid.UUID {
	ag := models.AgencyModel{AccountID: accountID, Name: name, IsActive: true}
	ag.ID = uuid.New()
	require.NoError(h.t, h.db.Create(&ag).Error)
	return ag.ID
}

func (h *apiHarness) seedOffer(accountID, agencyID uuid.UUID) models.OfferLetterModel {
	offer := models.OfferLetterModel{AccountID: accountID, AgencyID: agencyID, StudentID: uuid.New(), IsActive: true}
	offer.ID = uuid.New()
	require.NoError(h.t, h.db.Create(&offer).Error)
	return offer
}

// as returns headers for an account-wide caller of the given account
func (h *apiHarness) as(accountID uuid.UUID) map[string]string {
	return map[string]string{
		middleware.TenantHeaderKey: accountID.String(),
		middleware.UserHeaderKey:   h.actorID.String(),
	}
}

func (h *apiHarness) owner() map[string]string {
	return h.as(h.accountID)
}

func (h *apiHarness) admin() map[string]string {
	headers := h.owner()
	headers[middleware.RoleHeaderKey] = middleware.PrivilegedRole
	return headers
}

func (h *apiHarness) do(method, path string, body any, headers map[string]string) apiResponse {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)

	resp := apiResponse{Code: w.Code, Raw: w.Body.Bytes()}
	if w.Body.Len() > 0 {
		require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), &resp.Body), w.Body.String())
	}
	return resp
}

// data decodes the data field of a successful response into out
func (r apiResponse) data(t *testing.T, out any) {
	t.Helper()
	raw, err := json.Marshal(r.Body.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func (r apiResponse) errorCode() string {
	if r.Body.Error == nil {
		return ""
	}
	return r.Body.Error.Code
}

// createItem posts a pending tuition item for the seeded offer letter
func (h *apiHarness) createItem(amount, dueDate string) map[string]any {
	h.t.Helper()
	resp := h.do(http.MethodPost, "/api/v1/schedule-items", map[string]any{
		"agency_id":       h.agencyID,
		"offer_letter_id": h.offer.ID,
		"item_type":       "tuition",
		"description":     "Semester tuition",
		"amount":          amount,
		"currency":        "AUD",
		"due_date":        dueDate + "T00:00:00Z",
	}, h.owner())
	require.Equal(h.t, http.StatusCreated, resp.Code, string(resp.Raw))
	var item map[string]any
	resp.data(h.t, &item)
	return item
}

// createTransaction posts a manual pending invoice
func (h *apiHarness) createTransaction(amount string) map[string]any {
	h.t.Helper()
	resp := h.do(http.MethodPost, "/api/v1/transactions", map[string]any{
		"agency_id":        h.agencyID,
		"debtor_type":      "student",
		"debtor_id":        h.offer.StudentID,
		"amount":           amount,
		"currency":         "AUD",
		"transaction_type": "invoice",
		"due_date":         "2024-03-01T00:00:00Z",
	}, h.owner())
	require.Equal(h.t, http.StatusCreated, resp.Code, string(resp.Raw))
	var tx map[string]any
	resp.data(h.t, &tx)
	return tx
}
