package router

import (
	"github.com/edubill/backend/internal/interfaces/http/handler"
)

// Handlers are the HTTP handlers of the billing API
type Handlers struct {
	Agencies     *handler.AgencyHandler
	Schedule     *handler.ScheduleHandler
	Transactions *handler.TransactionHandler
	History      *handler.HistoryHandler
}

// BillingResources returns the tenant-scoped resources
func BillingResources(h Handlers) []*Resource {
	agencies := NewResource("agencies", "/agencies").
		POST("", h.Agencies.Register).
		GET("/count", h.Agencies.Count).
		GET("/:id", h.Agencies.Get)

	items := NewResource("schedule-items", "/schedule-items").
		POST("", h.Schedule.Create).
		GET("", h.Schedule.List).
		GET("/overdue", h.Schedule.ListOverdue).
		GET("/upcoming", h.Schedule.ListUpcoming).
		POST("/expand-recurring", h.Schedule.ExpandPending).
		GET("/:id", h.Schedule.Get).
		PATCH("/:id", h.Schedule.Update).
		POST("/:id/retire", h.Schedule.Retire).
		POST("/:id/replace", h.Schedule.Replace).
		POST("/:id/complete", h.Schedule.Complete).
		POST("/:id/cancel", h.Schedule.Cancel).
		POST("/:id/generate-recurring", h.Schedule.GenerateRecurring)

	transactions := NewResource("transactions", "/transactions").
		POST("", h.Transactions.Create).
		GET("", h.Transactions.List).
		POST("/generate", h.Transactions.Generate).
		POST("/flag-overdue", h.Transactions.FlagOverdue).
		GET("/overdue", h.Transactions.ListOverdue).
		GET("/disputed", h.Transactions.ListDisputed).
		GET("/revenue-summary", h.Transactions.RevenueSummary).
		GET("/:id", h.Transactions.Get).
		PATCH("/:id", h.Transactions.Update).
		GET("/:id/timeline", h.History.Timeline).
		POST("/:id/status", h.Transactions.UpdateStatus).
		POST("/:id/claim", h.Transactions.Claim).
		POST("/:id/pay", h.Transactions.MarkAsPaid).
		POST("/:id/dispute", h.Transactions.Dispute).
		POST("/:id/resolve-dispute", h.Transactions.ResolveDispute).
		POST("/:id/cancel", h.Transactions.Cancel).
		POST("/:id/refund", h.Transactions.Refund).
		POST("/:id/approvals", h.Transactions.AddApproval).
		POST("/:id/reconcile", h.Transactions.Reconcile)

	events := NewResource("billing-events", "/billing-events").
		GET("/summary", h.History.ActivitySummary).
		GET("/users/:userId", h.History.UserActivity).
		POST("/:id/hide", h.History.Hide).
		PATCH("/:id", h.History.Amend).
		DELETE("/:id", h.History.Delete)

	return []*Resource{agencies, items, transactions, events}
}

// SystemResource returns the unauthenticated system routes
func SystemResource(h *handler.SystemHandler) *Resource {
	return NewResource("system", "/system").
		GET("/info", h.GetSystemInfo).
		GET("/ping", h.Ping)
}
