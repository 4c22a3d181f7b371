package handler

import (
	"context"

	billingapp "github.com/edubill/backend/internal/application/billing"
	"github.com/edubill/backend/internal/domain/agency"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TransactionHandler handles billing transaction endpoints
type TransactionHandler struct {
	BaseHandler
	service *billingapp.TransactionService
}

// NewTransactionHandler creates a new TransactionHandler
func NewTransactionHandler(service *billingapp.TransactionService) *TransactionHandler {
	return &TransactionHandler{service: service}
}

// Create godoc
//
//	@Summary	Create a billing transaction manually
//	@Tags		transactions
//	@Router		/transactions [post]
func (h *TransactionHandler) Create(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req billingapp.CreateTransactionRequest
	if !h.bindJSON(c, &req) {
		return
	}

	tx, err := h.service.Create(c.Request.Context(), caller, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, tx)
}

// Get returns one transaction
func (h *TransactionHandler) Get(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	tx, err := h.service.Get(c.Request.Context(), caller, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tx)
}

// List returns transactions in scope
func (h *TransactionHandler) List(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req billingapp.ListTransactionsRequest
	if !h.bindQuery(c, &req) {
		return
	}

	txs, err := h.service.List(c.Request.Context(), caller, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, txs)
}

// Update godoc
//
//	@Summary	Patch a transaction's mutable fields
//	@Tags		transactions
//	@Router		/transactions/{id} [patch]
func (h *TransactionHandler) Update(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req billingapp.UpdateTransactionRequest
	if !h.bindJSON(c, &req) {
		return
	}

	tx, err := h.service.Update(c.Request.Context(), caller, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tx)
}

// UpdateStatus moves a transaction to the requested status
func (h *TransactionHandler) UpdateStatus(c *gin.Context) {
	handleTransition(h, c, true, h.service.UpdateStatus)
}

// Claim submits a pending transaction for payment
func (h *TransactionHandler) Claim(c *gin.Context) {
	handleTransition(h, c, false, h.service.Claim)
}

// MarkAsPaid records a payment
func (h *TransactionHandler) MarkAsPaid(c *gin.Context) {
	handleTransition(h, c, false, h.service.MarkAsPaid)
}

// Dispute opens a dispute
func (h *TransactionHandler) Dispute(c *gin.Context) {
	handleTransition(h, c, true, h.service.Dispute)
}

// ResolveDispute closes a dispute as paid, cancelled or refunded
func (h *TransactionHandler) ResolveDispute(c *gin.Context) {
	handleTransition(h, c, true, h.service.ResolveDispute)
}

// Cancel cancels a transaction
func (h *TransactionHandler) Cancel(c *gin.Context) {
	handleTransition(h, c, false, h.service.Cancel)
}

// Refund refunds a paid transaction
func (h *TransactionHandler) Refund(c *gin.Context) {
	handleTransition(h, c, false, h.service.Refund)
}

// AddApproval appends a sign-off
func (h *TransactionHandler) AddApproval(c *gin.Context) {
	handleTransition(h, c, true, h.service.AddApproval)
}

// Reconcile matches a paid transaction against a bank statement
func (h *TransactionHandler) Reconcile(c *gin.Context) {
	handleTransition(h, c, true, h.service.Reconcile)
}

// Generate godoc
//
//	@Summary	Realize due schedule items as pending transactions
//	@Tags		transactions
//	@Router		/transactions/generate [post]
func (h *TransactionHandler) Generate(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req billingapp.GenerateRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	result, err := h.service.GenerateFromScheduleItems(c.Request.Context(), caller, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ListOverdue returns unpaid transactions past due
func (h *TransactionHandler) ListOverdue(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	asOf, ok := h.queryDate(c, "as_of")
	if !ok {
		return
	}

	txs, err := h.service.ListOverdue(c.Request.Context(), caller, asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, txs)
}

// ListDisputed returns transactions under dispute
func (h *TransactionHandler) ListDisputed(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	txs, err := h.service.ListDisputed(c.Request.Context(), caller)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, txs)
}

// RevenueSummary groups amounts by status and type over ?from=&to=
func (h *TransactionHandler) RevenueSummary(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req billingapp.RevenueSummaryRequest
	if !h.bindQuery(c, &req) {
		return
	}

	summary, err := h.service.RevenueSummary(c.Request.Context(), caller, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// FlagOverdue marks past-due claimed transactions as overdue
func (h *TransactionHandler) FlagOverdue(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	asOf, ok := h.queryDate(c, "as_of")
	if !ok {
		return
	}

	result, err := h.service.FlagOverdue(c.Request.Context(), caller, asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

type transitionFunc[R any] func(ctx context.Context, caller agency.Caller, id uuid.UUID, req R) (*billingapp.TransactionResponse, error)

// handleTransition runs one state-machine operation. Bodies of operations
// whose fields are all optional may be omitted.
func handleTransition[R any](h *TransactionHandler, c *gin.Context, bodyRequired bool, action transitionFunc[R]) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req R
	bind := h.bindOptionalJSON
	if bodyRequired {
		bind = h.bindJSON
	}
	if !bind(c, &req) {
		return
	}

	tx, err := action(c.Request.Context(), caller, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tx)
}
