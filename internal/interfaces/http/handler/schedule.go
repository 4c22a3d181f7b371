package handler

import (
	"context"

	scheduleapp "github.com/edubill/backend/internal/application/schedule"
	"github.com/edubill/backend/internal/domain/agency"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ScheduleHandler handles payment schedule item endpoints
type ScheduleHandler struct {
	BaseHandler
	service *scheduleapp.Service
}

// NewScheduleHandler creates a new ScheduleHandler
func NewScheduleHandler(service *scheduleapp.Service) *ScheduleHandler {
	return &ScheduleHandler{service: service}
}

// Create godoc
//
//	@Summary	Create a payment schedule item
//	@Tags		schedule-items
//	@Router		/schedule-items [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req scheduleapp.CreateItemRequest
	if !h.bindJSON(c, &req) {
		return
	}

	item, err := h.service.Create(c.Request.Context(), caller, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, item)
}

// Get returns one item
func (h *ScheduleHandler) Get(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	item, err := h.service.Get(c.Request.Context(), caller, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, item)
}

// List returns the items visible to the caller
func (h *ScheduleHandler) List(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req scheduleapp.ListItemsRequest
	if !h.bindQuery(c, &req) {
		return
	}

	items, err := h.service.List(c.Request.Context(), caller, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, items)
}

// Update godoc
//
//	@Summary	Patch a pending payment schedule item
//	@Tags		schedule-items
//	@Router		/schedule-items/{id} [patch]
func (h *ScheduleHandler) Update(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req scheduleapp.UpdateItemRequest
	if !h.bindJSON(c, &req) {
		return
	}

	item, err := h.service.Update(c.Request.Context(), caller, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, item)
}

// Retire deactivates an item with a mandatory reason
func (h *ScheduleHandler) Retire(c *gin.Context) {
	h.withReason(c, h.service.Retire)
}

// Cancel cancels a pending item with a mandatory reason
func (h *ScheduleHandler) Cancel(c *gin.Context) {
	h.withReason(c, h.service.Cancel)
}

// Complete marks an item as fulfilled
func (h *ScheduleHandler) Complete(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	item, err := h.service.Complete(c.Request.Context(), caller, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, item)
}

// Replace retires an item and creates its successor
func (h *ScheduleHandler) Replace(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req scheduleapp.ReplaceItemRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.service.Replace(c.Request.Context(), caller, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// GenerateRecurring expands a recurring parent into its occurrences
func (h *ScheduleHandler) GenerateRecurring(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.service.GenerateRecurring(c.Request.Context(), caller, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// ExpandPending expands every recurring parent in scope that has no
// occurrences yet
func (h *ScheduleHandler) ExpandPending(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	summary, err := h.service.ExpandPending(c.Request.Context(), caller)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// ListOverdue returns active pending items past due, as of ?as_of= or today
func (h *ScheduleHandler) ListOverdue(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	asOf, ok := h.queryDate(c, "as_of")
	if !ok {
		return
	}

	items, err := h.service.ListOverdue(c.Request.Context(), caller, asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, items)
}

// ListUpcoming returns items due within ?days= days
func (h *ScheduleHandler) ListUpcoming(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	days, ok := h.queryInt(c, "days", 0)
	if !ok {
		return
	}

	items, err := h.service.ListUpcoming(c.Request.Context(), caller, days)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, items)
}

type reasonAction func(ctx context.Context, caller agency.Caller, id uuid.UUID, reason string) (*scheduleapp.ItemResponse, error)

func (h *ScheduleHandler) withReason(c *gin.Context, action reasonAction) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req scheduleapp.ReasonRequest
	if !h.bindJSON(c, &req) {
		return
	}

	item, err := action(c.Request.Context(), caller, id, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, item)
}
