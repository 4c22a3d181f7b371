package handler

import (
	historyapp "github.com/edubill/backend/internal/application/history"
	"github.com/gin-gonic/gin"
)

// HistoryHandler exposes the billing event audit trail
type HistoryHandler struct {
	BaseHandler
	service *historyapp.Service
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(service *historyapp.Service) *HistoryHandler {
	return &HistoryHandler{service: service}
}

// Timeline godoc
//
//	@Summary	Chronological audit trail of one transaction
//	@Tags		billing-events
//	@Param		include_hidden	query	bool	false	"Include hidden records (privileged callers only)"
//	@Router		/transactions/{id}/timeline [get]
func (h *HistoryHandler) Timeline(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	events, err := h.service.Timeline(c.Request.Context(), caller, id, c.Query("include_hidden") == "true")
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, events)
}

// ActivitySummary counts visible events per type over a window
func (h *HistoryHandler) ActivitySummary(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req historyapp.WindowRequest
	if !h.bindQuery(c, &req) {
		return
	}

	summary, err := h.service.ActivitySummary(c.Request.Context(), caller, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// UserActivity returns the events one actor triggered
func (h *HistoryHandler) UserActivity(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	userID, ok := h.pathID(c, "userId")
	if !ok {
		return
	}
	var req historyapp.UserActivityRequest
	if !h.bindQuery(c, &req) {
		return
	}

	events, err := h.service.UserActivity(c.Request.Context(), caller, userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, events)
}

// Hide soft-deletes a record
func (h *HistoryHandler) Hide(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	event, err := h.service.Hide(c.Request.Context(), caller, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, event)
}

// Amend patches the writable fields of a record. Frozen fields are refused
// with 409 IMMUTABLE_RECORD_VIOLATION.
func (h *HistoryHandler) Amend(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req historyapp.AmendRequest
	if !h.bindJSON(c, &req) {
		return
	}

	event, err := h.service.Amend(c.Request.Context(), caller, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, event)
}

// Delete is always refused with 405 DELETE_FORBIDDEN
func (h *HistoryHandler) Delete(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	h.HandleError(c, h.service.Delete(c.Request.Context(), caller, id))
}
