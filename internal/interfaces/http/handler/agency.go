package handler

import (
	agencyapp "github.com/edubill/backend/internal/application/agency"
	"github.com/gin-gonic/gin"
)

// AgencyHandler handles agency registration and lookup
type AgencyHandler struct {
	BaseHandler
	service *agencyapp.Service
}

// NewAgencyHandler creates a new AgencyHandler
func NewAgencyHandler(service *agencyapp.Service) *AgencyHandler {
	return &AgencyHandler{service: service}
}

// Register godoc
//
//	@Summary	Register an agency in the caller's account
//	@Tags		agencies
//	@Router		/agencies [post]
func (h *AgencyHandler) Register(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	var req agencyapp.RegisterAgencyRequest
	if !h.bindJSON(c, &req) {
		return
	}

	ag, err := h.service.Register(c.Request.Context(), caller, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, ag)
}

func (h *AgencyHandler) Get(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	ag, err := h.service.Get(c.Request.Context(), caller, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ag)
}

func (h *AgencyHandler) Count(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	count, err := h.service.Count(c.Request.Context(), caller)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, count)
}
