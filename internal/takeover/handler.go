package takeover

import (
	"net/http"
	"time"

	"chatflow_backend/platform/httpkit"
	"chatflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
	val     *validator.Validator
}

func NewHandler(service *Service, val *validator.Validator) *Handler {
	return &Handler{service: service, val: val}
}

// StartRequest is the request body for starting or refreshing a takeover.
type StartRequest struct {
	DurationMinutes int `json:"durationMinutes" validate:"omitempty,min=1,max=1440"`
}

// StatusResponse reports whether a takeover is active for a conversation.
type StatusResponse struct {
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// HandleStart starts or refreshes a human takeover.
// POST /api/v1/conversations/:conversationId/takeover
func (h *Handler) HandleStart(c *gin.Context) {
	tenantID, ok := httpkit.GetTenantID(c)
	if !ok {
		return
	}

	conversationID := c.Param("conversationId")
	if conversationID == "" {
		httpkit.Error(c, http.StatusBadRequest, "missing conversation ID", nil)
		return
	}

	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation error", err.Error())
		return
	}

	expiresAt, err := h.service.StartOrRefresh(
		c.Request.Context(), tenantID, conversationID,
		time.Duration(req.DurationMinutes)*time.Minute,
	)
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusOK, StatusResponse{Active: true, ExpiresAt: &expiresAt})
}

// HandleStatus returns the takeover state for a conversation.
// GET /api/v1/conversations/:conversationId/takeover
func (h *Handler) HandleStatus(c *gin.Context) {
	tenantID, ok := httpkit.GetTenantID(c)
	if !ok {
		return
	}

	conversationID := c.Param("conversationId")
	active, err := h.service.IsActive(c.Request.Context(), tenantID, conversationID)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := StatusResponse{Active: active}
	if expiresAt, found, _ := h.service.ExpiresAt(c.Request.Context(), tenantID, conversationID); found {
		resp.ExpiresAt = &expiresAt
	}
	c.JSON(http.StatusOK, resp)
}
