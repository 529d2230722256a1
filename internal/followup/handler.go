package followup

import (
	"net/http"

	"chatflow_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleSendDue claims and sends due follow-ups.
// POST /api/v1/poll/follow-ups
func (h *Handler) HandleSendDue(c *gin.Context) {
	result, err := h.service.SendDue(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, result)
}
