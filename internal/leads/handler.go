package leads

import (
	"net/http"
	"time"

	"chatflow_backend/platform/httpkit"
	"chatflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	service *Service
	val     *validator.Validator
}

func NewHandler(service *Service, val *validator.Validator) *Handler {
	return &Handler{service: service, val: val}
}

// ChangeStageRequest is the request body for moving a lead to a new stage.
type ChangeStageRequest struct {
	StageID uuid.UUID `json:"stageId" validate:"required"`
}

// HandleChangeStage moves a lead to a new pipeline stage.
// POST /api/v1/leads/:leadId/stage
func (h *Handler) HandleChangeStage(c *gin.Context) {
	tenantID, ok := httpkit.GetTenantID(c)
	if !ok {
		return
	}

	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid lead ID", nil)
		return
	}

	var req ChangeStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation error", err.Error())
		return
	}

	if err := h.service.ChangeStage(c.Request.Context(), leadID, tenantID, req.StageID); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateContactRequest is the request body for editing lead contact details.
type UpdateContactRequest struct {
	FirstName string  `json:"firstName" validate:"max=100"`
	LastName  string  `json:"lastName" validate:"max=100"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,max=30"`
}

// HandleUpdateContact edits a lead's contact details.
// PUT /api/v1/leads/:leadId/contact
func (h *Handler) HandleUpdateContact(c *gin.Context) {
	tenantID, ok := httpkit.GetTenantID(c)
	if !ok {
		return
	}

	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid lead ID", nil)
		return
	}

	var req UpdateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation error", err.Error())
		return
	}

	if err := h.service.UpdateContact(c.Request.Context(), leadID, tenantID, req.FirstName, req.LastName, req.Phone); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// BookAppointmentRequest is the request body for booking an appointment.
type BookAppointmentRequest struct {
	StartTime time.Time `json:"startTime" validate:"required"`
}

// HandleBookAppointment books an appointment for a lead.
// POST /api/v1/leads/:leadId/appointments
func (h *Handler) HandleBookAppointment(c *gin.Context) {
	tenantID, ok := httpkit.GetTenantID(c)
	if !ok {
		return
	}

	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid lead ID", nil)
		return
	}

	var req BookAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation error", err.Error())
		return
	}

	appointmentID, err := h.service.BookAppointment(c.Request.Context(), leadID, tenantID, req.StartTime)
	if httpkit.HandleError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"appointmentId": appointmentID})
}
