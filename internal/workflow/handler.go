package workflow

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

// NodeInput mirrors the graph node union as accepted over the wire.
type NodeInput struct {
	ID                   string     `json:"id" validate:"required"`
	Type                 string     `json:"type" validate:"required"`
	TriggerStageID       *uuid.UUID `json:"triggerStageId,omitempty"`
	TriggerOnAppointment bool       `json:"triggerOnAppointment,omitempty"`
	Text                 string     `json:"text,omitempty"`
	DurationMinutes      int        `json:"durationMinutes,omitempty" validate:"omitempty,min=1"`
	Predicate            string     `json:"predicate,omitempty"`
	PredicateStageID     *uuid.UUID `json:"predicateStageId,omitempty"`
	Branches             []string   `json:"branches,omitempty"`
}

type EdgeInput struct {
	From  string `json:"from" validate:"required"`
	To    string `json:"to" validate:"required"`
	Label string `json:"label,omitempty"`
}

// DefinitionRequest is the create/update body for a workflow draft.
type DefinitionRequest struct {
	Name                string      `json:"name" validate:"required,max=200"`
	AllowConcurrentRuns bool        `json:"allowConcurrentRuns"`
	Nodes               []NodeInput `json:"nodes" validate:"dive"`
	Edges               []EdgeInput `json:"edges" validate:"dive"`
}

// DefinitionResponse is the wire shape of a definition.
type DefinitionResponse struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	IsPublished         bool      `json:"isPublished"`
	AllowConcurrentRuns bool      `json:"allowConcurrentRuns"`
	Nodes               []Node    `json:"nodes"`
	Edges               []Edge    `json:"edges"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// RunResponse is the wire shape of a run for inspection endpoints.
type RunResponse struct {
	ID           uuid.UUID  `json:"id"`
	WorkflowID   uuid.UUID  `json:"workflowId"`
	LeadID       uuid.UUID  `json:"leadId"`
	CursorNodeID string     `json:"cursorNodeId"`
	Status       RunStatus  `json:"status"`
	ResumeAt     *time.Time `json:"resumeAt,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func toDefinitionResponse(def Definition) DefinitionResponse {
	return DefinitionResponse{
		ID:                  def.ID,
		Name:                def.Name,
		IsPublished:         def.IsPublished,
		AllowConcurrentRuns: def.AllowConcurrentRuns,
		Nodes:               def.Nodes,
		Edges:               def.Edges,
		CreatedAt:           def.CreatedAt,
		UpdatedAt:           def.UpdatedAt,
	}
}

func toRunResponse(run Run) RunResponse {
	return RunResponse{
		ID:           run.ID,
		WorkflowID:   run.WorkflowID,
		LeadID:       run.LeadID,
		CursorNodeID: run.CursorNodeID,
		Status:       run.Status,
		ResumeAt:     run.ResumeAt,
		StartedAt:    run.StartedAt,
		UpdatedAt:    run.UpdatedAt,
	}
}

func (h *Handler) bindDefinition(c *gin.Context, tenantID uuid.UUID) (Definition, bool) {
	var req DefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return Definition{}, false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation error", err.Error())
		return Definition{}, false
	}

	def := Definition{
		TenantID:            tenantID,
		Name:                req.Name,
		AllowConcurrentRuns: req.AllowConcurrentRuns,
		Nodes:               make([]Node, 0, len(req.Nodes)),
		Edges:               make([]Edge, 0, len(req.Edges)),
	}
	for _, n := range req.Nodes {
		def.Nodes = append(def.Nodes, Node{
			ID:                   n.ID,
			Type:                 NodeType(n.Type),
			TriggerStageID:       n.TriggerStageID,
			TriggerOnAppointment: n.TriggerOnAppointment,
			Text:                 n.Text,
			DurationMinutes:      n.DurationMinutes,
			Predicate:            n.Predicate,
			PredicateStageID:     n.PredicateStageID,
			Branches:             n.Branches,
		})
	}
	for _, e := range req.Edges {
		def.Edges = append(def.Edges, Edge{From: e.From, To: e.To, Label: e.Label})
	}
	return def, true
}

// HandleCreate creates a new draft workflow.
// POST /api/v1/workflows
func (h *Handler) HandleCreate(c *gin.Context) {
	tenantID, ok := httpkit.GetTenantID(c)
	if !ok {
		return
	}
	def, ok := h.bindDefinition(c, tenantID)
	if !ok {
		return
	}
	if err := h.service.CreateDraft(c.Request.Context(), &def); httpkit.HandleError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, toDefinitionResponse(def))
}

// HandleUpdate replaces a workflow's graph and unpublishes it.
// PUT /api/v1/workflows/:workflowId
func (h *Handler) HandleUpdate(c *gin.Context) {
	tenantID, ok := httpkit.GetTenantID(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("workflowId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid workflow ID", nil)
		return
	}
	def, ok := h.bindDefinition(c, tenantID)
	if !ok {
		return
	}
	def.ID = id
	if err := h.service.UpdateDraft(c.Request.Context(), &def); httpkit.HandleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, toDefinitionResponse(def))
}

// HandleGet returns one workflow definition.
// GET /api/v1/workflows/:workflowId
func (h *Handler) HandleGet(c *gin.Context) {
	tenantID, ok := httpkit.GetTenantID(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("workflowId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid workflow ID", nil)
		return
	}
	def, err := h.service.Get(c.Request.Context(), id, tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, toDefinitionResponse(def))
}

// HandleList returns all of the tenant's workflows.
// GET /api/v1/workflows
func (h *Handler) HandleList(c *gin.Context) {
	tenantID, ok := httpkit.GetTenantID(c)
	if !ok {
		return
	}
	defs, err := h.service.List(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	out := make([]DefinitionResponse, 0, len(defs))
	for _, def := range defs {
		out = append(out, toDefinitionResponse(def))
	}
	c.JSON(http.StatusOK, out)
}

// HandlePublish validates and publishes a workflow.
// POST /api/v1/workflows/:workflowId/publish
func (h *Handler) HandlePublish(c *gin.Context) {
	h.setPublished(c, true)
}

// HandleUnpublish takes a workflow out of dispatch.
// POST /api/v1/workflows/:workflowId/unpublish
func (h *Handler) HandleUnpublish(c *gin.Context) {
	h.setPublished(c, false)
}

func (h *Handler) setPublished(c *gin.Context, published bool) {
	tenantID, ok := httpkit.GetTenantID(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("workflowId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid workflow ID", nil)
		return
	}

	var def Definition
	if published {
		def, err = h.service.Publish(c.Request.Context(), id, tenantID)
	} else {
		def, err = h.service.Unpublish(c.Request.Context(), id, tenantID)
	}
	if httpkit.HandleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, toDefinitionResponse(def))
}

// HandleListRuns returns the run history of a workflow.
// GET /api/v1/workflows/:workflowId/runs
func (h *Handler) HandleListRuns(c *gin.Context) {
	tenantID, ok := httpkit.GetTenantID(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("workflowId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid workflow ID", nil)
		return
	}
	runs, err := h.service.ListRuns(c.Request.Context(), id, tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	out := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunResponse(run))
	}
	c.JSON(http.StatusOK, out)
}

// HandleResumeDue claims and advances due runs.
// POST /api/v1/poll/workflow-runs
func (h *Handler) HandleResumeDue(c *gin.Context) {
	result, err := h.service.ResumeDue(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	c.JSON(http.StatusOK, result)
}
