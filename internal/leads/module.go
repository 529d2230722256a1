// Package leads provides the minimal lead-state bounded context the
// orchestration engine depends on: conversation identity, pipeline
// stage, last inbound time and the bot-enabled flag.
package leads

import (
	"chatflow_backend/internal/events"
	apphttp "chatflow_backend/internal/http"
	"chatflow_backend/platform/logger"
	"chatflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	service *Service
	handler *Handler
}

// NewModule creates and initializes the leads module with all its dependencies.
func NewModule(pool *pgxpool.Pool, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := New(pool)
	service := NewService(repo, bus, log)
	handler := NewHandler(service, val)

	return &Module{service: service, handler: handler}
}

// Service exposes the lead service for cross-module wiring.
func (m *Module) Service() *Service {
	return m.service
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// RegisterRoutes mounts lead routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/leads")
	group.POST("/:leadId/stage", m.handler.HandleChangeStage)
	group.PUT("/:leadId/contact", m.handler.HandleUpdateContact)
	group.POST("/:leadId/appointments", m.handler.HandleBookAppointment)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
