package takeover

import (
	"chatflow_backend/internal/events"
	apphttp "chatflow_backend/internal/http"
	"chatflow_backend/platform/logger"
	"chatflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the takeover bounded context module implementing http.Module.
type Module struct {
	service *Service
	handler *Handler
}

// NewModule creates and initializes the takeover module with all its dependencies.
func NewModule(pool *pgxpool.Pool, durations DurationResolver, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := New(pool)
	service := NewService(repo, durations, bus, log)
	handler := NewHandler(service, val)

	return &Module{service: service, handler: handler}
}

// Service exposes the arbiter for cross-module wiring.
func (m *Module) Service() *Service {
	return m.service
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "takeover"
}

// RegisterRoutes mounts takeover routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/conversations/:conversationId/takeover")
	group.POST("", m.handler.HandleStart)
	group.GET("", m.handler.HandleStatus)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
