// Package followup re-engages leads that stopped replying, pacing the
// nudges along a tenant-configured backoff ladder inside the tenant's
// active hours.
package followup

import (
	"chatflow_backend/internal/events"
	apphttp "chatflow_backend/internal/http"
	"chatflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the followup bounded context module implementing http.Module.
type Module struct {
	service *Service
	handler *Handler
}

// NewModule creates and initializes the followup module with all its dependencies.
func NewModule(pool *pgxpool.Pool, sender Sender, takeover TakeoverChecker, bus events.Bus, batchSize int, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	service := NewService(repo, sender, takeover, batchSize, log)
	service.Register(bus)
	handler := NewHandler(service)

	return &Module{service: service, handler: handler}
}

// Service exposes follow-up sending for worker wiring.
func (m *Module) Service() *Service {
	return m.service
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "followup"
}

// RegisterRoutes mounts the follow-up poll endpoint.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Poller.POST("/follow-ups", m.handler.HandleSendDue)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
