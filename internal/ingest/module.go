// Package ingest is the webhook ingress: it verifies the platform
// handshake, deduplicates deliveries and translates messaging records
// into domain events.
package ingest

import (
	"chatflow_backend/internal/events"
	apphttp "chatflow_backend/internal/http"
	"chatflow_backend/internal/tenant"
	"chatflow_backend/platform/config"
	"chatflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the ingest bounded context module implementing http.Module.
type Module struct {
	service *Service
	handler *Handler
}

// Config narrows the platform config to what ingest needs.
type Config interface {
	config.WebhookConfig
	config.EngineConfig
}

// NewModule creates and initializes the ingest module with all its dependencies.
func NewModule(pool *pgxpool.Pool, cfg Config, tenants *tenant.Service, leadStore LeadWriter, takeover TakeoverRefresher, bus events.Bus, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	dedup := NewDeduplicator(repo, cfg.GetDedupCacheSize())
	service := NewService(dedup, repo, tenants, leadStore, takeover, bus, log)
	handler := NewHandler(service, cfg, tenants, log)

	return &Module{service: service, handler: handler}
}

// Service exposes the ingest service for worker wiring (pruning).
func (m *Module) Service() *Service {
	return m.service
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "ingest"
}

// RegisterRoutes mounts the webhook on the public v1 group. The
// platform authenticates via the handshake token, not JWT.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/webhook")
	group.GET("/messaging", m.handler.HandleVerify)
	group.POST("/messaging", m.handler.HandleReceive)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
