// Package workflow implements the automation engine: tenant-authored
// node/edge graphs, resumable runs driven by a cursor state machine,
// and the trigger dispatcher that starts runs from pipeline events.
package workflow

import (
	"chatflow_backend/internal/events"
	apphttp "chatflow_backend/internal/http"
	"chatflow_backend/platform/logger"
	"chatflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the workflow bounded context module implementing http.Module.
type Module struct {
	service    *Service
	runner     *Runner
	dispatcher *Dispatcher
	handler    *Handler
}

// NewModule creates and initializes the workflow module. The sender
// and takeover checker come from other modules; the dispatcher is
// subscribed to the bus here so run creation starts as soon as the
// module exists.
func NewModule(pool *pgxpool.Pool, leadStore LeadStore, sender MessageSender, takeover TakeoverChecker, bus events.Bus, val *validator.Validator, batchSize int, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	runner := NewRunner(repo, repo, leadStore, sender, takeover, bus, log)
	service := NewService(repo, runner, batchSize, log)
	dispatcher := NewDispatcher(repo, runner, log)
	dispatcher.Register(bus)
	handler := NewHandler(service, val)

	return &Module{service: service, runner: runner, dispatcher: dispatcher, handler: handler}
}

// Runner exposes the executor for scheduler wiring.
func (m *Module) Runner() *Runner {
	return m.runner
}

// Service exposes run resumption for worker wiring.
func (m *Module) Service() *Service {
	return m.service
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "workflow"
}

// RegisterRoutes mounts workflow routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/workflows")
	group.POST("", m.handler.HandleCreate)
	group.GET("", m.handler.HandleList)
	group.GET("/:workflowId", m.handler.HandleGet)
	group.PUT("/:workflowId", m.handler.HandleUpdate)
	group.POST("/:workflowId/publish", m.handler.HandlePublish)
	group.POST("/:workflowId/unpublish", m.handler.HandleUnpublish)
	group.GET("/:workflowId/runs", m.handler.HandleListRuns)

	ctx.Poller.POST("/workflow-runs", m.handler.HandleResumeDue)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
