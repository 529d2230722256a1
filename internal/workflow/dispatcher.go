package workflow

import (
	"context"
	"fmt"

	"chatflow_backend/internal/events"
	"chatflow_backend/platform/logger"

	"github.com/google/uuid"
)

// DispatchStore is the persistence slice the dispatcher needs to turn
// domain events into runs.
type DispatchStore interface {
	ListPublishedByStage(ctx context.Context, tenantID, stageID uuid.UUID) ([]Definition, error)
	ListPublishedForAppointments(ctx context.Context, tenantID uuid.UUID) ([]Definition, error)
	HasActiveRun(ctx context.Context, workflowID, leadID uuid.UUID) (bool, error)
	CreateRun(ctx context.Context, def Definition, leadID uuid.UUID, cursorNodeID string) (Run, error)
}

// Dispatcher listens for lead pipeline events and starts runs for
// every published workflow whose trigger matches. Run creation and the
// first Advance happen synchronously inside the event handler, so a
// trigger is either fully picked up or logged and dropped; there is no
// retry queue.
type Dispatcher struct {
	store  DispatchStore
	runner *Runner
	log    *logger.Logger
}

func NewDispatcher(store DispatchStore, runner *Runner, log *logger.Logger) *Dispatcher {
	return &Dispatcher{store: store, runner: runner, log: log}
}

// Register subscribes the dispatcher to the events it reacts to.
func (d *Dispatcher) Register(bus events.Bus) {
	bus.Subscribe("leads.pipeline.changed", events.HandlerFunc(d.onStageChanged))
	bus.Subscribe("leads.appointment.booked", events.HandlerFunc(d.onAppointmentBooked))
}

func (d *Dispatcher) onStageChanged(ctx context.Context, event events.Event) error {
	evt, ok := event.(events.PipelineStageChanged)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	defs, err := d.store.ListPublishedByStage(ctx, evt.TenantID, evt.NewStage)
	if err != nil {
		return fmt.Errorf("list workflows for stage %s: %w", evt.NewStage, err)
	}
	d.startMatching(ctx, defs, evt.LeadID)
	return nil
}

func (d *Dispatcher) onAppointmentBooked(ctx context.Context, event events.Event) error {
	evt, ok := event.(events.AppointmentBooked)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	defs, err := d.store.ListPublishedForAppointments(ctx, evt.TenantID)
	if err != nil {
		return fmt.Errorf("list appointment workflows: %w", err)
	}
	d.startMatching(ctx, defs, evt.LeadID)
	return nil
}

// startMatching creates and advances one run per matching definition.
// Failures are isolated per workflow: one broken definition must not
// keep the rest of the tenant's automations from firing.
func (d *Dispatcher) startMatching(ctx context.Context, defs []Definition, leadID uuid.UUID) {
	for _, def := range defs {
		if err := d.startRun(ctx, def, leadID); err != nil {
			d.log.Error("workflow dispatch failed",
				"workflowId", def.ID,
				"leadId", leadID,
				"error", err)
		}
	}
}

func (d *Dispatcher) startRun(ctx context.Context, def Definition, leadID uuid.UUID) error {
	if !def.AllowConcurrentRuns {
		active, err := d.store.HasActiveRun(ctx, def.ID, leadID)
		if err != nil {
			return fmt.Errorf("check active run: %w", err)
		}
		if active {
			d.log.Debug("skipping trigger, run already active",
				"workflowId", def.ID, "leadId", leadID)
			return nil
		}
	}

	trigger, ok := def.TriggerNode()
	if !ok {
		return fmt.Errorf("published workflow %s has no trigger node", def.ID)
	}

	run, err := d.store.CreateRun(ctx, def, leadID, trigger.ID)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return d.runner.Advance(ctx, &run)
}
