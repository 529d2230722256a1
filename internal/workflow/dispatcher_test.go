package workflow

import (
	"context"
	"testing"
	"time"

	"chatflow_backend/internal/events"
	"chatflow_backend/internal/leads"
	"chatflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeDispatchStore struct {
	defs      []Definition
	active    bool
	created   []Run
	activeErr error
}

func (f *fakeDispatchStore) ListPublishedByStage(_ context.Context, _, stageID uuid.UUID) ([]Definition, error) {
	var out []Definition
	for _, def := range f.defs {
		if def.TriggerStageID != nil && *def.TriggerStageID == stageID {
			out = append(out, def)
		}
	}
	return out, nil
}

func (f *fakeDispatchStore) ListPublishedForAppointments(context.Context, uuid.UUID) ([]Definition, error) {
	var out []Definition
	for _, def := range f.defs {
		if def.TriggerOnAppointment {
			out = append(out, def)
		}
	}
	return out, nil
}

func (f *fakeDispatchStore) HasActiveRun(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return f.active, f.activeErr
}

func (f *fakeDispatchStore) CreateRun(_ context.Context, def Definition, leadID uuid.UUID, cursorNodeID string) (Run, error) {
	run := Run{
		ID:           uuid.New(),
		WorkflowID:   def.ID,
		LeadID:       leadID,
		TenantID:     def.TenantID,
		CursorNodeID: cursorNodeID,
		Status:       StatusPending,
		StartedAt:    time.Now(),
	}
	f.created = append(f.created, run)
	return run, nil
}

func dispatchFixture(t *testing.T, store *fakeDispatchStore, def Definition) events.Bus {
	t.Helper()
	log := logger.New("test")
	sender := &fakeSender{}
	leadStore := &fakeLeadStore{lead: leads.Lead{ConversationID: "conv-1"}}
	runner := NewRunner(&fakeDefStore{def: def}, &fakeRunStore{}, leadStore, sender, &fakeTakeover{}, events.NewInMemoryBus(log), log)

	bus := events.NewInMemoryBus(log)
	NewDispatcher(store, runner, log).Register(bus)
	return bus
}

func TestStageChangeStartsMatchingWorkflow(t *testing.T) {
	def := linearDefinition()
	def.TriggerStageID = def.Nodes[0].TriggerStageID
	store := &fakeDispatchStore{defs: []Definition{def}}
	bus := dispatchFixture(t, store, def)

	err := bus.PublishSync(context.Background(), events.PipelineStageChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    uuid.New(),
		TenantID:  def.TenantID,
		NewStage:  *def.TriggerStageID,
	})
	if err != nil {
		t.Fatalf("PublishSync: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("created %d runs, want 1", len(store.created))
	}
	if store.created[0].CursorNodeID != "t" {
		t.Fatalf("run starts at %q, want the trigger node", store.created[0].CursorNodeID)
	}
}

func TestStageChangeIgnoresOtherStages(t *testing.T) {
	def := linearDefinition()
	def.TriggerStageID = def.Nodes[0].TriggerStageID
	store := &fakeDispatchStore{defs: []Definition{def}}
	bus := dispatchFixture(t, store, def)

	err := bus.PublishSync(context.Background(), events.PipelineStageChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    uuid.New(),
		TenantID:  def.TenantID,
		NewStage:  uuid.New(),
	})
	if err != nil {
		t.Fatalf("PublishSync: %v", err)
	}
	if len(store.created) != 0 {
		t.Fatal("run created for a non-matching stage")
	}
}

func TestActiveRunGuardSkipsRetrigger(t *testing.T) {
	def := linearDefinition()
	def.TriggerStageID = def.Nodes[0].TriggerStageID
	store := &fakeDispatchStore{defs: []Definition{def}, active: true}
	bus := dispatchFixture(t, store, def)

	err := bus.PublishSync(context.Background(), events.PipelineStageChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    uuid.New(),
		TenantID:  def.TenantID,
		NewStage:  *def.TriggerStageID,
	})
	if err != nil {
		t.Fatalf("PublishSync: %v", err)
	}
	if len(store.created) != 0 {
		t.Fatal("duplicate run created while one was active")
	}
}

func TestAllowConcurrentRunsBypassesGuard(t *testing.T) {
	def := linearDefinition()
	def.TriggerStageID = def.Nodes[0].TriggerStageID
	def.AllowConcurrentRuns = true
	store := &fakeDispatchStore{defs: []Definition{def}, active: true}
	bus := dispatchFixture(t, store, def)

	err := bus.PublishSync(context.Background(), events.PipelineStageChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    uuid.New(),
		TenantID:  def.TenantID,
		NewStage:  *def.TriggerStageID,
	})
	if err != nil {
		t.Fatalf("PublishSync: %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("created %d runs, want 1", len(store.created))
	}
}

func TestAppointmentBookingStartsWorkflow(t *testing.T) {
	def := Definition{
		ID:                   uuid.New(),
		TenantID:             uuid.New(),
		Name:                 "post-booking",
		TriggerOnAppointment: true,
		Nodes: []Node{
			{ID: "t", Type: NodeTrigger, TriggerOnAppointment: true},
			{ID: "m", Type: NodeMessage, Text: "See you soon!"},
		},
		Edges: []Edge{{From: "t", To: "m"}},
	}

	store := &fakeDispatchStore{defs: []Definition{def}}
	bus := dispatchFixture(t, store, def)

	err := bus.PublishSync(context.Background(), events.AppointmentBooked{
		BaseEvent:     events.NewBaseEvent(),
		LeadID:        uuid.New(),
		TenantID:      def.TenantID,
		AppointmentID: uuid.New(),
		StartTime:     time.Now().Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("PublishSync: %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("created %d runs, want 1", len(store.created))
	}
}
