package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatflow_backend/internal/events"
	"chatflow_backend/internal/leads"
	"chatflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeDefStore struct {
	def Definition
	err error
}

func (f *fakeDefStore) GetDefinition(context.Context, uuid.UUID, uuid.UUID) (Definition, error) {
	if f.err != nil {
		return Definition{}, f.err
	}
	return f.def, nil
}

type fakeRunStore struct {
	conflictAfter int // return ErrClaimConflict once this many transitions happened
	transitions   int
}

func (f *fakeRunStore) TransitionRun(_ context.Context, run *Run, cursorNodeID string, status RunStatus, resumeAt *time.Time) error {
	if f.conflictAfter > 0 && f.transitions >= f.conflictAfter {
		return ErrClaimConflict
	}
	f.transitions++
	run.CursorNodeID = cursorNodeID
	run.Status = status
	run.ResumeAt = resumeAt
	run.Version++
	return nil
}

type fakeLeadStore struct {
	lead        leads.Lead
	err         error
	botDisabled bool
}

func (f *fakeLeadStore) GetByID(context.Context, uuid.UUID, uuid.UUID) (leads.Lead, error) {
	if f.err != nil {
		return leads.Lead{}, f.err
	}
	return f.lead, nil
}

func (f *fakeLeadStore) SetBotEnabled(_ context.Context, _, _ uuid.UUID, enabled bool) error {
	f.botDisabled = !enabled
	return nil
}

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) SendWorkflowMessage(_ context.Context, _ uuid.UUID, _ leads.Lead, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

type fakeTakeover struct {
	active bool
}

func (f *fakeTakeover) IsActive(context.Context, uuid.UUID, string) (bool, error) {
	return f.active, nil
}

func linearDefinition() Definition {
	stageID := uuid.New()
	return Definition{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Name:     "welcome",
		Nodes: []Node{
			{ID: "t", Type: NodeTrigger, TriggerStageID: &stageID},
			{ID: "m1", Type: NodeMessage, Text: "Hi {{firstName}}!"},
			{ID: "w1", Type: NodeWait, DurationMinutes: 60},
			{ID: "m2", Type: NodeMessage, Text: "Still there?"},
		},
		Edges: []Edge{
			{From: "t", To: "m1"},
			{From: "m1", To: "w1"},
			{From: "w1", To: "m2"},
		},
	}
}

func newTestRunner(def Definition, runs *fakeRunStore, leadStore *fakeLeadStore, sender *fakeSender, takeover *fakeTakeover) *Runner {
	log := logger.New("test")
	r := NewRunner(&fakeDefStore{def: def}, runs, leadStore, sender, takeover, events.NewInMemoryBus(log), log)
	r.SetClock(func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) })
	return r
}

func pendingRun(def Definition) *Run {
	return &Run{
		ID:           uuid.New(),
		WorkflowID:   def.ID,
		TenantID:     def.TenantID,
		LeadID:       uuid.New(),
		CursorNodeID: "t",
		Status:       StatusPending,
		StartedAt:    time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
	}
}

func TestAdvanceSendsThenSuspendsAtWait(t *testing.T) {
	def := linearDefinition()
	runs := &fakeRunStore{}
	sender := &fakeSender{}
	leadStore := &fakeLeadStore{lead: leads.Lead{FirstName: "Ada", ConversationID: "conv-1"}}
	runner := newTestRunner(def, runs, leadStore, sender, &fakeTakeover{})

	run := pendingRun(def)
	if err := runner.Advance(context.Background(), run); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	if len(sender.sent) != 1 || sender.sent[0] != "Hi Ada!" {
		t.Fatalf("sent = %v, want rendered greeting", sender.sent)
	}
	if run.Status != StatusWaiting {
		t.Fatalf("status = %s, want waiting", run.Status)
	}
	if run.CursorNodeID != "m2" {
		t.Fatalf("cursor = %s, want the node after the wait", run.CursorNodeID)
	}
	if run.ResumeAt == nil {
		t.Fatal("suspended run has no resume time")
	}
	want := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	if !run.ResumeAt.Equal(want) {
		t.Fatalf("resumeAt = %v, want %v", run.ResumeAt, want)
	}
}

func TestAdvanceResumedRunCompletes(t *testing.T) {
	def := linearDefinition()
	runs := &fakeRunStore{}
	sender := &fakeSender{}
	leadStore := &fakeLeadStore{lead: leads.Lead{ConversationID: "conv-1"}}
	runner := newTestRunner(def, runs, leadStore, sender, &fakeTakeover{})

	// The claim already moved the run to running at its post-wait cursor.
	run := pendingRun(def)
	run.Status = StatusRunning
	run.CursorNodeID = "m2"

	if err := runner.Advance(context.Background(), run); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "Still there?" {
		t.Fatalf("sent = %v", sender.sent)
	}
	if run.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", run.Status)
	}
}

func TestAdvanceTakeoverDefersMessage(t *testing.T) {
	def := linearDefinition()
	runs := &fakeRunStore{}
	sender := &fakeSender{}
	leadStore := &fakeLeadStore{lead: leads.Lead{ConversationID: "conv-1"}}
	runner := newTestRunner(def, runs, leadStore, sender, &fakeTakeover{active: true})

	run := pendingRun(def)
	if err := runner.Advance(context.Background(), run); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	if len(sender.sent) != 0 {
		t.Fatalf("message sent despite active takeover: %v", sender.sent)
	}
	if run.Status != StatusWaiting {
		t.Fatalf("status = %s, want waiting", run.Status)
	}
	if run.CursorNodeID != "m1" {
		t.Fatalf("cursor = %s, want to stay on the message node", run.CursorNodeID)
	}
}

func TestAdvanceStopBotDisablesBot(t *testing.T) {
	stageID := uuid.New()
	def := Definition{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Name:     "halt",
		Nodes: []Node{
			{ID: "t", Type: NodeTrigger, TriggerStageID: &stageID},
			{ID: "s", Type: NodeStopBot},
		},
		Edges: []Edge{{From: "t", To: "s"}},
	}

	runs := &fakeRunStore{}
	leadStore := &fakeLeadStore{}
	runner := newTestRunner(def, runs, leadStore, &fakeSender{}, &fakeTakeover{})

	run := pendingRun(def)
	if err := runner.Advance(context.Background(), run); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !leadStore.botDisabled {
		t.Fatal("stop_bot did not disable the bot")
	}
	if run.Status != StatusStopped {
		t.Fatalf("status = %s, want stopped", run.Status)
	}
}

func TestAdvanceConditionBranches(t *testing.T) {
	stageID := uuid.New()
	lastInbound := time.Date(2025, 6, 1, 11, 30, 0, 0, time.UTC)

	def := Definition{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Name:     "branchy",
		Nodes: []Node{
			{ID: "t", Type: NodeTrigger, TriggerStageID: &stageID},
			{ID: "c", Type: NodeCondition, Predicate: PredicateHasReplied, Branches: []string{"yes", "no"}},
			{ID: "replied", Type: NodeMessage, Text: "thanks"},
			{ID: "silent", Type: NodeMessage, Text: "hello?"},
		},
		Edges: []Edge{
			{From: "t", To: "c"},
			{From: "c", To: "replied", Label: "yes"},
			{From: "c", To: "silent", Label: "no"},
			{From: "c", To: "silent", Label: DefaultEdgeLabel},
		},
	}

	cases := []struct {
		name     string
		inbound  *time.Time
		wantText string
	}{
		{name: "lead replied", inbound: &lastInbound, wantText: "thanks"},
		{name: "lead silent", inbound: nil, wantText: "hello?"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runs := &fakeRunStore{}
			sender := &fakeSender{}
			leadStore := &fakeLeadStore{lead: leads.Lead{ConversationID: "conv-1", LastInboundAt: tc.inbound}}
			runner := newTestRunner(def, runs, leadStore, sender, &fakeTakeover{})

			run := pendingRun(def)
			if err := runner.Advance(context.Background(), run); err != nil {
				t.Fatalf("Advance: %v", err)
			}
			if len(sender.sent) != 1 || sender.sent[0] != tc.wantText {
				t.Fatalf("sent = %v, want %q", sender.sent, tc.wantText)
			}
		})
	}
}

func TestAdvanceClaimConflictIsBenign(t *testing.T) {
	def := linearDefinition()
	runs := &fakeRunStore{conflictAfter: 1}
	sender := &fakeSender{}
	leadStore := &fakeLeadStore{lead: leads.Lead{ConversationID: "conv-1"}}
	runner := newTestRunner(def, runs, leadStore, sender, &fakeTakeover{})

	run := pendingRun(def)
	if err := runner.Advance(context.Background(), run); err != nil {
		t.Fatalf("Advance returned %v on a lost race, want nil", err)
	}
}

func TestAdvanceSendFailureLeavesRunRunning(t *testing.T) {
	def := linearDefinition()
	runs := &fakeRunStore{}
	sender := &fakeSender{err: errors.New("channel down")}
	leadStore := &fakeLeadStore{lead: leads.Lead{ConversationID: "conv-1"}}
	runner := newTestRunner(def, runs, leadStore, sender, &fakeTakeover{})

	run := pendingRun(def)
	if err := runner.Advance(context.Background(), run); err == nil {
		t.Fatal("Advance did not surface the send failure")
	}
	if run.Status != StatusRunning {
		t.Fatalf("status = %s, want running (send failures are not retried)", run.Status)
	}
}

func TestAdvanceUnknownCursorFailsRun(t *testing.T) {
	def := linearDefinition()
	runs := &fakeRunStore{}
	leadStore := &fakeLeadStore{lead: leads.Lead{ConversationID: "conv-1"}}
	runner := newTestRunner(def, runs, leadStore, &fakeSender{}, &fakeTakeover{})

	run := pendingRun(def)
	run.Status = StatusRunning
	run.CursorNodeID = "gone"

	if err := runner.Advance(context.Background(), run); err == nil {
		t.Fatal("Advance accepted a dangling cursor")
	}
	if run.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", run.Status)
	}
}

func TestAdvanceTerminalRunIsNoop(t *testing.T) {
	def := linearDefinition()
	runs := &fakeRunStore{}
	runner := newTestRunner(def, runs, &fakeLeadStore{}, &fakeSender{}, &fakeTakeover{})

	run := pendingRun(def)
	run.Status = StatusCompleted

	if err := runner.Advance(context.Background(), run); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if runs.transitions != 0 {
		t.Fatalf("terminal run caused %d transitions", runs.transitions)
	}
}

func TestAdvanceTransientDefinitionLoadErrorLeavesRunRetryable(t *testing.T) {
	def := linearDefinition()
	runs := &fakeRunStore{}
	defStore := &fakeDefStore{def: def, err: errors.New("connection reset")}
	log := logger.New("test")
	runner := NewRunner(defStore, runs, &fakeLeadStore{}, &fakeSender{}, &fakeTakeover{}, events.NewInMemoryBus(log), log)

	run := pendingRun(def)
	if err := runner.Advance(context.Background(), run); err == nil {
		t.Fatal("transient load error must propagate")
	}
	if run.Status != StatusPending {
		t.Fatalf("run status = %q, want pending so a later tick can retry", run.Status)
	}
	if runs.transitions != 0 {
		t.Fatalf("run transitioned %d times on a transient error", runs.transitions)
	}
}

func TestAdvanceMissingDefinitionFailsRun(t *testing.T) {
	def := linearDefinition()
	runs := &fakeRunStore{}
	defStore := &fakeDefStore{err: ErrNotFound}
	log := logger.New("test")
	runner := NewRunner(defStore, runs, &fakeLeadStore{}, &fakeSender{}, &fakeTakeover{}, events.NewInMemoryBus(log), log)

	run := pendingRun(def)
	if err := runner.Advance(context.Background(), run); err == nil {
		t.Fatal("missing definition must report the failure")
	}
	if run.Status != StatusFailed {
		t.Fatalf("run status = %q, want failed for a deleted definition", run.Status)
	}
}

func TestAdvanceTransientLeadLoadErrorLeavesRunRetryable(t *testing.T) {
	def := linearDefinition()
	runs := &fakeRunStore{}
	leadStore := &fakeLeadStore{err: errors.New("pool timeout")}
	log := logger.New("test")
	runner := NewRunner(&fakeDefStore{def: def}, runs, leadStore, &fakeSender{}, &fakeTakeover{}, events.NewInMemoryBus(log), log)

	run := pendingRun(def)
	if err := runner.Advance(context.Background(), run); err == nil {
		t.Fatal("transient lead load error must propagate")
	}
	if run.Status.Terminal() {
		t.Fatalf("run status = %q, want a non-terminal status", run.Status)
	}
}
