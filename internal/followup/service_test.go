package followup

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatflow_backend/internal/events"
	"chatflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStates struct {
	due    []FollowUp
	resets []uuid.UUID
}

func (f *fakeStates) ClaimDue(_ context.Context, limit int) ([]FollowUp, error) {
	if len(f.due) > limit {
		claimed := f.due[:limit]
		f.due = f.due[limit:]
		return claimed, nil
	}
	claimed := f.due
	f.due = nil
	return claimed, nil
}

func (f *fakeStates) ResetOnInbound(_ context.Context, _, leadID uuid.UUID) error {
	f.resets = append(f.resets, leadID)
	return nil
}

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) SendFollowUp(_ context.Context, _ uuid.UUID, conversationID, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, conversationID)
	return nil
}

type fakeTakeover struct {
	active map[string]bool
}

func (f *fakeTakeover) IsActive(_ context.Context, _ uuid.UUID, conversationID string) (bool, error) {
	return f.active[conversationID], nil
}

func dueFollowUp(conversationID string) FollowUp {
	return FollowUp{
		TenantID:       uuid.New(),
		LeadID:         uuid.New(),
		ConversationID: conversationID,
		AttemptCount:   1,
		Template:       "Just checking in!",
		NextEligibleAt: time.Now().Add(24 * time.Hour),
	}
}

func TestSendDueDeliversClaimedBatch(t *testing.T) {
	states := &fakeStates{due: []FollowUp{dueFollowUp("conv-1"), dueFollowUp("conv-2")}}
	sender := &fakeSender{}
	svc := NewService(states, sender, &fakeTakeover{active: map[string]bool{}}, 10, logger.New("test"))

	result, err := svc.SendDue(context.Background())
	if err != nil {
		t.Fatalf("SendDue: %v", err)
	}
	if result.Processed != 2 || result.Succeeded != 2 || result.Failed != 0 {
		t.Fatalf("result = %+v", result)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("sent %d follow-ups, want 2", len(sender.sent))
	}
}

func TestSendDueSuppressedByTakeover(t *testing.T) {
	states := &fakeStates{due: []FollowUp{dueFollowUp("conv-held")}}
	sender := &fakeSender{}
	takeover := &fakeTakeover{active: map[string]bool{"conv-held": true}}
	svc := NewService(states, sender, takeover, 10, logger.New("test"))

	result, err := svc.SendDue(context.Background())
	if err != nil {
		t.Fatalf("SendDue: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("follow-up sent into a human-held conversation")
	}
	// The claim already advanced the backoff; suppression is success.
	if result.Succeeded != 1 {
		t.Fatalf("result = %+v, want the suppressed item counted as succeeded", result)
	}
}

func TestSendDueEmptyTemplateSkips(t *testing.T) {
	f := dueFollowUp("conv-1")
	f.Template = "   "
	states := &fakeStates{due: []FollowUp{f}}
	sender := &fakeSender{}
	svc := NewService(states, sender, &fakeTakeover{active: map[string]bool{}}, 10, logger.New("test"))

	if _, err := svc.SendDue(context.Background()); err != nil {
		t.Fatalf("SendDue: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("sent a follow-up with an empty template")
	}
}

func TestSendDueFailureIsolated(t *testing.T) {
	states := &fakeStates{due: []FollowUp{dueFollowUp("conv-1")}}
	sender := &fakeSender{err: errors.New("channel down")}
	svc := NewService(states, sender, &fakeTakeover{active: map[string]bool{}}, 10, logger.New("test"))

	result, err := svc.SendDue(context.Background())
	if err != nil {
		t.Fatalf("SendDue: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("result = %+v, want one failure", result)
	}
}

func TestInboundMessageResetsBackoff(t *testing.T) {
	states := &fakeStates{}
	log := logger.New("test")
	svc := NewService(states, &fakeSender{}, &fakeTakeover{active: map[string]bool{}}, 10, log)

	bus := events.NewInMemoryBus(log)
	svc.Register(bus)

	leadID := uuid.New()
	err := bus.PublishSync(context.Background(), events.InboundMessageReceived{
		BaseEvent: events.NewBaseEvent(),
		EventID:   "mid.1",
		LeadID:    leadID,
		TenantID:  uuid.New(),
		Text:      "hi again",
	})
	if err != nil {
		t.Fatalf("PublishSync: %v", err)
	}

	if len(states.resets) != 1 || states.resets[0] != leadID {
		t.Fatalf("resets = %v, want one for the lead", states.resets)
	}
}

func TestEchoDoesNotResetBackoff(t *testing.T) {
	states := &fakeStates{}
	log := logger.New("test")
	svc := NewService(states, &fakeSender{}, &fakeTakeover{active: map[string]bool{}}, 10, log)

	bus := events.NewInMemoryBus(log)
	svc.Register(bus)

	err := bus.PublishSync(context.Background(), events.InboundMessageReceived{
		BaseEvent: events.NewBaseEvent(),
		EventID:   "mid.echo",
		LeadID:    uuid.New(),
		TenantID:  uuid.New(),
		IsEcho:    true,
	})
	if err != nil {
		t.Fatalf("PublishSync: %v", err)
	}
	if len(states.resets) != 0 {
		t.Fatal("echo reset the backoff ladder")
	}
}
