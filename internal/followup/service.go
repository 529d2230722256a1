package followup

import (
	"context"
	"fmt"
	"strings"

	"chatflow_backend/internal/delay"
	"chatflow_backend/internal/events"
	"chatflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Sender delivers one follow-up message.
type Sender interface {
	SendFollowUp(ctx context.Context, tenantID uuid.UUID, conversationID, text string) error
}

// TakeoverChecker reports whether a human currently holds a conversation.
type TakeoverChecker interface {
	IsActive(ctx context.Context, tenantID uuid.UUID, conversationID string) (bool, error)
}

// StateSource claims due follow-ups and resets idle clocks.
type StateSource interface {
	ClaimDue(ctx context.Context, limit int) ([]FollowUp, error)
	ResetOnInbound(ctx context.Context, tenantID, leadID uuid.UUID) error
}

// Service re-engages idle leads: it claims due follow-up states,
// applies the takeover gate, and sends the tenant's template. Inbound
// replies reset the backoff ladder via the event bus.
type Service struct {
	states   StateSource
	sender   Sender
	takeover TakeoverChecker
	poller   *delay.Poller[FollowUp]
	log      *logger.Logger
}

func NewService(states StateSource, sender Sender, takeover TakeoverChecker, batchSize int, log *logger.Logger) *Service {
	s := &Service{states: states, sender: sender, takeover: takeover, log: log}
	s.poller = delay.NewPoller[FollowUp](states, s.sendOne, batchSize, log)
	return s
}

// Register subscribes the idle-clock reset to inbound messages.
func (s *Service) Register(bus events.Bus) {
	bus.Subscribe("messaging.inbound.received", events.HandlerFunc(s.onInbound))
}

func (s *Service) onInbound(ctx context.Context, event events.Event) error {
	evt, ok := event.(events.InboundMessageReceived)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	if evt.IsEcho {
		return nil
	}
	return s.states.ResetOnInbound(ctx, evt.TenantID, evt.LeadID)
}

// SendDue claims one batch of due follow-ups and sends each.
func (s *Service) SendDue(ctx context.Context) (delay.Result, error) {
	return s.poller.RunOnce(ctx)
}

// sendOne delivers a single claimed follow-up. A takeover that started
// after the claim suppresses the send; the backoff has already
// advanced, so the lead is not pestered sooner because a human was
// talking to them.
func (s *Service) sendOne(ctx context.Context, f FollowUp) error {
	held, err := s.takeover.IsActive(ctx, f.TenantID, f.ConversationID)
	if err != nil {
		return fmt.Errorf("takeover check: %w", err)
	}
	if held {
		s.log.Debug("takeover active, suppressing follow-up",
			"leadId", f.LeadID, "attempt", f.AttemptCount)
		return nil
	}

	text := strings.TrimSpace(f.Template)
	if text == "" {
		s.log.Debug("tenant has empty follow-up template, skipping", "tenantId", f.TenantID)
		return nil
	}

	if err := s.sender.SendFollowUp(ctx, f.TenantID, f.ConversationID, text); err != nil {
		return fmt.Errorf("send follow-up to lead %s: %w", f.LeadID, err)
	}
	s.log.Info("follow-up sent", "leadId", f.LeadID, "attempt", f.AttemptCount)
	return nil
}
