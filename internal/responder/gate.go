package responder

import (
	"context"
	"fmt"

	"chatflow_backend/internal/channel"
	"chatflow_backend/internal/events"
	"chatflow_backend/internal/leads"
	"chatflow_backend/platform/logger"

	"github.com/google/uuid"
)

// LeadReader loads lead state for the gate's bot-enabled check.
type LeadReader interface {
	GetByID(ctx context.Context, id, tenantID uuid.UUID) (leads.Lead, error)
}

// TakeoverChecker reports whether a human currently holds a conversation.
type TakeoverChecker interface {
	IsActive(ctx context.Context, tenantID uuid.UUID, conversationID string) (bool, error)
}

// Gate sits between inbound messages and the bot. Every automated
// reply passes two checks: no human takeover is active, and the lead's
// bot switch is on. Either one failing suppresses the reply silently.
type Gate struct {
	responder Responder
	leads     LeadReader
	takeover  TakeoverChecker
	channel   *channel.Client
	log       *logger.Logger
}

func NewGate(responder Responder, leadStore LeadReader, takeover TakeoverChecker, ch *channel.Client, log *logger.Logger) *Gate {
	return &Gate{responder: responder, leads: leadStore, takeover: takeover, channel: ch, log: log}
}

// Register subscribes the gate to inbound message events.
func (g *Gate) Register(bus events.Bus) {
	bus.Subscribe("messaging.inbound.received", events.HandlerFunc(g.onInbound))
}

func (g *Gate) onInbound(ctx context.Context, event events.Event) error {
	evt, ok := event.(events.InboundMessageReceived)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	if evt.IsEcho {
		return nil
	}
	return g.Reply(ctx, evt.TenantID, evt.LeadID, evt.Text)
}

// Reply runs the gated reply pipeline for one inbound message.
func (g *Gate) Reply(ctx context.Context, tenantID, leadID uuid.UUID, text string) error {
	lead, err := g.leads.GetByID(ctx, leadID, tenantID)
	if err != nil {
		return fmt.Errorf("load lead: %w", err)
	}
	if !lead.BotEnabled {
		g.log.Debug("bot disabled for lead, skipping reply", "leadId", leadID)
		return nil
	}

	held, err := g.takeover.IsActive(ctx, tenantID, lead.ConversationID)
	if err != nil {
		return fmt.Errorf("takeover check: %w", err)
	}
	if held {
		g.log.Debug("takeover active, suppressing reply", "conversationId", lead.ConversationID)
		return nil
	}

	reply, err := g.responder.Respond(ctx, tenantID, lead, text)
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}
	if reply == "" {
		return nil
	}

	g.channel.SendTypingIndicator(ctx, tenantID, lead.ConversationID, true)
	if _, err := g.channel.SendText(ctx, tenantID, lead.ConversationID, reply); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}
