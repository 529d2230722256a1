package responder

import (
	"context"

	"chatflow_backend/internal/channel"
	"chatflow_backend/internal/leads"

	"github.com/google/uuid"
)

// Sender adapts the channel client to the message-sending contracts
// of the workflow runner and follow-up scheduler.
type Sender struct {
	channel *channel.Client
}

func NewSender(ch *channel.Client) *Sender {
	return &Sender{channel: ch}
}

func (s *Sender) SendWorkflowMessage(ctx context.Context, tenantID uuid.UUID, lead leads.Lead, text string) error {
	_, err := s.channel.SendText(ctx, tenantID, lead.ConversationID, text)
	return err
}

func (s *Sender) SendFollowUp(ctx context.Context, tenantID uuid.UUID, conversationID, text string) error {
	_, err := s.channel.SendText(ctx, tenantID, conversationID, text)
	return err
}
