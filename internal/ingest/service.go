package ingest

import (
	"context"
	"fmt"
	"time"

	"chatflow_backend/internal/channel"
	"chatflow_backend/internal/events"
	"chatflow_backend/internal/leads"
	"chatflow_backend/internal/tenant"
	"chatflow_backend/platform/logger"

	"github.com/google/uuid"
)

// TakeoverRefresher extends the human-takeover lease when an echo of a
// manually typed page reply arrives.
type TakeoverRefresher interface {
	StartOrRefresh(ctx context.Context, tenantID uuid.UUID, conversationID string, duration time.Duration) (time.Time, error)
}

// LeadWriter is the slice of lead state the ingest path maintains.
type LeadWriter interface {
	UpsertByConversation(ctx context.Context, tenantID uuid.UUID, conversationID string) (leads.Lead, error)
	RecordInbound(ctx context.Context, id, tenantID uuid.UUID, at time.Time) error
	FillName(ctx context.Context, id, tenantID uuid.UUID, firstName, lastName string) error
}

// ProfileFetcher looks up a conversation participant's public profile.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, tenantID uuid.UUID, conversationID string) (channel.Profile, error)
}

// Service turns raw webhook envelopes into deduplicated domain events.
type Service struct {
	dedup    *Deduplicator
	repo     *Repository
	tenants  *tenant.Service
	leads    LeadWriter
	takeover TakeoverRefresher
	profiles ProfileFetcher // optional
	bus      events.Bus
	log      *logger.Logger
	now      func() time.Time
}

func NewService(dedup *Deduplicator, repo *Repository, tenants *tenant.Service, leadStore LeadWriter, takeover TakeoverRefresher, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		dedup:    dedup,
		repo:     repo,
		tenants:  tenants,
		leads:    leadStore,
		takeover: takeover,
		bus:      bus,
		log:      log,
		now:      time.Now,
	}
}

// SetProfileFetcher enables best-effort name enrichment of fresh leads.
func (s *Service) SetProfileFetcher(profiles ProfileFetcher) {
	s.profiles = profiles
}

// ProcessEnvelope walks every messaging record in the envelope.
// Records are isolated from each other: one bad record is logged and
// skipped so the platform never re-sends the whole batch over it.
func (s *Service) ProcessEnvelope(ctx context.Context, env Envelope) {
	for _, entry := range env.Entries {
		settings, err := s.tenants.SettingsForPage(ctx, entry.PageID)
		if err != nil {
			s.log.Warn("webhook entry for unknown page", "pageId", entry.PageID, "error", err)
			continue
		}

		for _, record := range entry.Messaging {
			if err := s.processRecord(ctx, settings, record); err != nil {
				s.log.Error("webhook record failed",
					"pageId", entry.PageID,
					"eventId", record.eventID(),
					"error", err)
			}
		}
	}
}

func (s *Service) processRecord(ctx context.Context, settings tenant.Settings, record MessagingRecord) error {
	eventID := record.eventID()
	if eventID == "" {
		return fmt.Errorf("record has no event id")
	}

	// An echo is our own page speaking. Only a reply a human typed in
	// the page inbox implicitly claims the conversation; echoes of
	// API-sent messages carry the sending app's id and are the
	// engine's own output coming back around.
	if record.Message != nil && record.Message.IsEcho {
		if record.Message.AppID != 0 {
			return nil
		}
		conversationID := record.Recipient.ID
		if _, err := s.takeover.StartOrRefresh(ctx, settings.TenantID, conversationID, 0); err != nil {
			return fmt.Errorf("refresh takeover on echo: %w", err)
		}
		return nil
	}

	won, err := s.dedup.Claim(ctx, settings.TenantID, eventID)
	if err != nil {
		return fmt.Errorf("dedup claim: %w", err)
	}
	if !won {
		s.log.Debug("duplicate delivery dropped", "eventId", eventID)
		return nil
	}

	conversationID := record.Sender.ID
	lead, err := s.leads.UpsertByConversation(ctx, settings.TenantID, conversationID)
	if err != nil {
		return fmt.Errorf("upsert lead: %w", err)
	}
	if err := s.leads.RecordInbound(ctx, lead.ID, settings.TenantID, s.now()); err != nil {
		return fmt.Errorf("record inbound: %w", err)
	}
	s.enrichName(ctx, settings.TenantID, lead)

	switch {
	case record.Postback != nil:
		return s.bus.PublishSync(ctx, events.InboundPostbackReceived{
			BaseEvent:      events.NewBaseEvent(),
			EventID:        eventID,
			ConversationID: conversationID,
			LeadID:         lead.ID,
			TenantID:       settings.TenantID,
			Payload:        record.Postback.Payload,
		})
	case record.Message != nil:
		return s.bus.PublishSync(ctx, events.InboundMessageReceived{
			BaseEvent:      events.NewBaseEvent(),
			EventID:        eventID,
			ConversationID: conversationID,
			LeadID:         lead.ID,
			TenantID:       settings.TenantID,
			Text:           record.Message.Text,
		})
	case record.Referral != nil:
		// Entry-point referrals (m.me links, ad clicks) create the
		// lead and consume their claim; no engine behavior hangs off
		// them yet.
		return nil
	default:
		// Record shapes the engine doesn't react to. The claim
		// already recorded them.
		return nil
	}
}

// enrichName fills a blank lead name from the platform profile. Purely
// best effort; failures only lose cosmetics.
func (s *Service) enrichName(ctx context.Context, tenantID uuid.UUID, lead leads.Lead) {
	if s.profiles == nil || lead.FirstName != "" || lead.LastName != "" {
		return
	}

	profile, err := s.profiles.FetchProfile(ctx, tenantID, lead.ConversationID)
	if err != nil || (profile.FirstName == "" && profile.LastName == "") {
		return
	}
	if err := s.leads.FillName(ctx, lead.ID, tenantID, profile.FirstName, profile.LastName); err != nil {
		s.log.Debug("name enrichment failed", "leadId", lead.ID, "error", err)
	}
}

// PruneDeliveries removes dedup records older than the retention window.
func (s *Service) PruneDeliveries(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.DeleteOlderThan(ctx, retention)
}
