// Package takeover arbitrates whether the automated agent or a human
// is authorized to respond to a conversation at a given instant.
package takeover

import (
	"context"
	"time"

	"chatflow_backend/internal/events"
	"chatflow_backend/platform/logger"

	"github.com/google/uuid"
)

// SessionStore is the persistence surface the arbiter needs.
type SessionStore interface {
	Upsert(ctx context.Context, tenantID uuid.UUID, conversationID string, expiresAt time.Time) (Session, error)
	Get(ctx context.Context, tenantID uuid.UUID, conversationID string) (Session, bool, error)
}

// DurationResolver resolves a tenant's configured takeover window.
type DurationResolver interface {
	TakeoverDuration(ctx context.Context, tenantID uuid.UUID) time.Duration
}

type Service struct {
	store     SessionStore
	durations DurationResolver
	bus       events.Bus
	log       *logger.Logger
	now       func() time.Time
}

func NewService(store SessionStore, durations DurationResolver, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store:     store,
		durations: durations,
		bus:       bus,
		log:       log,
		now:       time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// StartOrRefresh grants or extends the human takeover lease. A zero
// duration uses the tenant's configured window. The new expiry only
// ever moves forward.
func (s *Service) StartOrRefresh(ctx context.Context, tenantID uuid.UUID, conversationID string, duration time.Duration) (time.Time, error) {
	if duration <= 0 {
		duration = s.durations.TakeoverDuration(ctx, tenantID)
	}

	session, err := s.store.Upsert(ctx, tenantID, conversationID, s.now().Add(duration))
	if err != nil {
		return time.Time{}, err
	}

	s.bus.Publish(ctx, events.TakeoverStarted{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conversationID,
		TenantID:       tenantID,
		ExpiresAt:      session.ExpiresAt,
	})
	return session.ExpiresAt, nil
}

// IsActive reports whether a human currently holds the conversation.
// This is the single authorization gate for automated replies: every
// path that would generate bot output must check it first.
func (s *Service) IsActive(ctx context.Context, tenantID uuid.UUID, conversationID string) (bool, error) {
	session, found, err := s.store.Get(ctx, tenantID, conversationID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return s.now().Before(session.ExpiresAt), nil
}

// ExpiresAt returns the current lease expiry, if any session exists.
func (s *Service) ExpiresAt(ctx context.Context, tenantID uuid.UUID, conversationID string) (time.Time, bool, error) {
	session, found, err := s.store.Get(ctx, tenantID, conversationID)
	if err != nil || !found {
		return time.Time{}, false, err
	}
	return session.ExpiresAt, true, nil
}
