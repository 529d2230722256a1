package takeover

import (
	"context"
	"testing"
	"time"

	"chatflow_backend/internal/events"
	"chatflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	sessions map[string]Session
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]Session)}
}

func (f *fakeStore) key(tenantID uuid.UUID, conversationID string) string {
	return tenantID.String() + ":" + conversationID
}

func (f *fakeStore) Upsert(_ context.Context, tenantID uuid.UUID, conversationID string, expiresAt time.Time) (Session, error) {
	key := f.key(tenantID, conversationID)
	session, ok := f.sessions[key]
	if !ok || expiresAt.After(session.ExpiresAt) {
		session = Session{TenantID: tenantID, ConversationID: conversationID, ExpiresAt: expiresAt}
	}
	f.sessions[key] = session
	return session, nil
}

func (f *fakeStore) Get(_ context.Context, tenantID uuid.UUID, conversationID string) (Session, bool, error) {
	session, ok := f.sessions[f.key(tenantID, conversationID)]
	return session, ok, nil
}

type fixedDurations struct {
	d time.Duration
}

func (f fixedDurations) TakeoverDuration(context.Context, uuid.UUID) time.Duration {
	return f.d
}

func newTestService(store SessionStore, defaultDur time.Duration) *Service {
	log := logger.New("test")
	return NewService(store, fixedDurations{d: defaultDur}, events.NewInMemoryBus(log), log)
}

func TestStartOrRefreshUsesTenantDefault(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, 5*time.Minute)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return base })

	tenantID := uuid.New()
	expiresAt, err := svc.StartOrRefresh(context.Background(), tenantID, "conv-1", 0)
	if err != nil {
		t.Fatalf("StartOrRefresh: %v", err)
	}
	if want := base.Add(5 * time.Minute); !expiresAt.Equal(want) {
		t.Fatalf("expiresAt = %v, want %v", expiresAt, want)
	}
}

func TestRefreshNeverShortensLease(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, 5*time.Minute)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return base })

	tenantID := uuid.New()
	long, err := svc.StartOrRefresh(context.Background(), tenantID, "conv-1", time.Hour)
	if err != nil {
		t.Fatalf("StartOrRefresh: %v", err)
	}

	short, err := svc.StartOrRefresh(context.Background(), tenantID, "conv-1", time.Minute)
	if err != nil {
		t.Fatalf("StartOrRefresh: %v", err)
	}
	if short.Before(long) {
		t.Fatalf("refresh shortened lease: %v < %v", short, long)
	}
}

func TestIsActiveLazyExpiry(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, 5*time.Minute)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	svc.SetClock(func() time.Time { return now })

	tenantID := uuid.New()
	if _, err := svc.StartOrRefresh(context.Background(), tenantID, "conv-1", 10*time.Minute); err != nil {
		t.Fatalf("StartOrRefresh: %v", err)
	}

	active, err := svc.IsActive(context.Background(), tenantID, "conv-1")
	if err != nil || !active {
		t.Fatalf("IsActive = %v, %v; want true", active, err)
	}

	// Step past the expiry without any background reaper running.
	now = base.Add(11 * time.Minute)
	active, err = svc.IsActive(context.Background(), tenantID, "conv-1")
	if err != nil {
		t.Fatalf("IsActive: %v", err)
	}
	if active {
		t.Fatal("lease still active after expiry")
	}
}

func TestIsActiveNoSession(t *testing.T) {
	svc := newTestService(newFakeStore(), 5*time.Minute)

	active, err := svc.IsActive(context.Background(), uuid.New(), "conv-unknown")
	if err != nil {
		t.Fatalf("IsActive: %v", err)
	}
	if active {
		t.Fatal("IsActive = true for unknown conversation")
	}
}
