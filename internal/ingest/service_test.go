package ingest

import (
	"context"
	"testing"
	"time"

	"chatflow_backend/internal/events"
	"chatflow_backend/internal/leads"
	"chatflow_backend/internal/tenant"
	"chatflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeTakeoverRefresher struct {
	calls int
}

func (f *fakeTakeoverRefresher) StartOrRefresh(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) (time.Time, error) {
	f.calls++
	return time.Now(), nil
}

type fakeLeadWriter struct {
	upserts  int
	inbounds int
}

func (f *fakeLeadWriter) UpsertByConversation(_ context.Context, tenantID uuid.UUID, conversationID string) (leads.Lead, error) {
	f.upserts++
	return leads.Lead{ID: uuid.New(), TenantID: tenantID, ConversationID: conversationID, FirstName: "Ada"}, nil
}

func (f *fakeLeadWriter) RecordInbound(context.Context, uuid.UUID, uuid.UUID, time.Time) error {
	f.inbounds++
	return nil
}

func (f *fakeLeadWriter) FillName(context.Context, uuid.UUID, uuid.UUID, string, string) error {
	return nil
}

type recordingBus struct {
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.published = append(b.published, event)
}

func (b *recordingBus) PublishSync(_ context.Context, event events.Event) error {
	b.published = append(b.published, event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

type serviceFixture struct {
	service  *Service
	store    *fakeDeliveryStore
	takeover *fakeTakeoverRefresher
	leads    *fakeLeadWriter
	bus      *recordingBus
}

func newServiceFixture() serviceFixture {
	store := newFakeDeliveryStore()
	takeover := &fakeTakeoverRefresher{}
	leadWriter := &fakeLeadWriter{}
	bus := &recordingBus{}
	service := NewService(NewDeduplicator(store, 10), nil, nil, leadWriter, takeover, bus, logger.New("test"))
	return serviceFixture{service: service, store: store, takeover: takeover, leads: leadWriter, bus: bus}
}

func TestEchoOfInboxReplyRefreshesTakeover(t *testing.T) {
	fx := newServiceFixture()
	settings := tenant.Settings{TenantID: uuid.New()}

	record := MessagingRecord{
		Sender:    Participant{ID: "page-1"},
		Recipient: Participant{ID: "psid-1"},
		Message:   &Message{MessageID: "mid.agent", Text: "hello from a human", IsEcho: true},
	}
	if err := fx.service.processRecord(context.Background(), settings, record); err != nil {
		t.Fatalf("processRecord: %v", err)
	}

	if fx.takeover.calls != 1 {
		t.Fatalf("StartOrRefresh called %d times, want 1", fx.takeover.calls)
	}
	if len(fx.bus.published) != 0 {
		t.Fatalf("echo published %d events, want none", len(fx.bus.published))
	}
}

func TestEchoOfAPISendLeavesTakeoverAlone(t *testing.T) {
	fx := newServiceFixture()
	settings := tenant.Settings{TenantID: uuid.New()}

	record := MessagingRecord{
		Sender:    Participant{ID: "page-1"},
		Recipient: Participant{ID: "psid-1"},
		Message:   &Message{MessageID: "mid.bot-sent", Text: "automated reply", IsEcho: true, AppID: 4242},
	}
	if err := fx.service.processRecord(context.Background(), settings, record); err != nil {
		t.Fatalf("processRecord: %v", err)
	}

	if fx.takeover.calls != 0 {
		t.Fatalf("automated send's echo started a takeover lease (StartOrRefresh called %d times)", fx.takeover.calls)
	}
	if fx.store.calls != 0 {
		t.Fatalf("echo hit the delivery store %d times, want 0", fx.store.calls)
	}
}

func TestInboundMessagePublishesAfterClaim(t *testing.T) {
	fx := newServiceFixture()
	settings := tenant.Settings{TenantID: uuid.New()}

	record := MessagingRecord{
		Sender:    Participant{ID: "psid-1"},
		Recipient: Participant{ID: "page-1"},
		Message:   &Message{MessageID: "mid.1", Text: "hi"},
	}
	if err := fx.service.processRecord(context.Background(), settings, record); err != nil {
		t.Fatalf("processRecord: %v", err)
	}

	if fx.leads.upserts != 1 || fx.leads.inbounds != 1 {
		t.Fatalf("lead writes = %d upserts / %d inbounds, want 1/1", fx.leads.upserts, fx.leads.inbounds)
	}
	if len(fx.bus.published) != 1 {
		t.Fatalf("published %d events, want 1", len(fx.bus.published))
	}
	if _, ok := fx.bus.published[0].(events.InboundMessageReceived); !ok {
		t.Fatalf("published %T, want InboundMessageReceived", fx.bus.published[0])
	}
}

func TestReferralRecordClaimedWithoutEvent(t *testing.T) {
	fx := newServiceFixture()
	settings := tenant.Settings{TenantID: uuid.New()}

	record := MessagingRecord{
		Sender:    Participant{ID: "psid-1"},
		Recipient: Participant{ID: "page-1"},
		Timestamp: 1700000000000,
		Referral:  &Referral{Ref: "summer-promo", Source: "SHORTLINK", Type: "OPEN_THREAD"},
	}
	if err := fx.service.processRecord(context.Background(), settings, record); err != nil {
		t.Fatalf("processRecord: %v", err)
	}

	if fx.store.calls != 1 {
		t.Fatalf("referral hit the delivery store %d times, want 1", fx.store.calls)
	}
	if fx.leads.upserts != 1 {
		t.Fatalf("referral upserted %d leads, want 1", fx.leads.upserts)
	}
	if len(fx.bus.published) != 0 {
		t.Fatalf("referral published %d events, want none", len(fx.bus.published))
	}

	// A redelivered referral loses the claim and stays silent.
	if err := fx.service.processRecord(context.Background(), settings, record); err != nil {
		t.Fatalf("processRecord redelivery: %v", err)
	}
	if fx.leads.upserts != 1 {
		t.Fatalf("redelivered referral upserted again (%d upserts)", fx.leads.upserts)
	}
}
