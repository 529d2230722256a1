package responder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatflow_backend/internal/channel"
	"chatflow_backend/internal/leads"
	"chatflow_backend/platform/logger"

	"github.com/google/uuid"
)

type testChannelConfig struct {
	url string
}

func (c testChannelConfig) GetChannelAPIURL() string                { return c.url }
func (c testChannelConfig) GetChannelAPITimeout() time.Duration     { return 2 * time.Second }
func (c testChannelConfig) GetChannelCredentialsTTL() time.Duration { return time.Minute }

type staticCreds struct{}

func (staticCreds) CredentialsFor(context.Context, uuid.UUID) (channel.Credentials, error) {
	return channel.Credentials{AccessToken: "token", PageID: "page-1"}, nil
}

type gateLeads struct {
	lead leads.Lead
}

func (g *gateLeads) GetByID(context.Context, uuid.UUID, uuid.UUID) (leads.Lead, error) {
	return g.lead, nil
}

type gateTakeover struct {
	active bool
}

func (g *gateTakeover) IsActive(context.Context, uuid.UUID, string) (bool, error) {
	return g.active, nil
}

// countingChannel records how many message sends reached the platform.
func countingChannel(t *testing.T) (*channel.Client, *int) {
	t.Helper()
	sends := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sends++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message_id":"mid.out"}`))
	}))
	t.Cleanup(server.Close)

	client := channel.NewClient(testChannelConfig{url: server.URL}, staticCreds{}, logger.New("test"))
	return client, &sends
}

func TestReplySendsWhenBotAllowed(t *testing.T) {
	client, sends := countingChannel(t)
	leadStore := &gateLeads{lead: leads.Lead{ConversationID: "conv-1", BotEnabled: true}}
	gate := NewGate(&StaticResponder{Template: "thanks for reaching out"}, leadStore, &gateTakeover{}, client, logger.New("test"))

	if err := gate.Reply(context.Background(), uuid.New(), uuid.New(), "hello"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	// typing indicator + text message
	if *sends != 2 {
		t.Fatalf("platform saw %d requests, want 2", *sends)
	}
}

func TestReplySuppressedByTakeover(t *testing.T) {
	client, sends := countingChannel(t)
	leadStore := &gateLeads{lead: leads.Lead{ConversationID: "conv-1", BotEnabled: true}}
	gate := NewGate(&StaticResponder{Template: "hi"}, leadStore, &gateTakeover{active: true}, client, logger.New("test"))

	if err := gate.Reply(context.Background(), uuid.New(), uuid.New(), "hello"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if *sends != 0 {
		t.Fatal("bot spoke while a human held the conversation")
	}
}

func TestReplySuppressedWhenBotDisabled(t *testing.T) {
	client, sends := countingChannel(t)
	leadStore := &gateLeads{lead: leads.Lead{ConversationID: "conv-1", BotEnabled: false}}
	gate := NewGate(&StaticResponder{Template: "hi"}, leadStore, &gateTakeover{}, client, logger.New("test"))

	if err := gate.Reply(context.Background(), uuid.New(), uuid.New(), "hello"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if *sends != 0 {
		t.Fatal("bot spoke with its switch off")
	}
}

func TestReplyEmptyResponderStaysSilent(t *testing.T) {
	client, sends := countingChannel(t)
	leadStore := &gateLeads{lead: leads.Lead{ConversationID: "conv-1", BotEnabled: true}}
	gate := NewGate(&StaticResponder{}, leadStore, &gateTakeover{}, client, logger.New("test"))

	if err := gate.Reply(context.Background(), uuid.New(), uuid.New(), "hello"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if *sends != 0 {
		t.Fatal("empty reply still hit the platform")
	}
}
