// Package channel is the outbound adapter for the messaging platform
// API: text sends, typing indicators and profile lookups, with
// per-tenant credentials resolved from tenant settings.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"chatflow_backend/platform/config"
	"chatflow_backend/platform/logger"

	"github.com/google/uuid"
)

type Client struct {
	baseURL string
	creds   CredentialsProvider
	http    *http.Client
	log     *logger.Logger
}

type recipientRef struct {
	ID string `json:"id"`
}

type textMessage struct {
	Text string `json:"text"`
}

type sendRequest struct {
	Recipient recipientRef `json:"recipient"`
	Message   *textMessage `json:"message,omitempty"`
	// SenderAction carries typing_on / typing_off instead of a message.
	SenderAction  string `json:"sender_action,omitempty"`
	MessagingType string `json:"messaging_type,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

// Profile is the public profile of a conversation participant.
type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func NewClient(cfg config.ChannelConfig, creds CredentialsProvider, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.GetChannelAPIURL(), "/"),
		creds:   creds,
		http:    &http.Client{Timeout: cfg.GetChannelAPITimeout()},
		log:     log,
	}
}

// SendText delivers one text message to a conversation. The returned
// message id is the platform's, later seen back on the webhook as an
// echo.
func (c *Client) SendText(ctx context.Context, tenantID uuid.UUID, conversationID, text string) (string, error) {
	payload := sendRequest{
		Recipient:     recipientRef{ID: conversationID},
		Message:       &textMessage{Text: text},
		MessagingType: "MESSAGE_TAG",
	}

	var resp sendResponse
	if err := c.post(ctx, tenantID, "/me/messages", payload, &resp); err != nil {
		return "", fmt.Errorf("send text: %w", err)
	}

	c.log.ChannelSend(conversationID, true, "")
	return resp.MessageID, nil
}

// SendTypingIndicator toggles the typing indicator. Best effort:
// failures are logged, never surfaced.
func (c *Client) SendTypingIndicator(ctx context.Context, tenantID uuid.UUID, conversationID string, on bool) {
	action := "typing_off"
	if on {
		action = "typing_on"
	}

	payload := sendRequest{
		Recipient:    recipientRef{ID: conversationID},
		SenderAction: action,
	}
	if err := c.post(ctx, tenantID, "/me/messages", payload, nil); err != nil {
		c.log.Debug("typing indicator failed", "conversationId", conversationID, "error", err)
	}
}

// FetchProfile looks up the participant's public profile. Best effort:
// a zero Profile with a nil error means the platform declined the
// lookup, which callers treat as "no name available".
func (c *Client) FetchProfile(ctx context.Context, tenantID uuid.UUID, conversationID string) (Profile, error) {
	creds, err := c.creds.CredentialsFor(ctx, tenantID)
	if err != nil {
		return Profile{}, err
	}

	endpoint := fmt.Sprintf("%s/%s?fields=first_name,last_name&access_token=%s",
		c.baseURL, url.PathEscape(conversationID), url.QueryEscape(creds.AccessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Profile{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("profile request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		c.log.Debug("profile lookup declined", "conversationId", conversationID, "status", resp.StatusCode)
		return Profile{}, nil
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return profile, nil
}

func (c *Client) post(ctx context.Context, tenantID uuid.UUID, path string, payload, out interface{}) error {
	creds, err := c.creds.CredentialsFor(ctx, tenantID)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal channel payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s%s?access_token=%s", c.baseURL, path, url.QueryEscape(creds.AccessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("channel request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("channel API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode channel response: %w", err)
		}
	}
	return nil
}
