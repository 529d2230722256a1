package ingest

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"

	"chatflow_backend/platform/config"
	"chatflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// Envelope is the platform's webhook batch payload.
type Envelope struct {
	Object  string  `json:"object"`
	Entries []Entry `json:"entry"`
}

// Entry groups the messaging records delivered for one page.
type Entry struct {
	PageID    string            `json:"id"`
	Time      int64             `json:"time"`
	Messaging []MessagingRecord `json:"messaging"`
}

// MessagingRecord is one conversational event. Exactly one of Message,
// Postback or Referral is set for records the engine cares about.
type MessagingRecord struct {
	Sender    Participant `json:"sender"`
	Recipient Participant `json:"recipient"`
	Timestamp int64       `json:"timestamp"`
	Message   *Message    `json:"message,omitempty"`
	Postback  *Postback   `json:"postback,omitempty"`
	Referral  *Referral   `json:"referral,omitempty"`
}

type Participant struct {
	ID string `json:"id"`
}

type Message struct {
	MessageID string `json:"mid"`
	Text      string `json:"text"`
	IsEcho    bool   `json:"is_echo"`
	// AppID is set on echoes of messages sent through the API; echoes
	// of replies a human typed in the page inbox carry none.
	AppID int64 `json:"app_id,omitempty"`
}

type Postback struct {
	MessageID string `json:"mid"`
	Payload   string `json:"payload"`
	Title     string `json:"title"`
}

// Referral reports how the conversation was entered (m.me link, ad
// click, QR scan). It carries no message id of its own.
type Referral struct {
	Ref    string `json:"ref"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

// eventID is the dedup key for the record. Messages and postbacks use
// the platform message id; referrals carry none, so the sender and the
// delivery timestamp stand in.
func (r MessagingRecord) eventID() string {
	if r.Message != nil {
		return r.Message.MessageID
	}
	if r.Postback != nil {
		return r.Postback.MessageID
	}
	if r.Referral != nil {
		return fmt.Sprintf("referral:%s:%d", r.Sender.ID, r.Timestamp)
	}
	return ""
}

// TokenDirectory resolves whether a verify token belongs to a tenant.
type TokenDirectory interface {
	VerifyTokenExists(ctx context.Context, token string) (bool, error)
}

type Handler struct {
	service      *Service
	verifyToken  string
	tenantTokens TokenDirectory // optional
	log          *logger.Logger
}

func NewHandler(service *Service, cfg config.WebhookConfig, tenantTokens TokenDirectory, log *logger.Logger) *Handler {
	return &Handler{
		service:      service,
		verifyToken:  cfg.GetWebhookVerifyToken(),
		tenantTokens: tenantTokens,
		log:          log,
	}
}

// HandleVerify answers the platform's subscription handshake. The
// presented token must match either the application-wide token or a
// verify token some tenant configured for its page subscription.
// GET /api/v1/webhook/messaging
func (h *Handler) HandleVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || !h.tokenAccepted(c.Request.Context(), token) {
		c.String(http.StatusForbidden, "verification failed")
		return
	}
	c.String(http.StatusOK, challenge)
}

func (h *Handler) tokenAccepted(ctx context.Context, token string) bool {
	if h.verifyToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) == 1 {
		return true
	}
	if h.tenantTokens == nil {
		return false
	}
	ok, err := h.tenantTokens.VerifyTokenExists(ctx, token)
	if err != nil {
		h.log.Warn("tenant verify token lookup failed", "error", err)
		return false
	}
	return ok
}

// HandleReceive ingests a webhook envelope. The response is always
// 200: the platform interprets anything else as "redeliver the whole
// batch", and per-record failures are already isolated inside the
// service.
// POST /api/v1/webhook/messaging
func (h *Handler) HandleReceive(c *gin.Context) {
	var env Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		h.log.Warn("unparseable webhook payload", "error", err)
		c.String(http.StatusOK, "ok")
		return
	}

	h.service.ProcessEnvelope(c.Request.Context(), env)
	c.String(http.StatusOK, "ok")
}
