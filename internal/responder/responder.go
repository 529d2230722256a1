// Package responder decides whether the bot may speak in a
// conversation and produces its replies. Reply generation itself is
// pluggable; the gate around it enforces human takeover and the
// per-lead bot switch.
package responder

import (
	"context"
	"fmt"

	"chatflow_backend/internal/leads"

	"github.com/google/uuid"
)

// Responder generates the bot's reply to one inbound message. An empty
// reply with a nil error means the bot chooses to stay silent.
type Responder interface {
	Respond(ctx context.Context, tenantID uuid.UUID, lead leads.Lead, text string) (string, error)
}

// StaticResponder replies with a fixed acknowledgement template. It is
// the default until a tenant plugs in a real reply engine.
type StaticResponder struct {
	Template string
}

func (r *StaticResponder) Respond(_ context.Context, _ uuid.UUID, lead leads.Lead, _ string) (string, error) {
	if r.Template == "" {
		return "", nil
	}
	if lead.FirstName != "" {
		return fmt.Sprintf("%s, %s", lead.FirstName, r.Template), nil
	}
	return r.Template, nil
}
