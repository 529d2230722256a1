package channel

import (
	"context"
	"time"

	"chatflow_backend/internal/tenant"
	"chatflow_backend/platform/apperr"
	"chatflow_backend/platform/cache"

	"github.com/google/uuid"
)

// Credentials are the per-tenant channel API credentials.
type Credentials struct {
	AccessToken string
	PageID      string
}

// CredentialsProvider resolves a tenant's channel credentials.
type CredentialsProvider interface {
	CredentialsFor(ctx context.Context, tenantID uuid.UUID) (Credentials, error)
}

// SettingsCredentials resolves credentials from tenant settings behind
// a short TTL cache, so the hot send path doesn't hit the settings
// table per message.
type SettingsCredentials struct {
	settings *tenant.Service
	cache    *cache.TTL[uuid.UUID, Credentials]
}

func NewSettingsCredentials(settings *tenant.Service, ttl time.Duration) *SettingsCredentials {
	return &SettingsCredentials{
		settings: settings,
		cache:    cache.NewTTL[uuid.UUID, Credentials](ttl),
	}
}

func (p *SettingsCredentials) CredentialsFor(ctx context.Context, tenantID uuid.UUID) (Credentials, error) {
	if creds, ok := p.cache.Get(tenantID); ok {
		return creds, nil
	}

	settings, err := p.settings.SettingsFor(ctx, tenantID)
	if err != nil {
		return Credentials{}, err
	}
	if settings.ChannelAccessToken == "" {
		return Credentials{}, apperr.New(apperr.KindInternal, "tenant has no channel access token configured")
	}

	creds := Credentials{
		AccessToken: settings.ChannelAccessToken,
		PageID:      settings.ChannelPageID,
	}
	p.cache.Set(tenantID, creds)
	return creds, nil
}
