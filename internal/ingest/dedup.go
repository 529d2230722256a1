package ingest

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// DeliveryStore is the durable side of the dedup claim.
type DeliveryStore interface {
	// ClaimDelivery records the event id and reports whether this call
	// won the claim. Losing means the event was already processed.
	ClaimDelivery(ctx context.Context, tenantID uuid.UUID, eventID string) (bool, error)
}

// Deduplicator grants at-most-once processing claims on platform
// event ids. A bounded in-process set absorbs the common case of
// immediate redelivery bursts; the database insert is the authority,
// so claims stay correct across replicas and restarts.
type Deduplicator struct {
	store DeliveryStore

	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	cap   int
}

func NewDeduplicator(store DeliveryStore, capacity int) *Deduplicator {
	if capacity < 1 {
		capacity = 500
	}
	return &Deduplicator{
		store: store,
		seen:  make(map[string]struct{}, capacity),
		cap:   capacity,
	}
}

// Claim returns true when the caller may process the event. A local
// cache hit short-circuits without touching the database; otherwise
// the insert decides, and only a won claim is cached.
func (d *Deduplicator) Claim(ctx context.Context, tenantID uuid.UUID, eventID string) (bool, error) {
	key := tenantID.String() + ":" + eventID

	d.mu.Lock()
	_, dup := d.seen[key]
	d.mu.Unlock()
	if dup {
		return false, nil
	}

	won, err := d.store.ClaimDelivery(ctx, tenantID, eventID)
	if err != nil {
		return false, err
	}
	if won {
		d.remember(key)
	}
	return won, nil
}

// remember inserts the key, evicting the oldest entry at capacity.
func (d *Deduplicator) remember(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return
	}
	if len(d.order) >= d.cap {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
	d.seen[key] = struct{}{}
	d.order = append(d.order, key)
}
