// Package events defines the domain events the modules exchange and
// re-exports the platform bus so modules need a single import.
package events

import (
	platformevents "chatflow_backend/platform/events"
	"chatflow_backend/platform/logger"
)

// InMemoryBus aliases the platform implementation.
type InMemoryBus = platformevents.InMemoryBus

// NewInMemoryBus builds the process-local bus used by both binaries.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return platformevents.NewInMemoryBus(log)
}
