// Package delay provides the durable "run this again at time T"
// primitive shared by workflow resumption and follow-up scheduling.
//
// There is no task table: each owning record (a workflow run, a
// follow-up state) carries its own wake time, and a Source implements
// the atomic claim over those records. A claim must transition the
// record out of the claimable set in the same statement that selects
// it — typically a conditional update guarded by a version column over
// rows locked with FOR UPDATE SKIP LOCKED — so that two overlapping
// poller invocations can never both obtain the same item. Waiting of
// any duration is data plus a future poll; nothing here sleeps.
package delay

import (
	"context"

	"chatflow_backend/platform/logger"
)

// Result are the counts a poller invocation reports back to its caller.
type Result struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Source claims due work items of type T. Implementations must be safe
// under concurrent callers across processes.
type Source[T any] interface {
	ClaimDue(ctx context.Context, limit int) ([]T, error)
}

// Poller drains due items from a Source and hands each to a handler.
// A handler failure counts the item as failed and never aborts the
// rest of the batch; the claim is not rolled back.
type Poller[T any] struct {
	source Source[T]
	handle func(ctx context.Context, item T) error
	log    *logger.Logger
	limit  int
}

func NewPoller[T any](source Source[T], handle func(ctx context.Context, item T) error, limit int, log *logger.Logger) *Poller[T] {
	if limit < 1 {
		limit = 50
	}
	return &Poller[T]{source: source, handle: handle, log: log, limit: limit}
}

// RunOnce claims one batch of due items and processes them.
// Invoking it more than once for the same tick is safe: items already
// claimed by another invocation simply don't come back.
func (p *Poller[T]) RunOnce(ctx context.Context) (Result, error) {
	items, err := p.source.ClaimDue(ctx, p.limit)
	if err != nil {
		return Result{}, err
	}

	result := Result{Processed: len(items)}
	for _, item := range items {
		if err := p.handle(ctx, item); err != nil {
			result.Failed++
			p.log.Error("delayed item failed", "error", err)
			continue
		}
		result.Succeeded++
	}
	return result, nil
}
