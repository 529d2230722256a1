package delay

import (
	"context"
	"errors"
	"sync"
	"testing"

	"chatflow_backend/platform/logger"
)

type sliceSource struct {
	items []int
	err   error
}

func (s *sliceSource) ClaimDue(_ context.Context, limit int) ([]int, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.items) > limit {
		claimed := s.items[:limit]
		s.items = s.items[limit:]
		return claimed, nil
	}
	claimed := s.items
	s.items = nil
	return claimed, nil
}

func TestRunOnceCountsPerItemOutcomes(t *testing.T) {
	source := &sliceSource{items: []int{1, 2, 3}}
	handle := func(_ context.Context, item int) error {
		if item == 2 {
			return errors.New("boom")
		}
		return nil
	}

	poller := NewPoller[int](source, handle, 10, logger.New("test"))
	result, err := poller.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.Processed != 3 || result.Succeeded != 2 || result.Failed != 1 {
		t.Fatalf("result = %+v", result)
	}
}

func TestRunOnceRespectsBatchLimit(t *testing.T) {
	source := &sliceSource{items: []int{1, 2, 3, 4, 5}}
	poller := NewPoller[int](source, func(context.Context, int) error { return nil }, 2, logger.New("test"))

	result, err := poller.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.Processed != 2 {
		t.Fatalf("processed %d items, want the batch limit of 2", result.Processed)
	}
}

func TestRunOnceClaimErrorPropagates(t *testing.T) {
	source := &sliceSource{err: errors.New("db down")}
	poller := NewPoller[int](source, func(context.Context, int) error { return nil }, 10, logger.New("test"))

	if _, err := poller.RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce swallowed the claim error")
	}
}

// claimOnceSource hands each item out exactly once under a lock, the
// way the SKIP LOCKED claim statements behave across workers.
type claimOnceSource struct {
	mu      sync.Mutex
	pending []int
}

func (s *claimOnceSource) ClaimDue(_ context.Context, limit int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) > limit {
		claimed := s.pending[:limit]
		s.pending = s.pending[limit:]
		return claimed, nil
	}
	claimed := s.pending
	s.pending = nil
	return claimed, nil
}

func TestConcurrentPollersProcessEachItemOnce(t *testing.T) {
	const items = 40
	source := &claimOnceSource{}
	for i := 0; i < items; i++ {
		source.pending = append(source.pending, i)
	}

	var mu sync.Mutex
	handled := make(map[int]int)
	handle := func(_ context.Context, item int) error {
		mu.Lock()
		handled[item]++
		mu.Unlock()
		return nil
	}

	poller := NewPoller[int](source, handle, 5, logger.New("test"))

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				result, err := poller.RunOnce(context.Background())
				if err != nil {
					t.Errorf("RunOnce: %v", err)
					return
				}
				if result.Processed == 0 {
					return
				}
			}
		}()
	}
	wg.Wait()

	if len(handled) != items {
		t.Fatalf("handled %d distinct items, want %d", len(handled), items)
	}
	for item, count := range handled {
		if count != 1 {
			t.Fatalf("item %d handled %d times, want once", item, count)
		}
	}
}
