package tx

import (
	"context"
	"sync"
)

// MemoryRunner is a Runner for tests over in-memory stores. It
// serializes transactions with a coarse lock and rolls back by
// restoring store snapshots taken at transaction start, which gives
// service tests real all-or-nothing semantics without a database.
type MemoryRunner struct {
	mu sync.Mutex
	// capture takes a snapshot of one store and returns the function
	// that restores it.
	capture []func() func()
}

// NewMemoryRunner builds a runner over the given snapshot functions,
// one per participating store.
func NewMemoryRunner(capture ...func() func()) *MemoryRunner {
	return &MemoryRunner{capture: capture}
}

func (r *MemoryRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	restores := make([]func(), 0, len(r.capture))
	for _, c := range r.capture {
		restores = append(restores, c())
	}

	if err := fn(ctx); err != nil {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
		return err
	}
	return nil
}
