package mesh

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Gate serialises access to the companion device. At most one holder at a
// time; acquisition is context-aware so callers can bound how long they
// wait behind the background workers.
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate creates a device access gate.
func NewGate() *Gate {
	return &Gate{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the gate is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquiring device gate: %w", err)
	}
	return nil
}

// TryAcquire acquires the gate without blocking. It reports whether the
// gate was acquired.
func (g *Gate) TryAcquire() bool {
	return g.sem.TryAcquire(1)
}

// Release frees the gate. It must be called exactly once per successful
// Acquire or TryAcquire.
func (g *Gate) Release() {
	g.sem.Release(1)
}
