// Package capacity bounds concurrently running nodes across all plans.
// Each plan also enforces its own max-parallel limit; this manager is a
// global ceiling layered on top of the per-plan limits.
package capacity

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Manager is a global scheduling-slot pool. A nil *Manager is valid and
// grants every request, so callers never need to special-case the
// unlimited configuration.
type Manager struct {
	sem   *semaphore.Weighted
	limit int
}

// NewManager creates a Manager with the given slot count. A limit of
// zero or less means unlimited and returns nil.
func NewManager(limit int) *Manager {
	if limit <= 0 {
		return nil
	}
	return &Manager{
		sem:   semaphore.NewWeighted(int64(limit)),
		limit: limit,
	}
}

// Limit returns the configured slot count, 0 for unlimited.
func (m *Manager) Limit() int {
	if m == nil {
		return 0
	}
	return m.limit
}

// TryAcquire claims a slot without blocking. Exhausted capacity is not
// an error: the scheduler simply defers admission and tries again on the
// next pass.
func (m *Manager) TryAcquire() bool {
	if m == nil {
		return true
	}
	return m.sem.TryAcquire(1)
}

// Acquire claims a slot, blocking until one frees or ctx is done.
func (m *Manager) Acquire(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.sem.Acquire(ctx, 1)
}

// Release returns a slot to the pool.
func (m *Manager) Release() {
	if m == nil {
		return
	}
	m.sem.Release(1)
}
