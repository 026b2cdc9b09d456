// Package quota tracks the finite document-processing allowance a tenant has
// remaining. Capacity is granted before work is committed and consumed only
// on successful persistence.
package quota

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a read-only snapshot of the quota.
type Status struct {
	Total     int       `json:"total"`
	Remaining int       `json:"remaining"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Gate grants or denies document capacity. Remaining capacity never goes
// negative: Consume is a compare-and-consume, not a read-then-write.
type Gate interface {
	// HasCapacity reports whether at least n units remain. A non-reserving
	// pre-check; concurrent callers race for the actual Consume.
	HasCapacity(ctx context.Context, n int) (bool, error)
	// Consume atomically debits n units for documentID. Returns false when
	// capacity is exhausted or the quota expired. Idempotent per documentID:
	// a repeat call for an already-billed document succeeds without debiting.
	Consume(ctx context.Context, documentID uuid.UUID, n int) (bool, error)
	// Release refunds a prior consumption for documentID (compensation when
	// a save is rolled back).
	Release(ctx context.Context, documentID uuid.UUID) error
	Status(ctx context.Context) (Status, error)
}

// MemoryGate is an in-process Gate for single-node mode and tests.
type MemoryGate struct {
	mu        sync.Mutex
	total     int
	remaining int
	expiresAt time.Time
	consumed  map[uuid.UUID]int
	now       func() time.Time
}

func NewMemoryGate(total int, expiresAt time.Time) *MemoryGate {
	return &MemoryGate{
		total:     total,
		remaining: total,
		expiresAt: expiresAt,
		consumed:  make(map[uuid.UUID]int),
		now:       time.Now,
	}
}

func (g *MemoryGate) expired() bool {
	return !g.expiresAt.IsZero() && g.now().After(g.expiresAt)
}

func (g *MemoryGate) HasCapacity(_ context.Context, n int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.expired() {
		return false, nil
	}
	return g.remaining >= n, nil
}

func (g *MemoryGate) Consume(_ context.Context, documentID uuid.UUID, n int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.consumed[documentID]; ok {
		return true, nil
	}
	if g.expired() || g.remaining < n {
		return false, nil
	}
	g.remaining -= n
	g.consumed[documentID] = n
	return true, nil
}

func (g *MemoryGate) Release(_ context.Context, documentID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.consumed[documentID]; ok {
		g.remaining += n
		delete(g.consumed, documentID)
	}
	return nil
}

func (g *MemoryGate) Status(_ context.Context) (Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{Total: g.total, Remaining: g.remaining, ExpiresAt: g.expiresAt}, nil
}
