package batch

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Run is the handle for one in-flight (or finished) ingestion run.
type Run struct {
	ID        uuid.UUID
	BatchID   uuid.UUID
	StartedAt time.Time

	done    chan struct{}
	summary *Summary
	err     error
}

// Done is closed once the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run finishes and returns its outcome.
func (r *Run) Wait() (*Summary, error) {
	<-r.done
	return r.summary, r.err
}

// Snapshot returns the outcome so far. summary is nil while the run is still
// in flight.
func (r *Run) Snapshot() (summary *Summary, running bool) {
	select {
	case <-r.done:
		return r.summary, false
	default:
		return nil, true
	}
}

// Registry tracks at most one active run per batch and keeps the last
// finished run around for status queries.
type Registry struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*Run // keyed by batch ID
}

func NewRegistry() *Registry {
	return &Registry{runs: make(map[uuid.UUID]*Run)}
}

// IsRunning reports whether an ingestion run for batchID is still in flight.
func (g *Registry) IsRunning(batchID uuid.UUID) bool {
	g.mu.Lock()
	r, ok := g.runs[batchID]
	g.mu.Unlock()
	if !ok {
		return false
	}
	_, running := r.Snapshot()
	return running
}

// Get returns the latest run for batchID, finished or not.
func (g *Registry) Get(batchID uuid.UUID) (*Run, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.runs[batchID]
	return r, ok
}

// begin registers a new run, refusing a second concurrent run per batch.
func (g *Registry) begin(batchID uuid.UUID) (*Run, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.runs[batchID]; ok {
		if _, running := prev.Snapshot(); running {
			return nil, fmt.Errorf("batch %s already has a run in flight", batchID)
		}
	}
	r := &Run{ID: uuid.New(), BatchID: batchID, StartedAt: time.Now().UTC(), done: make(chan struct{})}
	g.runs[batchID] = r
	return r, nil
}

func (r *Run) finish(summary *Summary, err error) {
	r.summary = summary
	r.err = err
	close(r.done)
}
