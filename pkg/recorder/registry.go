package recorder

import (
	"context"
	"fmt"
	"sync"

	"github.com/jzx17/storecheck/pkg/types"
)

// Registry tracks the recorders of in-flight runs so a harness can reach them by
// ID. Finalized runs are dropped. Safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*Recorder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*Recorder)}
}

// Register adds rec. A second recorder with the same ID is rejected.
func (g *Registry) Register(rec *Recorder) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := rec.ID()
	if _, ok := g.runs[id]; ok {
		return fmt.Errorf("%w: %s", types.ErrDuplicateRun, id)
	}
	g.runs[id] = rec
	return nil
}

// Lookup returns the recorder registered under id.
func (g *Registry) Lookup(id string) (*Recorder, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.runs[id]
	return rec, ok
}

// Remove drops id without finalizing it.
func (g *Registry) Remove(id string) {
	g.mu.Lock()
	delete(g.runs, id)
	g.mu.Unlock()
}

// Finalize removes the run and finalizes it.
func (g *Registry) Finalize(ctx context.Context, id string) error {
	g.mu.Lock()
	rec, ok := g.runs[id]
	delete(g.runs, id)
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", types.ErrRunNotFound, id)
	}
	rec.FinalizeContext(ctx)
	return nil
}

// Len returns the number of registered runs.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.runs)
}
