// Package engine manages the lifecycle of the local inference engine:
// at most one live engine per process, at most one creation in flight,
// cache reuse by model, and forced reinitialization for recovery.
package engine

import (
	"context"
	"sync"

	"github.com/webchat-ai/webchat/internal/llm"
)

// inflight is one creation attempt. Awaiters block on done; after it
// closes exactly one of engine/err is set for all of them.
type inflight struct {
	model  string
	done   chan struct{}
	engine llm.Engine
	err    error
	cancel context.CancelFunc
}

func (f *inflight) settle(engine llm.Engine, err error) {
	f.engine = engine
	f.err = err
	close(f.done)
}

// Registry holds the single permitted live engine instance, the model it
// was built for, and the in-flight creation if one exists. It is shared
// process-wide and injected into whoever needs engine access; all state
// transitions happen under its lock, and the in-flight marker is always
// written before the creation path first suspends, so a concurrent
// caller observes either a populated engine or a populated in-flight
// handle, never neither.
type Registry struct {
	mu       sync.Mutex
	engine   llm.Engine
	model    string
	creating *inflight
}

func NewRegistry() *Registry {
	return &Registry{}
}

// cached returns the live engine if it matches model.
func (r *Registry) cached(model string) (llm.Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.engine != nil && r.model == model {
		return r.engine, true
	}
	return nil, false
}

// Ready reports whether a live engine for model exists right now.
func (r *Registry) Ready(model string) bool {
	_, ok := r.cached(model)
	return ok
}

// initializing reports whether a creation is in flight right now.
func (r *Registry) initializing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creating != nil
}

// reset clears all registry state. If a creation is in flight it is
// cancelled, so its awaiters observe an error and must independently
// retry.
func (r *Registry) reset() {
	r.mu.Lock()
	creating := r.creating
	r.engine = nil
	r.model = ""
	r.creating = nil
	r.mu.Unlock()

	if creating != nil && creating.cancel != nil {
		creating.cancel()
	}
}
