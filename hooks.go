package ecomap

import (
	"context"
	"sync"

	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/scheduler"
)

// Hook function types for pipeline events
type (
	// EntityCreatedHook is called when resolution creates an entity
	EntityCreatedHook func(e entity.Entity)

	// EntityUpdatedHook is called when resolution changes an entity
	EntityUpdatedHook func(e entity.Entity)

	// EntityAbsorbedHook is called when an entity is merged into another
	EntityAbsorbedHook func(absorbed, into string)

	// TransitionHook is called for every quality state transition
	TransitionHook func(ev entity.AuditEvent)

	// RunFinishedHook is called when a scheduled job run finishes
	RunFinishedHook func(run scheduler.Run)
)

// Compile-time interface check to ensure proper implementation.
var _ Hooks = (*hooks)(nil)

// Hooks registers callbacks for pipeline events. Callbacks run synchronously
// on the goroutine that produced the event.
type Hooks interface {
	OnEntityCreated(EntityCreatedHook)
	OnEntityUpdated(EntityUpdatedHook)
	OnEntityAbsorbed(EntityAbsorbedHook)
	OnTransition(TransitionHook)
	OnRunFinished(RunFinishedHook)
}

// hooks manages event callbacks
type hooks struct {
	mu               sync.RWMutex
	onEntityCreated  []EntityCreatedHook
	onEntityUpdated  []EntityUpdatedHook
	onEntityAbsorbed []EntityAbsorbedHook
	onTransition     []TransitionHook
	onRunFinished    []RunFinishedHook
}

// newHooks creates a new hooks instance
func newHooks() *hooks {
	return &hooks{}
}

// OnEntityCreated registers a callback for created entities
func (h *hooks) OnEntityCreated(fn EntityCreatedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onEntityCreated = append(h.onEntityCreated, fn)
}

// OnEntityUpdated registers a callback for updated entities
func (h *hooks) OnEntityUpdated(fn EntityUpdatedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onEntityUpdated = append(h.onEntityUpdated, fn)
}

// OnEntityAbsorbed registers a callback for absorbed entities
func (h *hooks) OnEntityAbsorbed(fn EntityAbsorbedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onEntityAbsorbed = append(h.onEntityAbsorbed, fn)
}

// OnTransition registers a callback for quality transitions
func (h *hooks) OnTransition(fn TransitionHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onTransition = append(h.onTransition, fn)
}

// OnRunFinished registers a callback for finished job runs
func (h *hooks) OnRunFinished(fn RunFinishedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRunFinished = append(h.onRunFinished, fn)
}

// triggerResolved fires entity hooks for a resolution run.
func (h *hooks) triggerResolved(created, updated []entity.Entity, absorbed map[string]string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, e := range created {
		for _, hook := range h.onEntityCreated {
			hook(e)
		}
	}
	for _, e := range updated {
		for _, hook := range h.onEntityUpdated {
			hook(e)
		}
	}
	for id, into := range absorbed {
		for _, hook := range h.onEntityAbsorbed {
			hook(id, into)
		}
	}
}

func (h *hooks) triggerRunFinished(run scheduler.Run) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, hook := range h.onRunFinished {
		hook(run)
	}
}

// Emit makes hooks a quality.Sink for transition callbacks.
func (h *hooks) Emit(_ context.Context, ev entity.AuditEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, hook := range h.onTransition {
		hook(ev)
	}
}
