package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/restkit/logger"
)

// stopTimeout bounds how long each resource gets to stop during shutdown.
const stopTimeout = 10 * time.Second

// managedEntry holds a resource and its started state.
type managedEntry struct {
	resource Managed
	started  bool
}

// Registry manages resource lifecycle with deterministic ordering.
// Resources are started in registration order and stopped in reverse order.
type Registry struct {
	entries []*managedEntry
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Manage adds a resource to the registry. Resources are started in the order
// they are registered, so register dependencies first.
func (r *Registry) Manage(m Managed) error {
	return r.add(m, false)
}

// ManageStarted registers a resource that is already running. It will be
// stopped at shutdown without being started again.
func (r *Registry) ManageStarted(m Managed) error {
	return r.add(m, true)
}

func (r *Registry) add(m Managed, started bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := &managedEntry{resource: m, started: started}
	r.entries = append(r.entries, entry)

	logger.Debug("Resource registered", map[string]interface{}{
		"managed": len(r.entries),
	})
	return nil
}

// StartAll starts all resources in registration order.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, entry := range r.entries {
		if entry.started {
			continue
		}
		if err := entry.resource.Start(ctx); err != nil {
			logger.Error("Resource start failed", map[string]interface{}{
				"index": i,
				"error": err.Error(),
			})
			return fmt.Errorf("lifecycle: failed to start resource %d: %w", i, err)
		}
		entry.started = true
	}
	return nil
}

// StopAll stops all started resources in reverse registration order.
// Every resource gets a bounded amount of time to stop; errors are collected
// rather than aborting the shutdown sequence.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for i := len(r.entries) - 1; i >= 0; i-- {
		entry := r.entries[i]
		if !entry.started {
			continue
		}

		stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
		if err := entry.resource.Stop(stopCtx); err != nil {
			errs = append(errs, fmt.Errorf("lifecycle: failed to stop resource %d: %w", i, err))
			logger.Error("Resource stop failed", map[string]interface{}{
				"index": i,
				"error": err.Error(),
			})
		}
		entry.started = false
		cancel()
	}

	if len(errs) > 0 {
		return fmt.Errorf("lifecycle: shutdown errors: %v", errs)
	}
	return nil
}

// Len returns the number of managed resources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
