package lifecycle

import (
	"context"
	"strings"

	"github.com/kbukum/restkit/executor"
	"github.com/kbukum/restkit/logger"
)

// ExecutorBuilder assembles a managed worker pool with a fluent chain.
// Obtain one from Registry.ExecutorService.
type ExecutorBuilder struct {
	registry    *Registry
	namePattern string
	min         int
	max         int
	queue       int
}

// ExecutorService begins building a worker pool tied to this registry.
// namePattern may contain a single "%s" verb filled with the pool index-free
// short name, mirroring thread-name patterns.
func (r *Registry) ExecutorService(namePattern string) *ExecutorBuilder {
	return &ExecutorBuilder{
		registry:    r,
		namePattern: namePattern,
		min:         1,
		max:         1,
		queue:       8,
	}
}

// MinWorkers sets the number of workers started eagerly.
func (b *ExecutorBuilder) MinWorkers(n int) *ExecutorBuilder {
	b.min = n
	return b
}

// MaxWorkers sets the upper bound on workers.
func (b *ExecutorBuilder) MaxWorkers(n int) *ExecutorBuilder {
	b.max = n
	return b
}

// WorkQueue sets the capacity of the bounded work queue.
func (b *ExecutorBuilder) WorkQueue(capacity int) *ExecutorBuilder {
	b.queue = capacity
	return b
}

// Build constructs the pool, starts it, and registers it for shutdown when
// the registry stops.
func (b *ExecutorBuilder) Build() (*executor.Pool, error) {
	// Thread-name style patterns like "rest-client-billing-%d" carry a verb
	// for the worker index; the pool name drops it.
	name := strings.NewReplacer("-%d", "", "-%s", "", "%d", "", "%s", "").Replace(b.namePattern)

	pool, err := executor.New(executor.Config{
		Name:       name,
		MinWorkers: b.min,
		MaxWorkers: b.max,
		QueueSize:  b.queue,
	})
	if err != nil {
		return nil, err
	}

	if err := pool.Start(context.Background()); err != nil {
		return nil, err
	}
	if err := b.registry.ManageStarted(pool); err != nil {
		return nil, err
	}
	logger.ComponentRegistryInstance.RegisterExecutor(name, b.min, b.max, b.queue)
	return pool, nil
}
