package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kbukum/restkit/logger"
)

// Common pool errors.
var (
	// ErrPoolClosed is returned by Submit after the pool has been shut down.
	ErrPoolClosed = errors.New("executor: pool is closed")
	// ErrQueueFull is returned by Submit when the work queue is full and no
	// additional workers can be started.
	ErrQueueFull = errors.New("executor: work queue is full")
)

// Config configures a worker pool.
type Config struct {
	// Name identifies the pool for logging.
	Name string
	// MinWorkers is the number of workers started eagerly. Defaults to 1.
	MinWorkers int
	// MaxWorkers is the upper bound on workers. Defaults to MinWorkers.
	MaxWorkers int
	// QueueSize is the capacity of the bounded work queue. Defaults to 8.
	QueueSize int
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.MinWorkers <= 0 {
		c.MinWorkers = 1
	}
	if c.MaxWorkers < c.MinWorkers {
		c.MaxWorkers = c.MinWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 8
	}
}

// Validate checks that the configuration is consistent.
func (c *Config) Validate() error {
	if c.MinWorkers > c.MaxWorkers {
		return fmt.Errorf("executor: min_workers (%d) must not exceed max_workers (%d)", c.MinWorkers, c.MaxWorkers)
	}
	return nil
}

// Pool is a bounded worker pool. Tasks submitted while all workers are busy
// wait in a fixed-capacity queue; when the queue is full new workers are
// started up to the maximum, and beyond that Submit fails fast.
type Pool struct {
	name  string
	min   int
	max   int
	tasks chan func()

	mu      sync.Mutex
	workers int
	closed  bool
	wg      sync.WaitGroup
}

// New creates a pool. Workers are not started until Start is called.
func New(cfg Config) (*Pool, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	name := cfg.Name
	if name == "" {
		name = "executor"
	}

	return &Pool{
		name:  name,
		min:   cfg.MinWorkers,
		max:   cfg.MaxWorkers,
		tasks: make(chan func(), cfg.QueueSize),
	}, nil
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Start launches the minimum number of workers.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	for p.workers < p.min {
		p.spawn(nil)
	}

	logger.Debug("Executor pool started", map[string]interface{}{
		"pool":    p.name,
		"workers": p.workers,
	})
	return nil
}

// Stop shuts the pool down, waiting for queued and in-flight tasks to finish
// or the context to expire.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Debug("Executor pool stopped", map[string]interface{}{"pool": p.name})
		return nil
	case <-ctx.Done():
		return fmt.Errorf("executor: pool %s did not drain: %w", p.name, ctx.Err())
	}
}

// Submit enqueues a task for asynchronous execution. If the queue is full a
// new worker is started, up to the configured maximum; once saturated Submit
// returns ErrQueueFull instead of blocking.
func (p *Pool) Submit(task func()) error {
	if task == nil {
		return errors.New("executor: task must not be nil")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	// Lazily started pools still accept work.
	if p.workers < p.min {
		p.spawn(task)
		return nil
	}

	select {
	case p.tasks <- task:
		return nil
	default:
	}

	if p.workers < p.max {
		// Hand the task straight to the new worker rather than racing for
		// queue space.
		p.spawn(task)
		return nil
	}

	return ErrQueueFull
}

// Workers returns the current worker count.
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// QueueDepth returns the number of tasks waiting in the queue.
func (p *Pool) QueueDepth() int {
	return len(p.tasks)
}

// spawn starts a worker goroutine. Callers must hold p.mu.
// If first is non-nil the worker runs it before draining the queue.
func (p *Pool) spawn(first func()) {
	p.workers++
	p.wg.Add(1)
	go p.work(first)
}

func (p *Pool) work(first func()) {
	defer p.wg.Done()
	if first != nil {
		run(first)
	}
	for task := range p.tasks {
		run(task)
	}
}

// run executes a task, recovering panics so one bad task cannot kill a worker.
func run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Executor task panicked", map[string]interface{}{
				"panic": fmt.Sprintf("%v", r),
			})
		}
	}()
	task()
}
