package logger

import (
	"time"
)

// ComponentRegistry tracks the clients and worker pools a process has built,
// for startup summary display and diagnostics.
type ComponentRegistry struct {
	startTime time.Time
	clients   []ClientComponent
	executors []ExecutorComponent
}

// ClientComponent represents a built outbound client.
type ClientComponent struct {
	Name   string
	Target string // base URL, or "-" when requests carry full URLs
	Status string // "built", "closed"
}

// ExecutorComponent represents a worker pool backing asynchronous requests.
type ExecutorComponent struct {
	Name       string
	MinWorkers int
	MaxWorkers int
	QueueSize  int
}

// ComponentRegistryInstance is the global component registry.
var ComponentRegistryInstance = NewComponentRegistry()

// NewComponentRegistry creates a new component registry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{
		startTime: time.Now(),
		clients:   make([]ClientComponent, 0),
		executors: make([]ExecutorComponent, 0),
	}
}

// StartTime returns the registry creation time.
func (r *ComponentRegistry) StartTime() time.Time {
	return r.startTime
}

// RegisterClient registers a built client.
func (r *ComponentRegistry) RegisterClient(name, target, status string) {
	if target == "" {
		target = "-"
	}
	r.clients = append(r.clients, ClientComponent{
		Name:   name,
		Target: target,
		Status: status,
	})
}

// RegisterExecutor registers a worker pool.
func (r *ComponentRegistry) RegisterExecutor(name string, minWorkers, maxWorkers, queueSize int) {
	r.executors = append(r.executors, ExecutorComponent{
		Name:       name,
		MinWorkers: minWorkers,
		MaxWorkers: maxWorkers,
		QueueSize:  queueSize,
	})
}

// Clients returns all registered clients.
func (r *ComponentRegistry) Clients() []ClientComponent {
	return r.clients
}

// Executors returns all registered worker pools.
func (r *ComponentRegistry) Executors() []ExecutorComponent {
	return r.executors
}
