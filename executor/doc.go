// Package executor provides a bounded worker pool for asynchronous task
// dispatch.
//
// A Pool keeps a minimum number of workers running, grows up to a configured
// maximum when its bounded work queue fills, and rejects submissions once both
// the queue and the worker budget are exhausted. Pools implement
// lifecycle.Managed so they can be tied to application lifetime through a
// lifecycle.Registry.
package executor
