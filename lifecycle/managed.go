package lifecycle

import "context"

// Managed is a resource whose lifetime is owned by a Registry.
// Start is called in registration order, Stop in reverse order.
type Managed interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// hooks adapts a pair of functions to the Managed interface.
type hooks struct {
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

func (h hooks) Start(ctx context.Context) error {
	if h.start == nil {
		return nil
	}
	return h.start(ctx)
}

func (h hooks) Stop(ctx context.Context) error {
	if h.stop == nil {
		return nil
	}
	return h.stop(ctx)
}

// Hooks creates a Managed from start and stop functions. Either may be nil.
func Hooks(start, stop func(ctx context.Context) error) Managed {
	return hooks{start: start, stop: stop}
}

// OnStop creates a Managed whose start is a no-op. Use it to register
// shutdown-only resources such as an already-constructed client.
func OnStop(stop func(ctx context.Context) error) Managed {
	return hooks{stop: stop}
}
