package lifecycle

import (
	"context"

	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/serializer"
	"github.com/kbukum/restkit/validation"
)

// Environment is the host-owned handle a client builder uses to derive
// defaults: a lifecycle registry for managed resources, a serializer, and a
// struct validator. It is the Go analog of a framework environment object.
type Environment struct {
	name       string
	registry   *Registry
	serializer serializer.Serializer
	validator  validation.TagValidator
	log        *logger.Logger
}

// EnvironmentOption customizes an Environment.
type EnvironmentOption func(*Environment)

// WithSerializer replaces the environment's default serializer.
func WithSerializer(s serializer.Serializer) EnvironmentOption {
	return func(e *Environment) { e.serializer = s }
}

// WithValidator replaces the environment's default validator.
func WithValidator(v validation.TagValidator) EnvironmentOption {
	return func(e *Environment) { e.validator = v }
}

// WithLogger replaces the environment's logger.
func WithLogger(l *logger.Logger) EnvironmentOption {
	return func(e *Environment) { e.log = l }
}

// NewEnvironment creates an environment with a fresh registry, a JSON
// serializer, and the default tag validator.
func NewEnvironment(name string, opts ...EnvironmentOption) *Environment {
	e := &Environment{
		name:       name,
		registry:   NewRegistry(),
		serializer: serializer.NewJSON(),
		validator:  validation.Default(),
		log:        logger.Get(name),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the environment name.
func (e *Environment) Name() string { return e.name }

// Lifecycle returns the registry that owns managed resources.
func (e *Environment) Lifecycle() *Registry { return e.registry }

// Serializer returns the environment's serializer.
func (e *Environment) Serializer() serializer.Serializer { return e.serializer }

// Validator returns the environment's struct validator.
func (e *Environment) Validator() validation.TagValidator { return e.validator }

// Logger returns the environment's logger.
func (e *Environment) Logger() *logger.Logger { return e.log }

// Start starts all managed resources.
func (e *Environment) Start(ctx context.Context) error {
	return e.registry.StartAll(ctx)
}

// Shutdown stops all managed resources in reverse order.
func (e *Environment) Shutdown(ctx context.Context) error {
	return e.registry.StopAll(ctx)
}
