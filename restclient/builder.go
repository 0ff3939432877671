package restclient

import (
	"context"
	"fmt"

	"github.com/kbukum/restkit/errors"
	"github.com/kbukum/restkit/executor"
	"github.com/kbukum/restkit/lifecycle"
	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/resilience"
	"github.com/kbukum/restkit/serializer"
	"github.com/kbukum/restkit/transport"
	"github.com/kbukum/restkit/validation"
)

// Builder assembles REST clients. Configuration methods return the builder
// for chaining; Build produces an independent client each time it is called.
//
// A build needs an execution substrate: either a lifecycle environment (from
// which a managed worker pool and the default serializer are derived, and
// which takes over client shutdown) or an explicit executor and serializer
// pair. Build fails with a configuration error when neither is present.
type Builder struct {
	cfg           Configuration
	environment   *lifecycle.Environment
	pool          *executor.Pool
	derivedPool   *executor.Pool
	serializer    serializer.Serializer
	validator     validation.TagValidator
	connectorProv ConnectorProvider
	registrations []registration
	properties    map[string]any
	propertyOrder []string

	retryHandler        transport.RetryHandler
	resolver            transport.Resolver
	hostnameVerifier    transport.HostnameVerifier
	socketRegistry      *transport.SocketFactoryRegistry
	routePlanner        transport.RoutePlanner
	credentials         transport.CredentialsProvider
	unavailableStrategy transport.UnavailableRetryStrategy
	metricNameStrategy  transport.MetricNameStrategy
}

// NewBuilder creates a builder with default configuration.
func NewBuilder() *Builder {
	return &Builder{
		properties: make(map[string]any),
	}
}

// Using replaces the builder's configuration.
func (b *Builder) Using(cfg Configuration) *Builder {
	b.cfg = cfg
	return b
}

// UsingEnvironment binds the builder to a lifecycle environment. The built
// client's worker pool is created through the environment's lifecycle and the
// client is closed on environment shutdown. The environment's validator
// always wins over one set with UsingValidator.
func (b *Builder) UsingEnvironment(env *lifecycle.Environment) *Builder {
	b.environment = env
	return b
}

// UsingExecutor supplies an explicit worker pool for asynchronous requests.
// The pool's lifetime belongs to the caller; Close does not stop it.
func (b *Builder) UsingExecutor(pool *executor.Pool) *Builder {
	b.pool = pool
	return b
}

// UsingSerializer supplies the payload serializer. Overrides the
// environment's serializer when both are present.
func (b *Builder) UsingSerializer(s serializer.Serializer) *Builder {
	b.serializer = s
	return b
}

// UsingExecutorAndSerializer supplies both in one call, satisfying the Build
// requirement without an environment.
func (b *Builder) UsingExecutorAndSerializer(pool *executor.Pool, s serializer.Serializer) *Builder {
	b.pool = pool
	b.serializer = s
	return b
}

// UsingValidator supplies the request body validator. Ignored when an
// environment is bound.
func (b *Builder) UsingValidator(v validation.TagValidator) *Builder {
	b.validator = v
	return b
}

// UsingConnectorProvider replaces the default connector while keeping the
// built transport configuration.
func (b *Builder) UsingConnectorProvider(p ConnectorProvider) *Builder {
	b.connectorProv = p
	return b
}

// WithProvider registers a feature instance. Features are applied in
// registration order, interleaved with constructor registrations.
func (b *Builder) WithProvider(f Feature) *Builder {
	b.registrations = append(b.registrations, registration{instance: f})
	return b
}

// WithProviderFunc registers a feature constructor, invoked once per Build so
// every client gets a fresh instance.
func (b *Builder) WithProviderFunc(fn func() Feature) *Builder {
	b.registrations = append(b.registrations, registration{constructor: fn})
	return b
}

// WithProperty sets a named property visible to features through the
// FeatureContext.
func (b *Builder) WithProperty(name string, value any) *Builder {
	if _, ok := b.properties[name]; !ok {
		b.propertyOrder = append(b.propertyOrder, name)
	}
	b.properties[name] = value
	return b
}

// UsingRetryHandler forwards a connection-level retry handler to the transport.
func (b *Builder) UsingRetryHandler(h transport.RetryHandler) *Builder {
	b.retryHandler = h
	return b
}

// UsingResolver forwards a custom DNS resolver to the transport.
func (b *Builder) UsingResolver(r transport.Resolver) *Builder {
	b.resolver = r
	return b
}

// UsingHostnameVerifier forwards a TLS hostname verifier to the transport.
func (b *Builder) UsingHostnameVerifier(v transport.HostnameVerifier) *Builder {
	b.hostnameVerifier = v
	return b
}

// UsingSocketFactoryRegistry forwards a per-scheme dial registry to the transport.
func (b *Builder) UsingSocketFactoryRegistry(r *transport.SocketFactoryRegistry) *Builder {
	b.socketRegistry = r
	return b
}

// UsingRoutePlanner forwards a proxy route planner to the transport.
func (b *Builder) UsingRoutePlanner(p transport.RoutePlanner) *Builder {
	b.routePlanner = p
	return b
}

// UsingCredentialsProvider forwards transport-level credentials applied to
// every request before it leaves the client.
func (b *Builder) UsingCredentialsProvider(p transport.CredentialsProvider) *Builder {
	b.credentials = p
	return b
}

// UsingUnavailableRetryStrategy forwards a 503 retry strategy to the transport.
func (b *Builder) UsingUnavailableRetryStrategy(s transport.UnavailableRetryStrategy) *Builder {
	b.unavailableStrategy = s
	return b
}

// UsingMetricNameStrategy forwards the metric naming strategy to the transport.
func (b *Builder) UsingMetricNameStrategy(s transport.MetricNameStrategy) *Builder {
	b.metricNameStrategy = s
	return b
}

// Build produces a client named name. Calling Build repeatedly yields
// independent clients that share the builder's executor.
func (b *Builder) Build(name string) (*Client, error) {
	cfg := b.cfg
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.environment == nil && (b.pool == nil || b.serializer == nil) {
		return nil, errors.Configuration(fmt.Sprintf(
			"cannot build client %q: supply a lifecycle environment or both an executor and a serializer", name))
	}

	pool, err := b.resolvePool(name, &cfg)
	if err != nil {
		return nil, err
	}

	ser := b.serializer
	if ser == nil {
		ser = b.environment.Serializer()
	}

	val := b.validator
	if b.environment != nil {
		val = b.environment.Validator()
	}
	if val == nil {
		val = validation.Default()
	}

	cc, err := b.buildTransport(name, &cfg)
	if err != nil {
		return nil, err
	}

	conn, err := b.buildConnector(cc, &cfg)
	if err != nil {
		return nil, err
	}

	// Snapshot the builder's properties so later builder mutation cannot
	// leak into a client that is already built.
	props := make(map[string]any, len(b.properties))
	for k, v := range b.properties {
		props[k] = v
	}
	order := append([]string(nil), b.propertyOrder...)

	client := &Client{
		name:          name,
		config:        cfg,
		connector:     conn,
		serializer:    ser,
		validator:     val,
		log:           b.clientLogger(name),
		pool:          pool,
		properties:    props,
		propertyOrder: order,
		cb:            b.breaker(&cfg),
		rl:            b.limiter(&cfg),
		bh:            b.bulkhead(&cfg),
		retry:         cfg.Retry,
	}

	if err := b.applyFeatures(client, &cfg); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if b.environment != nil {
		err := b.environment.Lifecycle().ManageStarted(lifecycle.OnStop(func(ctx context.Context) error {
			return client.Close()
		}))
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	logger.ComponentRegistryInstance.RegisterClient(name, cfg.BaseURL, "built")
	client.log.Debug("REST client built", map[string]interface{}{
		"client":      name,
		"max_workers": cfg.MaxWorkers,
		"gzip":        cfg.gzipEnabled(),
	})
	return client, nil
}

// resolvePool picks the client's worker pool: an explicit one wins, otherwise
// a managed pool is created through the environment once and shared by
// subsequent builds.
func (b *Builder) resolvePool(name string, cfg *Configuration) (*executor.Pool, error) {
	if b.pool != nil {
		return b.pool, nil
	}
	if b.derivedPool != nil {
		return b.derivedPool, nil
	}
	pool, err := b.environment.Lifecycle().
		ExecutorService("rest-client-" + name + "-%d").
		MinWorkers(cfg.MinWorkers).
		MaxWorkers(cfg.MaxWorkers).
		WorkQueue(cfg.WorkQueueSize).
		Build()
	if err != nil {
		return nil, err
	}
	b.derivedPool = pool
	return pool, nil
}

func (b *Builder) buildTransport(name string, cfg *Configuration) (*transport.ConfiguredClient, error) {
	tb := transport.NewBuilder().Using(cfg.Config)
	if b.environment != nil {
		tb.Name(b.environment.Name())
	}
	// The interceptor chain owns payload compression; the transport must not
	// decompress underneath it.
	tb.DisableContentCompression(true)
	if b.retryHandler != nil {
		tb.UsingRetryHandler(b.retryHandler)
	}
	if b.resolver != nil {
		tb.UsingResolver(b.resolver)
	}
	if b.hostnameVerifier != nil {
		tb.UsingHostnameVerifier(b.hostnameVerifier)
	}
	if b.socketRegistry != nil {
		tb.UsingSocketFactoryRegistry(b.socketRegistry)
	}
	if b.routePlanner != nil {
		tb.UsingRoutePlanner(b.routePlanner)
	}
	if b.credentials != nil {
		tb.UsingCredentialsProvider(b.credentials)
	}
	if b.unavailableStrategy != nil {
		tb.UsingUnavailableRetryStrategy(b.unavailableStrategy)
	}
	if b.metricNameStrategy != nil {
		tb.UsingMetricNameStrategy(b.metricNameStrategy)
	}
	return tb.BuildWithDefaultRequestConfiguration(name)
}

func (b *Builder) buildConnector(cc *transport.ConfiguredClient, cfg *Configuration) (Connector, error) {
	if b.connectorProv != nil {
		return b.connectorProv(cc, cfg.chunkedEncodingEnabled())
	}
	return newHTTPConnector(cc, cfg.chunkedEncodingEnabled())
}

// applyFeatures runs the gzip codecs and registered features against a fresh
// context, then installs the collected filters on the client.
func (b *Builder) applyFeatures(client *Client, cfg *Configuration) error {
	fc := &FeatureContext{properties: client.properties}

	var applied []Feature
	if cfg.gzipEnabled() {
		f := GzipDecoderFeature()
		if err := f.Configure(fc); err != nil {
			return err
		}
		applied = append(applied, f)
	}
	if cfg.gzipEnabledForRequests() {
		f := GzipEncoderFeature()
		if err := f.Configure(fc); err != nil {
			return err
		}
		applied = append(applied, f)
	}
	for _, reg := range b.registrations {
		f := reg.materialize()
		if f == nil {
			continue
		}
		if err := f.Configure(fc); err != nil {
			return fmt.Errorf("restclient: configure feature: %w", err)
		}
		applied = append(applied, f)
	}

	client.features = applied
	client.requestFilters = fc.requestFilters
	client.responseFilters = fc.responseFilters
	client.readerInterceptors = fc.readerInterceptors
	client.writerInterceptors = fc.writerInterceptors
	return nil
}

func (b *Builder) clientLogger(name string) *logger.Logger {
	if b.environment != nil {
		return b.environment.Logger().WithComponent("restclient." + name)
	}
	return logger.Get("restclient." + name)
}

func (b *Builder) breaker(cfg *Configuration) *resilience.CircuitBreaker {
	if cfg.CircuitBreaker == nil {
		return nil
	}
	return resilience.NewCircuitBreaker(*cfg.CircuitBreaker)
}

func (b *Builder) limiter(cfg *Configuration) *resilience.RateLimiter {
	if cfg.RateLimiter == nil {
		return nil
	}
	return resilience.NewRateLimiter(*cfg.RateLimiter)
}

func (b *Builder) bulkhead(cfg *Configuration) *resilience.Bulkhead {
	if cfg.Bulkhead == nil {
		return nil
	}
	return resilience.NewBulkhead(*cfg.Bulkhead)
}
