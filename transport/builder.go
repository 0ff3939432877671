package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/resilience"
	"github.com/kbukum/restkit/version"
)

// ConfiguredClient is a ready low-level HTTP client plus the per-request
// defaults derived from its configuration.
type ConfiguredClient struct {
	// Client is the fully decorated HTTP client.
	Client *http.Client
	// DefaultRequestConfig carries per-request defaults for the connector.
	DefaultRequestConfig RequestConfig
}

// Builder assembles a pooled *http.Client from a Config and optional
// overrides. The zero value is not usable; create one with NewBuilder.
type Builder struct {
	config Config

	retryHandler        RetryHandler
	resolver            Resolver
	hostnameVerifier    HostnameVerifier
	socketRegistry      *SocketFactoryRegistry
	routePlanner        RoutePlanner
	credentials         CredentialsProvider
	unavailableStrategy UnavailableRetryStrategy
	metricNameStrategy  MetricNameStrategy
	environmentName     string
	disableCompression  bool
}

// NewBuilder creates a transport builder with default configuration.
func NewBuilder() *Builder {
	return &Builder{
		retryHandler:       DefaultRetryHandler,
		metricNameStrategy: MethodHostNameStrategy,
	}
}

// Using replaces the transport configuration.
func (b *Builder) Using(cfg Config) *Builder {
	b.config = cfg
	return b
}

// UsingRetryHandler sets the handler consulted on transport errors.
func (b *Builder) UsingRetryHandler(h RetryHandler) *Builder {
	b.retryHandler = h
	return b
}

// UsingResolver sets a custom DNS resolver.
func (b *Builder) UsingResolver(r Resolver) *Builder {
	b.resolver = r
	return b
}

// UsingHostnameVerifier sets additional TLS connection verification.
func (b *Builder) UsingHostnameVerifier(v HostnameVerifier) *Builder {
	b.hostnameVerifier = v
	return b
}

// UsingSocketFactoryRegistry sets per-scheme dial functions.
func (b *Builder) UsingSocketFactoryRegistry(r *SocketFactoryRegistry) *Builder {
	b.socketRegistry = r
	return b
}

// UsingRoutePlanner sets the proxy route planner.
func (b *Builder) UsingRoutePlanner(p RoutePlanner) *Builder {
	b.routePlanner = p
	return b
}

// UsingCredentialsProvider sets the credentials applied to every request.
func (b *Builder) UsingCredentialsProvider(p CredentialsProvider) *Builder {
	b.credentials = p
	return b
}

// UsingUnavailableRetryStrategy sets the strategy for retrying unavailability
// responses.
func (b *Builder) UsingUnavailableRetryStrategy(s UnavailableRetryStrategy) *Builder {
	b.unavailableStrategy = s
	return b
}

// UsingMetricNameStrategy sets how request metrics are named.
func (b *Builder) UsingMetricNameStrategy(s MetricNameStrategy) *Builder {
	b.metricNameStrategy = s
	return b
}

// Name sets the environment name used in the generated User-Agent header.
func (b *Builder) Name(environmentName string) *Builder {
	b.environmentName = environmentName
	return b
}

// DisableContentCompression turns off transparent gzip negotiation on the
// transport. Higher layers set this when they register their own codecs or
// when compression is disabled outright.
func (b *Builder) DisableContentCompression(disabled bool) *Builder {
	b.disableCompression = disabled
	return b
}

// BuildWithDefaultRequestConfiguration constructs the pooled HTTP client and
// the per-request defaults. name identifies the client in user agent and
// metrics.
func (b *Builder) BuildWithDefaultRequestConfiguration(name string) (*ConfiguredClient, error) {
	cfg := b.config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base, err := b.buildTransport(&cfg)
	if err != nil {
		return nil, err
	}

	var rt http.RoundTripper = base

	if b.credentials != nil {
		rt = &credentialsTransport{provider: b.credentials, base: rt}
	}
	if cfg.Retries > 0 {
		rt = &retryTransport{
			base:     rt,
			retries:  cfg.Retries,
			handler:  b.retryHandler,
			strategy: b.unavailableStrategy,
			backoff:  resilience.DefaultRetryConfig(),
		}
	}
	if cfg.ThrottleRate > 0 {
		rt = &throttleTransport{
			limiter: rate.NewLimiter(rate.Limit(cfg.ThrottleRate), cfg.ThrottleBurst),
			base:    rt,
		}
	}
	rt = newMetricsTransport(rt, name, b.metricNameStrategy)
	rt = newTracingTransport(rt, name)
	rt = &userAgentTransport{agent: b.userAgent(name, &cfg), base: rt}

	client := &http.Client{
		Transport: rt,
		Timeout:   cfg.Timeout,
	}
	if !*cfg.FollowRedirects {
		client.CheckRedirect = func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	if cfg.CookiesEnabled {
		jar, jarErr := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if jarErr != nil {
			return nil, fmt.Errorf("transport: cookie jar: %w", jarErr)
		}
		client.Jar = jar
	}

	logger.Debug("Transport built", map[string]interface{}{
		"client":      name,
		"max_conns":   cfg.MaxConnections,
		"retries":     cfg.Retries,
		"compression": !b.disableCompression,
	})

	return &ConfiguredClient{
		Client: client,
		DefaultRequestConfig: RequestConfig{
			Timeout:         cfg.Timeout,
			FollowRedirects: *cfg.FollowRedirects,
		},
	}, nil
}

// buildTransport assembles the pooled *http.Transport.
func (b *Builder) buildTransport(cfg *Config) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = cfg.MaxConnections
	transport.MaxIdleConnsPerHost = cfg.MaxConnectionsPerHost
	transport.MaxConnsPerHost = cfg.MaxConnectionsPerHost
	transport.IdleConnTimeout = cfg.TimeToLive
	transport.TLSHandshakeTimeout = cfg.TLSHandshakeTimeout
	transport.DisableCompression = b.disableCompression

	dialer := &net.Dialer{
		Timeout:   cfg.ConnectionTimeout,
		KeepAlive: cfg.KeepAlive,
	}
	transport.DialContext = b.dialContext(dialer, "http")
	if custom := b.socketRegistry.Lookup("https"); custom != nil {
		transport.DialTLSContext = custom
	}

	tlsCfg, err := b.buildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		transport.TLSClientConfig = tlsCfg
	}

	if b.routePlanner != nil {
		planner := b.routePlanner
		transport.Proxy = func(req *http.Request) (*url.URL, error) {
			return planner(req)
		}
	}

	return transport, nil
}

// dialContext builds the dial function for a scheme, honoring a registered
// socket factory and the custom resolver.
func (b *Builder) dialContext(dialer *net.Dialer, scheme string) DialFunc {
	if custom := b.socketRegistry.Lookup(scheme); custom != nil {
		return custom
	}
	if b.resolver == nil {
		return dialer.DialContext
	}

	resolver := b.resolver
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		addrs, err := resolver.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}
		var lastErr error
		for _, resolved := range addrs {
			conn, dialErr := dialer.DialContext(ctx, network, net.JoinHostPort(resolved, port))
			if dialErr == nil {
				return conn, nil
			}
			lastErr = dialErr
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("transport: no addresses resolved for %s", host)
		}
		return nil, lastErr
	}
}

// buildTLSConfig derives the TLS client configuration.
func (b *Builder) buildTLSConfig(cfg *Config) (*tls.Config, error) {
	var tlsCfg *tls.Config
	if cfg.TLS != nil {
		built, err := cfg.TLS.Build()
		if err != nil {
			return nil, err
		}
		tlsCfg = built
	}

	if b.hostnameVerifier != nil {
		if tlsCfg == nil {
			tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		verifier := b.hostnameVerifier
		tlsCfg.VerifyConnection = func(state tls.ConnectionState) error {
			return verifier(state.ServerName, state)
		}
	}

	return tlsCfg, nil
}

// userAgent composes the User-Agent header value.
func (b *Builder) userAgent(name string, cfg *Config) string {
	if cfg.UserAgent != "" {
		return cfg.UserAgent
	}
	agent := name
	if b.environmentName != "" {
		agent = b.environmentName + " (" + name + ")"
	}
	return agent + " restkit/" + version.Version
}
