package transport

import (
	"fmt"
	"time"

	"github.com/kbukum/restkit/security"
)

// Defaults applied by Config.ApplyDefaults.
const (
	defaultTimeout               = 30 * time.Second
	defaultConnectionTimeout     = 10 * time.Second
	defaultTimeToLive            = 90 * time.Second
	defaultKeepAlive             = 30 * time.Second
	defaultMaxConnections        = 100
	defaultMaxConnectionsPerHost = 16
	defaultTLSHandshakeTimeout   = 10 * time.Second
)

// Config declaratively configures the pooled HTTP transport.
type Config struct {
	// Timeout is the total per-request timeout. Defaults to 30s.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// ConnectionTimeout bounds dialing a new connection. Defaults to 10s.
	ConnectionTimeout time.Duration `yaml:"connection_timeout" mapstructure:"connection_timeout"`

	// TimeToLive is how long idle pooled connections are kept. Defaults to 90s.
	TimeToLive time.Duration `yaml:"time_to_live" mapstructure:"time_to_live"`

	// KeepAlive is the TCP keep-alive interval. Defaults to 30s.
	KeepAlive time.Duration `yaml:"keep_alive" mapstructure:"keep_alive"`

	// TLSHandshakeTimeout bounds the TLS handshake. Defaults to 10s.
	TLSHandshakeTimeout time.Duration `yaml:"tls_handshake_timeout" mapstructure:"tls_handshake_timeout"`

	// MaxConnections caps idle connections across all hosts. Defaults to 100.
	MaxConnections int `yaml:"max_connections" mapstructure:"max_connections"`

	// MaxConnectionsPerHost caps connections per host. Defaults to 16.
	MaxConnectionsPerHost int `yaml:"max_connections_per_host" mapstructure:"max_connections_per_host"`

	// Retries is the number of transport-level retries for replayable
	// requests. Zero disables retrying.
	Retries int `yaml:"retries" mapstructure:"retries"`

	// CookiesEnabled turns on an RFC 6265 cookie jar backed by the public
	// suffix list.
	CookiesEnabled bool `yaml:"cookies_enabled" mapstructure:"cookies_enabled"`

	// FollowRedirects controls automatic redirect following. Defaults to true
	// via ApplyDefaults.
	FollowRedirects *bool `yaml:"follow_redirects" mapstructure:"follow_redirects"`

	// UserAgent overrides the generated User-Agent header.
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`

	// ThrottleRate limits outbound requests per second. Zero disables
	// throttling.
	ThrottleRate float64 `yaml:"throttle_rate" mapstructure:"throttle_rate"`

	// ThrottleBurst is the throttle burst size. Defaults to ThrottleRate
	// rounded up when throttling is enabled.
	ThrottleBurst int `yaml:"throttle_burst" mapstructure:"throttle_burst"`

	// TLS configures TLS settings for the transport.
	TLS *security.TLSConfig `yaml:"tls" mapstructure:"tls"`
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = defaultConnectionTimeout
	}
	if c.TimeToLive <= 0 {
		c.TimeToLive = defaultTimeToLive
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = defaultKeepAlive
	}
	if c.TLSHandshakeTimeout <= 0 {
		c.TLSHandshakeTimeout = defaultTLSHandshakeTimeout
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = defaultMaxConnections
	}
	if c.MaxConnectionsPerHost <= 0 {
		c.MaxConnectionsPerHost = defaultMaxConnectionsPerHost
	}
	if c.FollowRedirects == nil {
		follow := true
		c.FollowRedirects = &follow
	}
	if c.ThrottleRate > 0 && c.ThrottleBurst <= 0 {
		c.ThrottleBurst = int(c.ThrottleRate) + 1
	}
}

// Validate checks that the configuration is consistent.
func (c *Config) Validate() error {
	if c.Retries < 0 {
		return fmt.Errorf("transport: retries must not be negative")
	}
	if c.ThrottleRate < 0 {
		return fmt.Errorf("transport: throttle_rate must not be negative")
	}
	if c.TLS != nil {
		if err := c.TLS.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// RequestConfig carries per-request defaults derived from the transport
// configuration. The connector applies these to every request unless the
// request overrides them.
type RequestConfig struct {
	// Timeout is the default per-request timeout.
	Timeout time.Duration
	// FollowRedirects mirrors the transport redirect policy.
	FollowRedirects bool
	// ChunkedEncoding indicates whether request bodies may be streamed with
	// chunked transfer encoding instead of being buffered for Content-Length.
	ChunkedEncoding bool
}
