package restclient

import (
	"fmt"
	"strings"

	"github.com/kbukum/restkit/errors"
	"github.com/kbukum/restkit/resilience"
	"github.com/kbukum/restkit/transport"
	"github.com/kbukum/restkit/util"
	"github.com/kbukum/restkit/validation"
)

const (
	defaultMinWorkers    = 1
	defaultMaxWorkers    = 128
	defaultWorkQueueSize = 8
)

// Configuration configures a REST client built by Builder. It extends the
// transport configuration with worker pool sizing and payload handling flags.
type Configuration struct {
	transport.Config `yaml:",inline" mapstructure:",squash"`

	// BaseURL is the base URL prepended to all request paths.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Headers are default headers applied to all requests.
	Headers map[string]string `yaml:"headers" mapstructure:"headers"`

	// Auth configures default authentication applied to all requests.
	// Individual requests can override this.
	Auth *AuthConfig `yaml:"-" mapstructure:"-"`

	// Retry configures client-level retry of whole requests. Nil disables it.
	// Transport-level retries of replayable requests are configured
	// separately through Retries.
	Retry *resilience.RetryConfig `yaml:"-" mapstructure:"-"`

	// CircuitBreaker configures circuit breaker behavior. Nil disables it.
	CircuitBreaker *resilience.CircuitBreakerConfig `yaml:"-" mapstructure:"-"`

	// RateLimiter configures client-side rate limiting. Nil disables it.
	RateLimiter *resilience.RateLimiterConfig `yaml:"-" mapstructure:"-"`

	// Bulkhead caps the number of in-flight requests. Nil disables it.
	Bulkhead *resilience.BulkheadConfig `yaml:"-" mapstructure:"-"`

	// MinWorkers is the number of workers kept alive in the client's
	// asynchronous execution pool. Defaults to 1.
	MinWorkers int `yaml:"min_threads" mapstructure:"min_threads"`

	// MaxWorkers caps the asynchronous execution pool. Defaults to 128.
	MaxWorkers int `yaml:"max_threads" mapstructure:"max_threads"`

	// WorkQueueSize bounds the pool's pending task queue. Defaults to 8.
	WorkQueueSize int `yaml:"work_queue_size" mapstructure:"work_queue_size"`

	// GzipEnabled controls transparent decompression of gzip response
	// bodies. Defaults to true.
	GzipEnabled *bool `yaml:"gzip_enabled" mapstructure:"gzip_enabled"`

	// GzipEnabledForRequests controls gzip compression of request bodies.
	// Defaults to true.
	GzipEnabledForRequests *bool `yaml:"gzip_enabled_for_requests" mapstructure:"gzip_enabled_for_requests"`

	// ChunkedEncodingEnabled controls chunked transfer encoding for
	// request bodies. Defaults to true. When disabled, request bodies are
	// buffered so a Content-Length can be sent.
	ChunkedEncodingEnabled *bool `yaml:"chunked_encoding_enabled" mapstructure:"chunked_encoding_enabled"`
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *Configuration) ApplyDefaults() {
	c.Config.ApplyDefaults()
	if c.MinWorkers <= 0 {
		c.MinWorkers = defaultMinWorkers
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = defaultMaxWorkers
	}
	if c.WorkQueueSize <= 0 {
		c.WorkQueueSize = defaultWorkQueueSize
	}
	if c.GzipEnabled == nil {
		c.GzipEnabled = util.Ptr(true)
	}
	if c.GzipEnabledForRequests == nil {
		c.GzipEnabledForRequests = util.Ptr(true)
	}
	if c.ChunkedEncodingEnabled == nil {
		c.ChunkedEncodingEnabled = util.Ptr(true)
	}
}

// Validate checks that the configuration is valid. Field problems are
// collected so one pass reports everything that is wrong.
func (c *Configuration) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	v := validation.New()
	v.Custom(c.MaxWorkers >= c.MinWorkers, "max_threads",
		fmt.Sprintf("%d is less than min_threads %d", c.MaxWorkers, c.MinWorkers))
	v.Min("work_queue_size", c.WorkQueueSize, 1)
	if c.Bulkhead != nil {
		v.Min("bulkhead.max_concurrent", c.Bulkhead.MaxConcurrent, 1)
	}
	if !v.HasErrors() {
		return nil
	}
	fields := v.Errors()
	messages := make([]string, len(fields))
	for i, fe := range fields {
		messages[i] = fmt.Sprintf("%s: %s", fe.Field, fe.Message)
	}
	appErr := errors.Configuration(strings.Join(messages, "; "))
	appErr.Details = map[string]any{"fields": fields}
	return appErr
}

func (c *Configuration) gzipEnabled() bool {
	return c.GzipEnabled == nil || *c.GzipEnabled
}

func (c *Configuration) gzipEnabledForRequests() bool {
	return c.GzipEnabledForRequests == nil || *c.GzipEnabledForRequests
}

func (c *Configuration) chunkedEncodingEnabled() bool {
	return c.ChunkedEncodingEnabled == nil || *c.ChunkedEncodingEnabled
}

// DefaultRetryConfig returns a retry config suitable for REST clients.
func DefaultRetryConfig() *resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.RetryIf = IsRetryable
	return &cfg
}

// DefaultCircuitBreakerConfig returns a default circuit breaker config.
func DefaultCircuitBreakerConfig(name string) *resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig(name)
	return &cfg
}

// DefaultRateLimiterConfig returns a default rate limiter config.
func DefaultRateLimiterConfig(name string) *resilience.RateLimiterConfig {
	cfg := resilience.DefaultRateLimiterConfig(name)
	return &cfg
}

// DefaultBulkheadConfig returns a default bulkhead config.
func DefaultBulkheadConfig(name string) *resilience.BulkheadConfig {
	cfg := resilience.DefaultBulkheadConfig(name)
	return &cfg
}
