package transport

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// RetryHandler decides whether a request that failed with a transport error
// should be retried. attempt is 1-based.
type RetryHandler func(attempt int, req *http.Request, err error) bool

// DefaultRetryHandler retries idempotent methods on any transport error.
func DefaultRetryHandler(_ int, req *http.Request, _ error) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodDelete, http.MethodPut:
		return true
	default:
		return false
	}
}

// UnavailableRetryStrategy decides whether a response indicating temporary
// unavailability should be retried, and how long to wait before doing so.
type UnavailableRetryStrategy interface {
	// RetryRequest reports whether the response warrants a retry. attempt is 1-based.
	RetryRequest(resp *http.Response, attempt int) bool
	// RetryInterval returns how long to wait before the retry.
	RetryInterval(resp *http.Response) time.Duration
}

// RetryAfterStrategy retries 503 responses up to MaxRetries times, honoring
// the Retry-After header when present.
type RetryAfterStrategy struct {
	// MaxRetries is the retry budget. Defaults to 1 when zero.
	MaxRetries int
	// DefaultInterval is used when the response carries no Retry-After header.
	DefaultInterval time.Duration
}

// RetryRequest implements UnavailableRetryStrategy.
func (s *RetryAfterStrategy) RetryRequest(resp *http.Response, attempt int) bool {
	maxRetries := s.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return resp.StatusCode == http.StatusServiceUnavailable && attempt <= maxRetries
}

// RetryInterval implements UnavailableRetryStrategy.
func (s *RetryAfterStrategy) RetryInterval(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(v); err == nil {
			if d := time.Until(at); d > 0 {
				return d
			}
		}
	}
	if s.DefaultInterval > 0 {
		return s.DefaultInterval
	}
	return time.Second
}

// MetricNameStrategy derives the metric identifier recorded for a request.
type MetricNameStrategy func(clientName string, req *http.Request) string

// MethodHostNameStrategy names metrics by client, method, and target host.
func MethodHostNameStrategy(clientName string, req *http.Request) string {
	return clientName + "." + req.Method + "." + req.URL.Hostname()
}

// Resolver resolves hostnames to addresses. It matches the subset of
// *net.Resolver the transport needs, so custom resolvers are easy to supply.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// HostnameVerifier performs additional verification of the TLS connection
// after standard certificate checks succeed.
type HostnameVerifier func(hostname string, state tls.ConnectionState) error

// RoutePlanner decides the proxy route for a request. A nil URL means a
// direct connection.
type RoutePlanner func(req *http.Request) (*url.URL, error)

// ProxyRoutePlanner routes every request through a fixed proxy.
func ProxyRoutePlanner(proxy *url.URL) RoutePlanner {
	return func(_ *http.Request) (*url.URL, error) {
		return proxy, nil
	}
}

// DialFunc opens a network connection. Registered per URL scheme in a
// SocketFactoryRegistry.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// SocketFactoryRegistry maps URL schemes to dial functions, replacing the
// transport's default dialer for those schemes.
type SocketFactoryRegistry struct {
	factories map[string]DialFunc
}

// NewSocketFactoryRegistry creates an empty registry.
func NewSocketFactoryRegistry() *SocketFactoryRegistry {
	return &SocketFactoryRegistry{factories: make(map[string]DialFunc)}
}

// Register associates a dial function with a URL scheme ("http", "https").
// Last registration wins.
func (r *SocketFactoryRegistry) Register(scheme string, dial DialFunc) *SocketFactoryRegistry {
	r.factories[scheme] = dial
	return r
}

// Lookup returns the dial function for a scheme, or nil.
func (r *SocketFactoryRegistry) Lookup(scheme string) DialFunc {
	if r == nil {
		return nil
	}
	return r.factories[scheme]
}
