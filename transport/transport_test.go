package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kbukum/restkit/resilience"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Timeout != 30*time.Second {
		t.Errorf("unexpected timeout %v", cfg.Timeout)
	}
	if cfg.MaxConnections != 100 {
		t.Errorf("unexpected max connections %d", cfg.MaxConnections)
	}
	if cfg.FollowRedirects == nil || !*cfg.FollowRedirects {
		t.Error("expected redirects enabled by default")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{Retries: -1}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative retries")
	}

	cfg = Config{ThrottleRate: -0.5}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative throttle rate")
	}
}

func TestBuilder_BuildAndUserAgent(t *testing.T) {
	var gotAgent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent.Store(r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	configured, err := NewBuilder().
		Using(Config{}).
		Name("staging").
		BuildWithDefaultRequestConfiguration("payments")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := configured.Client.Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	agent, _ := gotAgent.Load().(string)
	if !strings.Contains(agent, "staging (payments)") {
		t.Errorf("user agent missing environment and client name: %q", agent)
	}
	if !strings.Contains(agent, "restkit/") {
		t.Errorf("user agent missing version: %q", agent)
	}

	if configured.DefaultRequestConfig.Timeout != 30*time.Second {
		t.Errorf("unexpected default request timeout %v", configured.DefaultRequestConfig.Timeout)
	}
}

func TestBuilder_CredentialsApplied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "svc" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	configured, err := NewBuilder().
		UsingCredentialsProvider(&BasicCredentials{Username: "svc", Password: "secret"}).
		BuildWithDefaultRequestConfiguration("authy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := configured.Client.Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("credentials not applied, got %d", resp.StatusCode)
	}
}

// flakyTripper fails a fixed number of times before delegating.
type flakyTripper struct {
	failures int32
	calls    int32
}

func (f *flakyTripper) RoundTrip(_ *http.Request) (*http.Response, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= atomic.LoadInt32(&f.failures) {
		return nil, errors.New("connection reset")
	}
	rec := httptest.NewRecorder()
	rec.WriteHeader(http.StatusOK)
	return rec.Result(), nil
}

func TestRetryTransport_RetriesTransportErrors(t *testing.T) {
	flaky := &flakyTripper{failures: 2}
	rt := &retryTransport{
		base:    flaky,
		retries: 3,
		handler: DefaultRetryHandler,
		backoff: resilience.RetryConfig{InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1},
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.test/", nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if got := atomic.LoadInt32(&flaky.calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestRetryTransport_NoBodyIsReplayable(t *testing.T) {
	flaky := &flakyTripper{failures: 1}
	rt := &retryTransport{
		base:    flaky,
		retries: 2,
		handler: DefaultRetryHandler,
		backoff: resilience.RetryConfig{InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1},
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.test/", nil)
	req.Body = http.NoBody
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("expected bodyless request to be retried: %v", err)
	}
	resp.Body.Close()
	if got := atomic.LoadInt32(&flaky.calls); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestRetryTransport_DoesNotRetryPost(t *testing.T) {
	flaky := &flakyTripper{failures: 1}
	rt := &retryTransport{
		base:    flaky,
		retries: 3,
		handler: DefaultRetryHandler,
		backoff: resilience.RetryConfig{InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1},
	}

	req := httptest.NewRequest(http.MethodPost, "http://example.test/", strings.NewReader("body"))
	if _, err := rt.RoundTrip(req); err == nil {
		t.Error("expected POST not to be retried")
	}
	if got := atomic.LoadInt32(&flaky.calls); got != 1 {
		t.Errorf("expected a single attempt, got %d", got)
	}
}

func TestRetryTransport_ServiceUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	configured, err := NewBuilder().
		Using(Config{Retries: 2}).
		UsingUnavailableRetryStrategy(&RetryAfterStrategy{MaxRetries: 2}).
		BuildWithDefaultRequestConfiguration("retry")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := configured.Client.Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected retry to succeed, got %d", resp.StatusCode)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestRetryAfterStrategy(t *testing.T) {
	s := &RetryAfterStrategy{MaxRetries: 1}

	resp := &http.Response{StatusCode: http.StatusServiceUnavailable, Header: http.Header{}}
	if !s.RetryRequest(resp, 1) {
		t.Error("expected retry for 503 on first attempt")
	}
	if s.RetryRequest(resp, 2) {
		t.Error("expected retry budget exhausted")
	}
	if s.RetryRequest(&http.Response{StatusCode: http.StatusBadGateway, Header: http.Header{}}, 1) {
		t.Error("502 should not be retried by this strategy")
	}

	resp.Header.Set("Retry-After", "3")
	if got := s.RetryInterval(resp); got != 3*time.Second {
		t.Errorf("expected 3s from Retry-After, got %v", got)
	}

	resp.Header.Del("Retry-After")
	if got := s.RetryInterval(resp); got != time.Second {
		t.Errorf("expected 1s default, got %v", got)
	}
}

func TestJWTCredentials(t *testing.T) {
	creds := &JWTCredentials{
		Secret:  []byte("signing-key"),
		Issuer:  "restkit-test",
		Subject: "billing",
		TTL:     time.Minute,
	}

	req := httptest.NewRequest(http.MethodGet, "http://example.test/", nil)
	if err := creds.Apply(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	header := req.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		t.Fatalf("expected bearer header, got %q", header)
	}

	parsed, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), &jwt.RegisteredClaims{},
		func(_ *jwt.Token) (any, error) { return []byte("signing-key"), nil })
	if err != nil {
		t.Fatalf("token does not parse: %v", err)
	}
	claims := parsed.Claims.(*jwt.RegisteredClaims)
	if claims.Issuer != "restkit-test" || claims.Subject != "billing" {
		t.Errorf("unexpected claims: %+v", claims)
	}

	// Second application reuses the cached token.
	req2 := httptest.NewRequest(http.MethodGet, "http://example.test/", nil)
	if err := creds.Apply(req2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req2.Header.Get("Authorization") != header {
		t.Error("expected cached token to be reused")
	}
}

func TestSocketFactoryRegistry(t *testing.T) {
	r := NewSocketFactoryRegistry()
	if r.Lookup("http") != nil {
		t.Error("expected empty registry")
	}

	r.Register("http", func(_ context.Context, _, _ string) (conn net.Conn, err error) {
		return nil, fmt.Errorf("unreachable")
	})
	if r.Lookup("http") == nil {
		t.Error("expected registered factory")
	}

	var nilRegistry *SocketFactoryRegistry
	if nilRegistry.Lookup("http") != nil {
		t.Error("nil registry lookup should return nil")
	}
}

func TestResolverDialer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// Resolver that maps a fake hostname to the test server address.
	resolver := resolverFunc(func(_ context.Context, host string) ([]string, error) {
		if host != "service.internal" {
			return nil, fmt.Errorf("unknown host %s", host)
		}
		u := strings.TrimPrefix(srv.URL, "http://")
		hostPart, _, err := net.SplitHostPort(u)
		if err != nil {
			return nil, err
		}
		return []string{hostPart}, nil
	})

	configured, err := NewBuilder().
		UsingResolver(resolver).
		BuildWithDefaultRequestConfiguration("resolver")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, port, _ := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	resp, err := configured.Client.Get("http://service.internal:" + port)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("unexpected status %d", resp.StatusCode)
	}
}

// resolverFunc adapts a function to the Resolver interface.
type resolverFunc func(ctx context.Context, host string) ([]string, error)

func (f resolverFunc) LookupHost(ctx context.Context, host string) ([]string, error) {
	return f(ctx, host)
}
