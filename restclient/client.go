package restclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/kbukum/restkit/executor"
	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/observability"
	"github.com/kbukum/restkit/resilience"
	"github.com/kbukum/restkit/restclient/sse"
	"github.com/kbukum/restkit/serializer"
	"github.com/kbukum/restkit/validation"
)

// Client is a configured REST client. Instances are immutable once built;
// all mutation happens on the Builder. A Client is safe for concurrent use.
type Client struct {
	name       string
	config     Configuration
	connector  Connector
	serializer serializer.Serializer
	validator  validation.TagValidator
	log        *logger.Logger

	pool *executor.Pool

	cb    *resilience.CircuitBreaker
	rl    *resilience.RateLimiter
	bh    *resilience.Bulkhead
	retry *resilience.RetryConfig

	properties         map[string]any
	propertyOrder      []string
	features           []Feature
	requestFilters     []RequestFilter
	responseFilters    []ResponseFilter
	readerInterceptors []ReaderInterceptor
	writerInterceptors []WriterInterceptor

	closed atomic.Bool
}

// Name returns the client name given at build time.
func (c *Client) Name() string { return c.name }

// Property returns the named configuration property, or nil.
func (c *Client) Property(name string) any { return c.properties[name] }

// Properties returns a copy of the client's configuration properties.
func (c *Client) Properties() map[string]any {
	out := make(map[string]any, len(c.propertyOrder))
	for _, k := range c.propertyOrder {
		out[k] = c.properties[k]
	}
	return out
}

// PropertyNames returns the property names in the order they were first set
// on the builder.
func (c *Client) PropertyNames() []string {
	out := make([]string, len(c.propertyOrder))
	copy(out, c.propertyOrder)
	return out
}

// Features returns the features applied at build time, in registration order
// with the gzip codecs first when enabled.
func (c *Client) Features() []Feature {
	out := make([]Feature, len(c.features))
	copy(out, c.features)
	return out
}

// Do executes an HTTP request and returns the complete response.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if c.closed.Load() {
		return nil, NewClosedError()
	}
	if c.retry != nil {
		return resilience.Retry(ctx, *c.retry, func() (*Response, error) {
			return c.doOnce(ctx, req)
		})
	}
	return c.doOnce(ctx, req)
}

// Future is the pending result of an asynchronous request.
type Future struct {
	done chan struct{}
	resp *Response
	err  error
}

// Wait blocks until the request completes or the context is cancelled.
func (f *Future) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, NewTimeoutError(ctx.Err())
	}
}

// Done reports completion without blocking.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// DoAsync submits the request to the client's worker pool and returns a
// Future. Submission fails immediately when the pool's queue is full or the
// pool is stopped.
func (c *Client) DoAsync(ctx context.Context, req Request) (*Future, error) {
	if c.closed.Load() {
		return nil, NewClosedError()
	}
	f := &Future{done: make(chan struct{})}
	err := c.pool.Submit(func() {
		defer close(f.done)
		f.resp, f.err = c.Do(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("restclient: submit async request: %w", err)
	}
	return f, nil
}

// DoStream executes an HTTP request and returns a streaming response.
// The caller must close the returned StreamResponse when done.
// Retry is not applied to streaming requests.
func (c *Client) DoStream(ctx context.Context, req Request) (*StreamResponse, error) {
	if c.closed.Load() {
		return nil, NewClosedError()
	}
	return c.doStream(ctx, req)
}

// Close releases the client's resources. Closing is idempotent; requests
// issued after Close fail with a closed error. Clients bound to a lifecycle
// environment are closed automatically on environment shutdown.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.log.Debug("Closing REST client", map[string]interface{}{"client": c.name})
	var errs []error
	if err := c.connector.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("restclient: close %s: %w", c.name, errs[0])
	}
	return nil
}

// CheckHealth implements observability.HealthChecker. A closed client reports
// down; a live one reports its worker pool occupancy.
func (c *Client) CheckHealth(_ context.Context) observability.Health {
	h := observability.Health{Name: "restclient." + c.name}
	if c.closed.Load() {
		h.Status = observability.HealthStatusDown
		h.Message = "client is closed"
		return h
	}
	h.Status = observability.HealthStatusUp
	h.Details = map[string]string{
		"workers":     strconv.Itoa(c.pool.Workers()),
		"queue_depth": strconv.Itoa(c.pool.QueueDepth()),
	}
	return h
}

// doOnce executes a single HTTP request under the rate limiter, bulkhead
// and breaker.
func (c *Client) doOnce(ctx context.Context, req Request) (*Response, error) {
	if c.rl != nil {
		if err := c.rl.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if c.bh != nil {
		return resilience.ExecuteWithResult(c.bh, ctx, func() (*Response, error) {
			return c.doGuarded(ctx, req)
		})
	}
	return c.doGuarded(ctx, req)
}

func (c *Client) doGuarded(ctx context.Context, req Request) (*Response, error) {
	if c.cb != nil {
		var resp *Response
		err := c.cb.Execute(func() error {
			var execErr error
			resp, execErr = c.executeRequest(ctx, req)
			return execErr
		})
		return resp, err
	}
	return c.executeRequest(ctx, req)
}

func (c *Client) executeRequest(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.connector.RoundTrip(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewTimeoutError(err)
		}
		return nil, NewConnectionError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	for _, f := range c.responseFilters {
		if err := f(resp); err != nil {
			return nil, err
		}
	}

	body := resp.Body
	var rc io.ReadCloser = body
	for _, i := range c.readerInterceptors {
		rc, err = i(rc, resp)
		if err != nil {
			return nil, NewConnectionError(fmt.Errorf("intercept response body: %w", err))
		}
	}
	defer func() {
		if rc != body {
			_ = rc.Close()
		}
	}()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, NewConnectionError(fmt.Errorf("read response body: %w", err))
	}

	result := &Response{
		StatusCode: resp.StatusCode,
		Headers:    flattenHeaders(resp.Header),
		Body:       raw,
		serializer: c.serializer,
	}

	if classErr := ClassifyStatusCode(resp.StatusCode, raw); classErr != nil {
		return result, classErr
	}
	return result, nil
}

// doStream builds and sends a streaming HTTP request. Reader interceptors are
// skipped so the raw stream reaches the caller unbuffered.
func (c *Client) doStream(ctx context.Context, req Request) (*StreamResponse, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	// Streaming bypasses the client-level timeout; the context governs
	// cancellation instead.
	rt := http.RoundTripper(nil)
	if hc, ok := c.connector.(*httpConnector); ok {
		rt = hc.transport()
	}
	var resp *http.Response
	if rt != nil {
		streamClient := &http.Client{Transport: rt}
		resp, err = streamClient.Do(httpReq)
	} else {
		resp, err = c.connector.RoundTrip(httpReq)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewTimeoutError(err)
		}
		return nil, NewConnectionError(err)
	}

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, ClassifyStatusCode(resp.StatusCode, raw)
	}

	headers := flattenHeaders(resp.Header)

	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		return &StreamResponse{
			StatusCode: resp.StatusCode,
			Headers:    headers,
			SSE:        sse.NewReader(resp.Body),
			rawResp:    resp,
		}, nil
	}
	return &StreamResponse{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       resp.Body,
		rawResp:    resp,
	}, nil
}

// buildRequest constructs an *http.Request from the client config and request.
func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	url := req.Path
	if c.config.BaseURL != "" && !strings.HasPrefix(req.Path, "http://") && !strings.HasPrefix(req.Path, "https://") {
		url = strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(req.Path, "/")
	}

	body, contentType, err := c.encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("create request: %v", err))
	}

	if len(req.Query) > 0 {
		q := httpReq.URL.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		httpReq.URL.RawQuery = q.Encode()
	}

	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" && contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	auth := c.config.Auth
	if req.Auth != nil {
		auth = req.Auth
	}
	auth.apply(httpReq)

	for _, f := range c.requestFilters {
		if err := f(httpReq); err != nil {
			return nil, err
		}
	}

	if body != nil && len(c.writerInterceptors) > 0 {
		if err := c.interceptBody(httpReq); err != nil {
			return nil, err
		}
	}

	if body != nil && !c.config.chunkedEncodingEnabled() && httpReq.GetBody == nil {
		if err := bufferBody(httpReq); err != nil {
			return nil, err
		}
	}

	return httpReq, nil
}

// encodeBody converts a body value into an io.Reader and content type.
// Struct bodies are validated before serialization.
func (c *Client) encodeBody(body any) (io.Reader, string, error) {
	if body == nil {
		return nil, "", nil
	}
	switch v := body.(type) {
	case io.Reader:
		return v, "", nil
	case []byte:
		return bytes.NewReader(v), "", nil
	case string:
		return strings.NewReader(v), "text/plain", nil
	case *MultipartBody:
		r, ct, err := v.encode()
		if err != nil {
			return nil, "", NewValidationError(fmt.Sprintf("encode multipart body: %v", err))
		}
		return r, ct, nil
	default:
		if c.validator != nil && isStructLike(v) {
			if err := c.validator.Validate(v); err != nil {
				return nil, "", NewValidationError(fmt.Sprintf("request body: %v", err))
			}
		}
		data, err := c.serializer.Marshal(v)
		if err != nil {
			return nil, "", NewValidationError(fmt.Sprintf("encode body: %v", err))
		}
		return bytes.NewReader(data), c.serializer.ContentType(), nil
	}
}

// isStructLike reports whether v is a struct or pointer to one. Tag
// validation only applies to those; maps and slices pass through.
func isStructLike(v any) bool {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	return rv.Kind() == reflect.Struct
}

// interceptBody rewrites the request body through the writer interceptor
// chain. The chain may add headers (Content-Encoding for gzip) and usually
// invalidates Content-Length.
func (c *Client) interceptBody(req *http.Request) error {
	src := req.Body
	if src == nil {
		return nil
	}
	defer func() { _ = src.Close() }()

	var buf bytes.Buffer
	var w io.Writer = &buf
	var closers []io.Closer
	for _, i := range c.writerInterceptors {
		next, err := i(w, req)
		if err != nil {
			return NewValidationError(fmt.Sprintf("intercept request body: %v", err))
		}
		if cl, ok := next.(io.Closer); ok {
			closers = append(closers, cl)
		}
		w = next
	}
	if _, err := io.Copy(w, src); err != nil {
		return NewConnectionError(fmt.Errorf("write request body: %w", err))
	}
	// Close in reverse so inner writers flush before outer ones.
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			return NewConnectionError(fmt.Errorf("flush request body: %w", err))
		}
	}

	data := buf.Bytes()
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.ContentLength = int64(len(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}

// bufferBody materializes a streaming request body so a Content-Length header
// is sent instead of chunked transfer encoding.
func bufferBody(req *http.Request) error {
	if req.Body == nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return NewConnectionError(fmt.Errorf("buffer request body: %w", err))
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.ContentLength = int64(len(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}

// flattenHeaders converts multi-value headers to single-value.
func flattenHeaders(h http.Header) map[string]string {
	result := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			result[k] = v[0]
		}
	}
	return result
}
