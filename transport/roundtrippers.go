package transport

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/kbukum/restkit/observability"
	"github.com/kbukum/restkit/resilience"
)

// userAgentTransport stamps a fixed User-Agent on every request that does not
// already carry one.
type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(clone)
}

// credentialsTransport applies a CredentialsProvider to every request.
type credentialsTransport struct {
	provider CredentialsProvider
	base     http.RoundTripper
}

func (t *credentialsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if err := t.provider.Apply(clone); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(clone)
}

// throttleTransport rate-limits outbound requests with a token bucket.
type throttleTransport struct {
	limiter *rate.Limiter
	base    http.RoundTripper
}

func (t *throttleTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

// retryTransport retries replayable requests on transport errors (per the
// RetryHandler) and on unavailability responses (per the strategy). Requests
// whose bodies cannot be replayed are never retried.
type retryTransport struct {
	base     http.RoundTripper
	retries  int
	handler  RetryHandler
	strategy UnavailableRetryStrategy
	backoff  resilience.RetryConfig
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	var resp *http.Response
	var err error
	for attempt := 1; ; attempt++ {
		resp, err = t.base.RoundTrip(req)

		if err != nil {
			if !replayable || attempt > t.retries || !t.handler(attempt, req, err) {
				return nil, err
			}
			if waitErr := t.wait(req.Context(), t.errorBackoff(attempt)); waitErr != nil {
				return nil, err
			}
		} else {
			if t.strategy == nil || !replayable || attempt > t.retries || !t.strategy.RetryRequest(resp, attempt) {
				return resp, nil
			}
			interval := t.strategy.RetryInterval(resp)
			drain(resp)
			if waitErr := t.wait(req.Context(), interval); waitErr != nil {
				return nil, waitErr
			}
		}

		if req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			req = req.Clone(req.Context())
			req.Body = body
		}
	}
}

// errorBackoff computes the delay before retrying a transport error.
func (t *retryTransport) errorBackoff(attempt int) time.Duration {
	cfg := t.backoff
	backoff := cfg.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
		if backoff > cfg.MaxBackoff {
			return cfg.MaxBackoff
		}
	}
	return backoff
}

func (t *retryTransport) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// drain consumes and closes a response body so the connection can be reused.
func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

// metricsTransport records request counts and latencies through OpenTelemetry.
// The metric name strategy output is attached as an attribute so one
// instrument pair serves all clients.
type metricsTransport struct {
	base       http.RoundTripper
	clientName string
	strategy   MetricNameStrategy
	requests   metric.Int64Counter
	duration   metric.Float64Histogram
}

func newMetricsTransport(base http.RoundTripper, clientName string, strategy MetricNameStrategy) *metricsTransport {
	meter := otel.Meter("github.com/kbukum/restkit/transport")

	requests, _ := meter.Int64Counter("http.client.requests",
		metric.WithDescription("Outbound HTTP requests"))
	duration, _ := meter.Float64Histogram("http.client.duration",
		metric.WithDescription("Outbound HTTP request duration"),
		metric.WithUnit("ms"))

	return &metricsTransport{
		base:       base,
		clientName: clientName,
		strategy:   strategy,
		requests:   requests,
		duration:   duration,
	}
}

func (t *metricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := float64(time.Since(start).Milliseconds())

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	attrs := metric.WithAttributes(
		attribute.String("metric.name", t.strategy(t.clientName, req)),
		attribute.String("http.method", req.Method),
		attribute.Int("http.status_code", status),
	)

	ctx := req.Context()
	t.requests.Add(ctx, 1, attrs)
	t.duration.Record(ctx, elapsed, attrs)
	return resp, err
}

// tracingTransport opens a client span per request. Trace context flows to
// the server through the propagating headers OpenTelemetry injects.
type tracingTransport struct {
	base       http.RoundTripper
	clientName string
	tracer     trace.Tracer
}

func newTracingTransport(base http.RoundTripper, clientName string) *tracingTransport {
	return &tracingTransport{
		base:       base,
		clientName: clientName,
		tracer:     observability.Tracer("github.com/kbukum/restkit/transport"),
	}
}

func (t *tracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.Start(req.Context(), "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.client", t.clientName),
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL.Redacted()),
		))
	defer span.End()

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := t.base.RoundTrip(req.WithContext(ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, resp.Status)
	}
	return resp, nil
}
