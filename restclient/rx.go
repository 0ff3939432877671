package restclient

import (
	"context"
	"fmt"
)

// RxResult carries the outcome of a reactive request.
type RxResult struct {
	Response *Response
	Err      error
}

// RxClient wraps a Client with a channel-based invocation style. Every call
// runs on the client's worker pool and delivers exactly one result.
type RxClient struct {
	client *Client
}

// BuildRx builds a client and wraps it for channel-based invocation. The
// underlying client shares the builder's executor like any other build.
func (b *Builder) BuildRx(name string) (*RxClient, error) {
	c, err := b.Build(name)
	if err != nil {
		return nil, err
	}
	return &RxClient{client: c}, nil
}

// Do issues the request asynchronously. The returned channel is buffered and
// receives exactly one result; it is closed afterwards.
func (rx *RxClient) Do(ctx context.Context, req Request) <-chan RxResult {
	out := make(chan RxResult, 1)
	err := rx.client.pool.Submit(func() {
		defer close(out)
		resp, err := rx.client.Do(ctx, req)
		out <- RxResult{Response: resp, Err: err}
	})
	if err != nil {
		out <- RxResult{Err: fmt.Errorf("restclient: submit rx request: %w", err)}
		close(out)
	}
	return out
}

// Client returns the underlying blocking client.
func (rx *RxClient) Client() *Client { return rx.client }

// Close closes the underlying client.
func (rx *RxClient) Close() error { return rx.client.Close() }
