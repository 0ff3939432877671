package restclient

import (
	"net/http"

	"github.com/kbukum/restkit/transport"
)

// Connector executes prepared HTTP requests. The default connector wraps the
// pooled transport built by the transport package; a custom one can be
// supplied to route requests through a different engine.
type Connector interface {
	// RoundTrip sends the request and returns the raw response.
	RoundTrip(req *http.Request) (*http.Response, error)
	// DefaultRequestConfig reports per-request defaults the client applies.
	DefaultRequestConfig() transport.RequestConfig
	// Close releases connector resources.
	Close() error
}

// ConnectorProvider produces a Connector from a fully built transport client.
// Supplying one to the builder replaces the default connector while keeping
// the transport configuration (pooling, TLS, retries) intact.
type ConnectorProvider func(cc *transport.ConfiguredClient, chunkedEncoding bool) (Connector, error)

// httpConnector is the default Connector backed by a *http.Client.
type httpConnector struct {
	client          *http.Client
	defaults        transport.RequestConfig
	chunkedEncoding bool
}

func newHTTPConnector(cc *transport.ConfiguredClient, chunkedEncoding bool) (Connector, error) {
	defaults := cc.DefaultRequestConfig
	defaults.ChunkedEncoding = chunkedEncoding
	return &httpConnector{
		client:          cc.Client,
		defaults:        defaults,
		chunkedEncoding: chunkedEncoding,
	}, nil
}

func (c *httpConnector) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

func (c *httpConnector) DefaultRequestConfig() transport.RequestConfig {
	return c.defaults
}

func (c *httpConnector) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// transportOf exposes the connector's http.RoundTripper when the connector is
// the default one. Used for streaming, which bypasses the client timeout.
func (c *httpConnector) transport() http.RoundTripper {
	return c.client.Transport
}
