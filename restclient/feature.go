package restclient

import (
	"io"
	"net/http"

	"github.com/google/uuid"
)

// Feature customizes a client during construction. Features are applied in
// registration order after the client's transport and codecs are in place.
type Feature interface {
	// Configure registers filters and interceptors on the context.
	// Returning an error aborts the build.
	Configure(fc *FeatureContext) error
}

// FeatureFunc adapts a plain function to the Feature interface.
type FeatureFunc func(fc *FeatureContext) error

// Configure implements Feature.
func (f FeatureFunc) Configure(fc *FeatureContext) error { return f(fc) }

// registration holds either a ready feature instance or a constructor that
// produces one per build. Exactly one of the fields is set.
type registration struct {
	instance    Feature
	constructor func() Feature
}

func (r registration) materialize() Feature {
	if r.constructor != nil {
		return r.constructor()
	}
	return r.instance
}

// RequestFilter inspects or mutates an outgoing request before it is sent.
type RequestFilter func(req *http.Request) error

// ResponseFilter inspects a response before the body is handed to the caller.
type ResponseFilter func(resp *http.Response) error

// ReaderInterceptor wraps the response body stream. Interceptors are applied
// in registration order, each receiving the previous reader.
type ReaderInterceptor func(r io.ReadCloser, resp *http.Response) (io.ReadCloser, error)

// WriterInterceptor wraps the request body stream before it is written.
type WriterInterceptor func(w io.Writer, req *http.Request) (io.Writer, error)

// FeatureContext is the surface features configure against. It collects
// filters and interceptors and exposes the client's properties read-only.
type FeatureContext struct {
	properties map[string]any

	requestFilters     []RequestFilter
	responseFilters    []ResponseFilter
	readerInterceptors []ReaderInterceptor
	writerInterceptors []WriterInterceptor
}

// Property returns the named configuration property, or nil.
func (fc *FeatureContext) Property(name string) any {
	return fc.properties[name]
}

// AddRequestFilter registers a filter run against every outgoing request.
func (fc *FeatureContext) AddRequestFilter(f RequestFilter) {
	fc.requestFilters = append(fc.requestFilters, f)
}

// AddResponseFilter registers a filter run against every response.
func (fc *FeatureContext) AddResponseFilter(f ResponseFilter) {
	fc.responseFilters = append(fc.responseFilters, f)
}

// AddReaderInterceptor registers a response body interceptor.
func (fc *FeatureContext) AddReaderInterceptor(i ReaderInterceptor) {
	fc.readerInterceptors = append(fc.readerInterceptors, i)
}

// AddWriterInterceptor registers a request body interceptor.
func (fc *FeatureContext) AddWriterInterceptor(i WriterInterceptor) {
	fc.writerInterceptors = append(fc.writerInterceptors, i)
}

// RequestIDHeader carries the generated per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// RequestIDFeature stamps every outgoing request with a fresh UUID in the
// X-Request-ID header unless the caller already set one.
func RequestIDFeature() Feature {
	return FeatureFunc(func(fc *FeatureContext) error {
		fc.AddRequestFilter(func(req *http.Request) error {
			if req.Header.Get(RequestIDHeader) == "" {
				req.Header.Set(RequestIDHeader, uuid.NewString())
			}
			return nil
		})
		return nil
	})
}
