package restclient

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
)

// GzipDecoderFeature transparently decompresses responses whose
// Content-Encoding is gzip. Registered automatically when response
// decompression is enabled; the transport's own decompression is disabled so
// the codec pair stays symmetric with the encoder.
func GzipDecoderFeature() Feature {
	return FeatureFunc(func(fc *FeatureContext) error {
		fc.AddRequestFilter(func(req *http.Request) error {
			if req.Header.Get("Accept-Encoding") == "" {
				req.Header.Set("Accept-Encoding", "gzip")
			}
			return nil
		})
		fc.AddReaderInterceptor(func(r io.ReadCloser, resp *http.Response) (io.ReadCloser, error) {
			if !strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
				return r, nil
			}
			zr, err := gzip.NewReader(r)
			if err != nil {
				return nil, err
			}
			resp.Header.Del("Content-Encoding")
			resp.Header.Del("Content-Length")
			resp.ContentLength = -1
			resp.Uncompressed = true
			return &gzipReadCloser{zr: zr, underlying: r}, nil
		})
		return nil
	})
}

type gzipReadCloser struct {
	zr         *gzip.Reader
	underlying io.ReadCloser
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.zr.Read(p) }

func (g *gzipReadCloser) Close() error {
	zerr := g.zr.Close()
	uerr := g.underlying.Close()
	if zerr != nil {
		return zerr
	}
	return uerr
}

// GzipEncoderFeature compresses request bodies with gzip and marks them with
// a Content-Encoding header. Requests without a body are left untouched.
func GzipEncoderFeature() Feature {
	return FeatureFunc(func(fc *FeatureContext) error {
		fc.AddWriterInterceptor(func(w io.Writer, req *http.Request) (io.Writer, error) {
			req.Header.Set("Content-Encoding", "gzip")
			req.Header.Del("Content-Length")
			req.ContentLength = -1
			return gzip.NewWriter(w), nil
		})
		return nil
	})
}
