package restclient

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/restkit/observability"
	"github.com/kbukum/restkit/serializer"
	"github.com/kbukum/restkit/transport"
	"github.com/kbukum/restkit/util"
)

func newTestClient(t *testing.T, cfg Configuration, opts ...func(*Builder)) *Client {
	t.Helper()
	b := NewBuilder().
		Using(cfg).
		UsingExecutor(newTestPool(t)).
		UsingSerializer(serializer.NewJSON())
	for _, opt := range opts {
		opt(b)
	}
	client, err := b.Build("test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_Do_GET(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/users/123" {
			t.Errorf("expected /users/123, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"name": "Alice"})
	}))
	defer srv.Close()

	client := newTestClient(t, plainConfig(srv.URL))
	resp, err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/users/123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(resp.Body), "Alice") {
		t.Errorf("response body should contain Alice, got %s", resp.Body)
	}

	var decoded map[string]string
	if err := resp.Decode(&decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded["name"] != "Alice" {
		t.Errorf("expected name Alice, got %q", decoded["name"])
	}
}

func TestClient_Do_POST_SerializedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", ct)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["name"] != "Bob" {
			t.Errorf("expected name Bob, got %q", body["name"])
		}
		w.WriteHeader(201)
	}))
	defer srv.Close()

	client := newTestClient(t, plainConfig(srv.URL))
	resp, err := client.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/users",
		Body:   map[string]string{"name": "Bob"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 201 {
		t.Errorf("expected 201, got %d", resp.StatusCode)
	}
}

func TestClient_Do_GzipResponseDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ae := r.Header.Get("Accept-Encoding"); !strings.Contains(ae, "gzip") {
			t.Errorf("expected Accept-Encoding gzip, got %q", ae)
		}
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		zw.Write([]byte(`{"name":"Alice"}`))
		zw.Close()
	}))
	defer srv.Close()

	cfg := Configuration{
		BaseURL:                srv.URL,
		GzipEnabledForRequests: util.Ptr(false),
	}
	client := newTestClient(t, cfg)
	resp, err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Body) != `{"name":"Alice"}` {
		t.Errorf("expected decompressed body, got %q", resp.Body)
	}
}

func TestClient_Do_GzipRequestEncoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ce := r.Header.Get("Content-Encoding"); ce != "gzip" {
			t.Errorf("expected Content-Encoding gzip, got %q", ce)
		}
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		raw, _ := io.ReadAll(zr)
		if string(raw) != "hello" {
			t.Errorf("expected hello, got %q", raw)
		}
		w.WriteHeader(200)
	}))
	defer srv.Close()

	cfg := Configuration{
		BaseURL:     srv.URL,
		GzipEnabled: util.Ptr(false),
	}
	client := newTestClient(t, cfg)
	_, err := client.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/",
		Body:   "hello",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClient_Do_ChunkedEncodingDisabledBuffersBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.TransferEncoding) != 0 {
			t.Errorf("expected no transfer encoding, got %v", r.TransferEncoding)
		}
		if r.ContentLength <= 0 {
			t.Errorf("expected positive Content-Length, got %d", r.ContentLength)
		}
		w.WriteHeader(200)
	}))
	defer srv.Close()

	cfg := plainConfig(srv.URL)
	cfg.ChunkedEncodingEnabled = util.Ptr(false)
	client := newTestClient(t, cfg)

	// An opaque reader hides the body length, which would normally force
	// chunked transfer encoding.
	body := struct{ io.Reader }{strings.NewReader("hello world")}
	_, err := client.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/",
		Body:   body,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClient_Do_ErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
		name   string
	}{
		{401, IsAuth, "auth"},
		{404, IsNotFound, "not_found"},
		{429, IsRateLimit, "rate_limit"},
		{500, IsServerError, "server"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			client := newTestClient(t, plainConfig(srv.URL))
			resp, err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tc.check(err) {
				t.Errorf("expected %s error, got %v", tc.name, err)
			}
			if resp == nil || resp.StatusCode != tc.status {
				t.Errorf("expected response with status %d alongside error", tc.status)
			}
		})
	}
}

func TestClient_DoAsync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := newTestClient(t, plainConfig(srv.URL))
	future, err := client.DoAsync(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := future.Wait(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Body) != "ok" {
		t.Errorf("expected ok, got %q", resp.Body)
	}
	if !future.Done() {
		t.Error("expected future to report done")
	}
}

func TestClient_DoStream_SSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "id: 1\ndata: first\n\ndata: second\n\n")
	}))
	defer srv.Close()

	client := newTestClient(t, plainConfig(srv.URL))
	stream, err := client.DoStream(context.Background(), Request{Method: http.MethodGet, Path: "/events"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Close()

	if stream.SSE == nil {
		t.Fatal("expected SSE reader for text/event-stream response")
	}
	first, err := stream.SSE.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Data != "first" || first.ID != "1" {
		t.Errorf("unexpected first event: %+v", first)
	}
	second, err := stream.SSE.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Data != "second" {
		t.Errorf("unexpected second event: %+v", second)
	}
	if stream.SSE.LastEventID() != "1" {
		t.Errorf("expected last event id 1, got %q", stream.SSE.LastEventID())
	}
}

func TestClient_RequestIDFeature(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(RequestIDHeader)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	client := newTestClient(t, plainConfig(srv.URL), func(b *Builder) {
		b.WithProvider(RequestIDFeature())
	})
	_, err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == "" {
		t.Error("expected generated request id header")
	}
}

func TestClient_CheckHealth(t *testing.T) {
	client := newTestClient(t, plainConfig("http://localhost:1"))
	h := client.CheckHealth(context.Background())
	if h.Status != observability.HealthStatusUp {
		t.Errorf("expected up, got %s", h.Status)
	}

	client.Close()
	h = client.CheckHealth(context.Background())
	if h.Status != observability.HealthStatusDown {
		t.Errorf("expected down after close, got %s", h.Status)
	}
}

func TestClient_Close_Idempotent(t *testing.T) {
	client := newTestClient(t, plainConfig("http://localhost:1"))
	if err := client.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
	if _, err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"}); !isCode(err, ErrCodeClosed) {
		t.Errorf("expected closed error, got %v", err)
	}
	if _, err := client.DoAsync(context.Background(), Request{Method: http.MethodGet, Path: "/"}); !isCode(err, ErrCodeClosed) {
		t.Errorf("expected closed error, got %v", err)
	}
}

func TestClient_CloseLeavesSuppliedPoolRunning(t *testing.T) {
	pool := newTestPool(t)
	client, err := NewBuilder().
		Using(plainConfig("http://localhost:1")).
		UsingExecutor(pool).
		UsingSerializer(serializer.NewJSON()).
		Build("payments")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The pool belongs to the caller, not the client.
	if err := pool.Submit(func() {}); err != nil {
		t.Errorf("expected pool to survive client close: %v", err)
	}
}

type recordingConnector struct {
	Connector
	calls int
}

func (r *recordingConnector) RoundTrip(req *http.Request) (*http.Response, error) {
	r.calls++
	return r.Connector.RoundTrip(req)
}

func TestClient_ConnectorProviderOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rec := &recordingConnector{}
	client := newTestClient(t, plainConfig(srv.URL), func(b *Builder) {
		b.UsingConnectorProvider(func(cc *transport.ConfiguredClient, chunked bool) (Connector, error) {
			inner, err := newHTTPConnector(cc, chunked)
			if err != nil {
				return nil, err
			}
			rec.Connector = inner
			return rec, nil
		})
	})

	if _, err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.calls != 1 {
		t.Errorf("expected 1 round trip through custom connector, got %d", rec.calls)
	}
}

func TestClient_Do_MultipartBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		if got := r.FormValue("kind"); got != "invoice" {
			t.Errorf("expected kind=invoice, got %q", got)
		}
		f, _, err := r.FormFile("doc")
		if err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		defer f.Close()
		raw, _ := io.ReadAll(f)
		if string(raw) != "contents" {
			t.Errorf("expected file contents, got %q", raw)
		}
		w.WriteHeader(200)
	}))
	defer srv.Close()

	client := newTestClient(t, plainConfig(srv.URL))
	_, err := client.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/upload",
		Body: &MultipartBody{
			Fields: map[string]string{"kind": "invoice"},
			Files: []FileField{
				{FieldName: "doc", FileName: "doc.txt", Data: []byte("contents")},
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
