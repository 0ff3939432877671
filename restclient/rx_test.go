package restclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kbukum/restkit/serializer"
)

func TestBuildRx_DeliversResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	rx, err := NewBuilder().
		Using(plainConfig(srv.URL)).
		UsingExecutor(newTestPool(t)).
		UsingSerializer(serializer.NewJSON()).
		BuildRx("rx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rx.Close()

	results := rx.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})

	select {
	case result, ok := <-results:
		if !ok {
			t.Fatal("channel closed without a result")
		}
		if result.Err != nil {
			t.Fatalf("unexpected error: %v", result.Err)
		}
		var payload struct {
			Status string `json:"status"`
		}
		if err := result.Response.Decode(&payload); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if payload.Status != "ok" {
			t.Errorf("unexpected payload status %q", payload.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for result")
	}

	// Exactly one result, then the channel closes.
	if _, ok := <-results; ok {
		t.Error("expected channel to be closed after the result")
	}
}

func TestBuildRx_ErrorResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rx, err := NewBuilder().
		Using(plainConfig(srv.URL)).
		UsingExecutor(newTestPool(t)).
		UsingSerializer(serializer.NewJSON()).
		BuildRx("rx-err")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rx.Close()

	result := <-rx.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	if result.Err == nil {
		t.Fatal("expected error result")
	}
	if !IsServerError(result.Err) {
		t.Errorf("expected server error, got %v", result.Err)
	}
	if result.Response == nil || result.Response.StatusCode != http.StatusInternalServerError {
		t.Error("expected response delivered alongside the error")
	}
}

func TestBuildRx_SubmitAfterClose(t *testing.T) {
	rx, err := NewBuilder().
		Using(plainConfig("http://example.test")).
		UsingExecutor(newTestPool(t)).
		UsingSerializer(serializer.NewJSON()).
		BuildRx("rx-closed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := rx.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := <-rx.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	if result.Err == nil {
		t.Error("expected error after close")
	}
}
