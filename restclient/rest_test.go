package restclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type user struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestGet_Typed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("page"); got != "2" {
			t.Errorf("expected page=2, got %q", got)
		}
		if got := r.Header.Get("X-Tenant"); got != "acme" {
			t.Errorf("expected X-Tenant=acme, got %q", got)
		}
		json.NewEncoder(w).Encode(user{ID: 7, Name: "Alice"})
	}))
	defer srv.Close()

	client := newTestClient(t, plainConfig(srv.URL))
	resp, err := Get[user](client, context.Background(), "/users/7",
		WithQueryParam("page", "2"),
		WithHeader("X-Tenant", "acme"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Data.ID != 7 || resp.Data.Name != "Alice" {
		t.Errorf("unexpected data: %+v", resp.Data)
	}
}

func TestPost_Typed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in user
		json.NewDecoder(r.Body).Decode(&in)
		in.ID = 42
		w.WriteHeader(201)
		json.NewEncoder(w).Encode(in)
	}))
	defer srv.Close()

	client := newTestClient(t, plainConfig(srv.URL))
	resp, err := Post[user](client, context.Background(), "/users", user{Name: "Bob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 201 {
		t.Errorf("expected 201, got %d", resp.StatusCode)
	}
	if resp.Data.ID != 42 {
		t.Errorf("expected id 42, got %d", resp.Data.ID)
	}
}

type apiError struct {
	Message string `json:"message"`
}

func TestGet_Typed_ErrorPayloadDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
		json.NewEncoder(w).Encode(apiError{Message: "no such user"})
	}))
	defer srv.Close()

	client := newTestClient(t, plainConfig(srv.URL))
	resp, err := Get[apiError](client, context.Background(), "/users/404")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
	if resp == nil || resp.Data.Message != "no such user" {
		t.Errorf("expected decoded error payload, got %+v", resp)
	}
}
