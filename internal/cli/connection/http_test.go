package connection

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewHTTPClient_BaseURL(t *testing.T) {
	tests := []struct {
		server string
		want   string
	}{
		{"localhost:8080", "http://localhost:8080"},
		{"http://example.com/", "http://example.com"},
		{"https://example.com", "https://example.com"},
	}
	for _, tt := range tests {
		if got := NewHTTPClient(tt.server, 0).BaseURL(); got != tt.want {
			t.Errorf("NewHTTPClient(%q).BaseURL() = %q, want %q", tt.server, got, tt.want)
		}
	}
}

func TestHTTPClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/s-1/status" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "onboard-cli/") {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"code":"OK","message":"Success","data":{"session_id":"s-1","status":"saved"}}`)
	}))
	defer srv.Close()

	var out struct {
		SessionID string `json:"session_id"`
		Status    string `json:"status"`
	}
	c := NewHTTPClient(srv.URL, time.Second)
	if err := c.Get(context.Background(), "/sessions/s-1/status", &out); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if out.SessionID != "s-1" || out.Status != "saved" {
		t.Errorf("out = %+v", out)
	}
}

func TestHTTPClient_PostBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["k"] != "v" {
			t.Errorf("body = %v", body)
		}
		io.WriteString(w, `{"code":"OK","message":"Success"}`)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	if err := c.Post(context.Background(), "/x", map[string]string{"k": "v"}, nil); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
}

func TestHTTPClient_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInsufficientStorage)
		io.WriteString(w, `{"code":"ONB-STOR-5070","message":"storage quota exceeded"}`)
	}))
	defer srv.Close()

	err := NewHTTPClient(srv.URL, time.Second).Get(context.Background(), "/", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusInsufficientStorage || apiErr.Code != "ONB-STOR-5070" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if apiErr.Error() != "[ONB-STOR-5070] storage quota exceeded" {
		t.Errorf("Error() = %q", apiErr.Error())
	}
}

func TestHTTPClient_ErrorWithoutEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewHTTPClient(srv.URL, time.Second).Get(context.Background(), "/", nil)
	if err == nil || err.Error() != "request failed with status 502" {
		t.Errorf("error = %v", err)
	}
}
