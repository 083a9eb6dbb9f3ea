package tool

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type roundTripFunc func(r *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestHTTPHandlerExecuteToolPostsRequest(t *testing.T) {
	var got ExecuteRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/execute" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"status":"completed","data":"hello"}`))
	}))
	defer srv.Close()

	handler := NewHTTPHandler(HandlerOptions{})
	resp, err := handler.ExecuteTool(context.Background(), ServerConfig{
		Name:          "alpha",
		BaseURL:       srv.URL,
		CredentialRef: "secret-token",
	}, ExecuteRequest{ToolName: "lookup", Params: map[string]any{"id": "1"}, RequestID: "r-1"})
	if err != nil {
		t.Fatalf("ExecuteTool() error = %v", err)
	}
	if resp.Status != JobCompleted || resp.Data != "hello" {
		t.Fatalf("response = %+v", resp)
	}
	if got.ToolName != "lookup" || got.Params["id"] != "1" || got.RequestID != "r-1" {
		t.Fatalf("request body = %+v", got)
	}
	if auth != "Bearer secret-token" {
		t.Fatalf("authorization = %q", auth)
	}
}

func TestHTTPHandlerExecuteToolNon2xxIsExecutionFailure(t *testing.T) {
	handler := NewHTTPHandler(HandlerOptions{Client: &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusBadGateway, "upstream exploded"), nil
		}),
	}})

	_, err := handler.ExecuteTool(context.Background(), ServerConfig{BaseURL: "http://unit.local"}, ExecuteRequest{ToolName: "lookup"})
	if !IsExecutionFailure(err) {
		t.Fatalf("error = %v, want execution failure", err)
	}
	if !strings.Contains(err.Error(), "upstream exploded") {
		t.Fatalf("error = %q, want upstream body", err.Error())
	}
}

func TestHTTPHandlerExecuteToolMissingCredentialIsConfigurationError(t *testing.T) {
	t.Setenv("TOOLCTL_TEST_EMPTY_TOKEN", "")
	handler := NewHTTPHandler(HandlerOptions{Client: &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			t.Fatal("request should not be sent")
			return nil, nil
		}),
	}})
	_, err := handler.ExecuteTool(context.Background(), ServerConfig{
		BaseURL:       "http://unit.local",
		CredentialRef: "env:TOOLCTL_TEST_EMPTY_TOKEN",
	}, ExecuteRequest{ToolName: "lookup"})
	if !IsConfigurationError(err) {
		t.Fatalf("error = %v, want configuration error", err)
	}
}

func TestHTTPHandlerTransportErrorsAreTyped(t *testing.T) {
	handler := NewHTTPHandler(HandlerOptions{Client: &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		}),
	}})
	_, err := handler.ExecuteTool(context.Background(), ServerConfig{BaseURL: "http://unit.local"}, ExecuteRequest{ToolName: "lookup"})
	if ErrorCode(err) != ErrorCodeTransportFailure {
		t.Fatalf("error code = %q, want %q", ErrorCode(err), ErrorCodeTransportFailure)
	}
}

func TestHTTPHandlerDiscoverTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != DefaultDiscoveryPath {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"tools":[{"name":"lookup","description":"Find","input_schema":{"properties":{"id":{"type":"string"}},"required":["id"]}}]}`))
	}))
	defer srv.Close()

	discovery := NewHTTPHandler(HandlerOptions{}).DiscoverTools(context.Background(), ServerConfig{ID: 3, BaseURL: srv.URL})
	if discovery.Error != "" {
		t.Fatalf("discovery error = %q", discovery.Error)
	}
	if len(discovery.Tools) != 1 || discovery.Tools[0].Name != "lookup" || discovery.Tools[0].ServerID != 3 {
		t.Fatalf("tools = %+v", discovery.Tools)
	}
}

func TestHTTPHandlerDiscoverToolsRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	handler := NewHTTPHandler(HandlerOptions{
		DiscoveryRetry: RetryPolicy{MaxAttempts: 3},
		Client: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if calls.Add(1) < 3 {
				return jsonResponse(http.StatusServiceUnavailable, ""), nil
			}
			return jsonResponse(http.StatusOK, `{"tools":[{"name":"a"}]}`), nil
		})},
	})
	discovery := handler.DiscoverTools(context.Background(), ServerConfig{BaseURL: "http://unit.local"})
	if len(discovery.Tools) != 1 {
		t.Fatalf("tools = %+v, error = %q", discovery.Tools, discovery.Error)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestHTTPHandlerDiscoverToolsNeverFails(t *testing.T) {
	handler := NewHTTPHandler(HandlerOptions{
		DiscoveryRetry: RetryPolicy{MaxAttempts: 1},
		Client: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `not json`), nil
		})},
	})
	discovery := handler.DiscoverTools(context.Background(), ServerConfig{BaseURL: "http://unit.local"})
	if len(discovery.Tools) != 0 || discovery.Error == "" {
		t.Fatalf("discovery = %+v, want empty with error", discovery)
	}
}

func TestHTTPHandlerHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DefaultHealthPath {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	status := NewHTTPHandler(HandlerOptions{}).HealthCheck(context.Background(), ServerConfig{ID: 9, Name: "alpha", BaseURL: srv.URL})
	if !status.Healthy || status.ServerID != 9 || status.Name != "alpha" {
		t.Fatalf("status = %+v", status)
	}
}

func TestHTTPHandlerHealthCheckHonoursOwnTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	status := NewHTTPHandler(HandlerOptions{HealthTimeout: 50 * time.Millisecond}).
		HealthCheck(context.Background(), ServerConfig{BaseURL: srv.URL})
	if status.Healthy || status.Error == "" {
		t.Fatalf("status = %+v, want unhealthy with error", status)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("health check took %v", elapsed)
	}
}
