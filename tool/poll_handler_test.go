package tool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPollHandlerExecuteToolNormalizesReceipt(t *testing.T) {
	handler := NewPollHandler(HandlerOptions{Client: &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusAccepted, `{"status":"accepted","job_id":"j1"}`), nil
		}),
	}})
	resp, err := handler.ExecuteTool(context.Background(), ServerConfig{BaseURL: "http://unit.local", Protocol: ProtocolSSEPoll}, ExecuteRequest{ToolName: "search"})
	if err != nil {
		t.Fatalf("ExecuteTool() error = %v", err)
	}
	if resp.Status != JobProcessing || resp.JobID != "j1" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestPollHandlerExecuteToolSuccessAcknowledgementIsPolled(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "success without data", body: `{"status":"success","job_id":"j1"}`},
		{name: "done without data", body: `{"status":"done","jobId":"j1"}`},
		{name: "bare job id", body: `{"job_id":"j1"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewPollHandler(HandlerOptions{Client: &http.Client{
				Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
					return jsonResponse(http.StatusOK, tc.body), nil
				}),
			}})
			resp, err := handler.ExecuteTool(context.Background(), ServerConfig{BaseURL: "http://unit.local", Protocol: ProtocolSSEPoll}, ExecuteRequest{ToolName: "search"})
			if err != nil {
				t.Fatalf("ExecuteTool() error = %v", err)
			}
			if resp.Status != JobProcessing || resp.JobID != "j1" {
				t.Fatalf("response = %+v, want processing j1", resp)
			}
		})
	}
}

func TestPollHandlerExecuteToolInlineResultIsKept(t *testing.T) {
	handler := NewPollHandler(HandlerOptions{Client: &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"status":"success","job_id":"j1","data":"RESULT"}`), nil
		}),
	}})
	resp, err := handler.ExecuteTool(context.Background(), ServerConfig{BaseURL: "http://unit.local", Protocol: ProtocolSSEPoll}, ExecuteRequest{ToolName: "search"})
	if err != nil {
		t.Fatalf("ExecuteTool() error = %v", err)
	}
	if resp.Status != JobCompleted || resp.Data != "RESULT" {
		t.Fatalf("response = %+v, want completed RESULT", resp)
	}
}

func TestPollHandlerGetResultUsesResultPath(t *testing.T) {
	var path string
	handler := NewPollHandler(HandlerOptions{Client: &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			path = r.URL.Path
			return jsonResponse(http.StatusOK, `{"status":"completed","data":"RESULT"}`), nil
		}),
	}})
	resp, err := handler.GetResult(context.Background(), ServerConfig{
		BaseURL:    "http://unit.local",
		ResultPath: "/jobs/",
	}, "j 1")
	if err != nil {
		t.Fatalf("GetResult() error = %v", err)
	}
	if path != "/jobs/j 1" {
		t.Fatalf("path = %q, want /jobs/j 1", path)
	}
	if resp.Status != JobCompleted || resp.Data != "RESULT" || resp.JobID != "j 1" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestPollHandlerGetResultNon2xxIsRetryableTransportFailure(t *testing.T) {
	handler := NewPollHandler(HandlerOptions{Client: &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusNotFound, ""), nil
		}),
	}})
	_, err := handler.GetResult(context.Background(), ServerConfig{BaseURL: "http://unit.local"}, "j1")
	toolErr, ok := AsToolError(err)
	if !ok || toolErr.Code != ErrorCodeTransportFailure || !toolErr.Retryable {
		t.Fatalf("error = %v, want retryable transport failure", err)
	}
}

func TestPollHandlerHealthCheckFallsBackToBaseURL(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	status := NewPollHandler(HandlerOptions{}).HealthCheck(context.Background(), ServerConfig{BaseURL: srv.URL})
	if !status.Healthy {
		t.Fatalf("status = %+v, want healthy on 404 base url", status)
	}
}

func TestPollHandlerHealthCheckUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	status := NewPollHandler(HandlerOptions{}).HealthCheck(context.Background(), ServerConfig{BaseURL: url})
	if status.Healthy || status.Error == "" {
		t.Fatalf("status = %+v, want unhealthy", status)
	}
}
