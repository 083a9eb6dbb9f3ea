package tool

import (
	"context"
	"fmt"
	"time"
)

// HTTPHandler talks to servers that answer tool calls inline.
type HTTPHandler struct {
	backend httpBackend
}

// NewHTTPHandler creates a synchronous HTTP handler.
func NewHTTPHandler(opts HandlerOptions) *HTTPHandler {
	return &HTTPHandler{backend: newHTTPBackend(opts)}
}

func (h *HTTPHandler) Protocol() ProtocolType { return ProtocolHTTP }

// ExecuteTool posts the call and returns the server's answer. Servers that
// hand back a job id anyway are polled by the dispatcher through GetResult.
func (h *HTTPHandler) ExecuteTool(ctx context.Context, server ServerConfig, req ExecuteRequest) (Response, error) {
	return h.backend.submit(ctx, server.Normalized(), req)
}

func (h *HTTPHandler) DiscoverTools(ctx context.Context, server ServerConfig) Discovery {
	return h.backend.discover(ctx, server.Normalized(), ProtocolHTTP)
}

func (h *HTTPHandler) GetResult(ctx context.Context, server ServerConfig, jobID string) (Response, error) {
	return h.backend.fetchResult(ctx, server.Normalized(), jobID)
}

// HealthCheck reports healthy on a 2xx from the health endpoint.
func (h *HTTPHandler) HealthCheck(ctx context.Context, server ServerConfig) HealthStatus {
	normalized := server.Normalized()
	start := time.Now()
	reply, err := h.backend.probe(ctx, normalized, normalized.BaseURL+DefaultHealthPath)
	if err == nil && !reply.ok() {
		err = fmt.Errorf("health endpoint returned status %d", reply.status)
	}
	status := healthResult(normalized, ProtocolHTTP, start, err)
	h.backend.opts.Observer.ObserveHealth(HealthObservation{
		Server:     status.Name,
		Protocol:   ProtocolHTTP,
		Healthy:    status.Healthy,
		DurationMS: status.LatencyMS,
	})
	return status
}

func (h *HTTPHandler) Close(context.Context) error {
	if h.backend.opts.Client == nil {
		sharedHTTPClientPool.closeIdle()
	}
	return nil
}
