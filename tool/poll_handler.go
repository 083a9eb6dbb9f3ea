package tool

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// PollHandler talks to servers that accept work and expose a separate result
// endpoint, the usual shape of workflow-automation hosts.
type PollHandler struct {
	backend httpBackend
}

// NewPollHandler creates a submit-and-poll handler.
func NewPollHandler(opts HandlerOptions) *PollHandler {
	backend := newHTTPBackend(opts)
	backend.bareHandles = true
	return &PollHandler{backend: backend}
}

func (h *PollHandler) Protocol() ProtocolType { return ProtocolSSEPoll }

// ExecuteTool submits the call. Receipts are normalized to processing so the
// dispatcher always polls them. A "success" carrying a job id and no data is
// an acknowledgement, not an answer.
func (h *PollHandler) ExecuteTool(ctx context.Context, server ServerConfig, req ExecuteRequest) (Response, error) {
	resp, err := h.backend.submit(ctx, server.Normalized(), req)
	if err != nil {
		return Response{}, err
	}
	if resp.JobID == "" {
		return resp, nil
	}
	if !resp.Status.Terminal() || (resp.Status == JobCompleted && resp.Data == nil) {
		resp.Status = JobProcessing
	}
	return resp, nil
}

func (h *PollHandler) DiscoverTools(ctx context.Context, server ServerConfig) Discovery {
	return h.backend.discover(ctx, server.Normalized(), ProtocolSSEPoll)
}

func (h *PollHandler) GetResult(ctx context.Context, server ServerConfig, jobID string) (Response, error) {
	return h.backend.fetchResult(ctx, server.Normalized(), jobID)
}

// HealthCheck tries the health endpoint first, then the base URL. Automation
// hosts often have no health route, so a 404 on the base URL still counts.
func (h *PollHandler) HealthCheck(ctx context.Context, server ServerConfig) HealthStatus {
	normalized := server.Normalized()
	start := time.Now()

	reply, err := h.backend.probe(ctx, normalized, normalized.BaseURL+DefaultHealthPath)
	if err != nil || !reply.ok() {
		var fallback httpReply
		fallback, err = h.backend.probe(ctx, normalized, normalized.BaseURL)
		if err == nil && !fallback.ok() && fallback.status != http.StatusNotFound {
			err = fmt.Errorf("server returned status %d", fallback.status)
		}
	}

	status := healthResult(normalized, ProtocolSSEPoll, start, err)
	h.backend.opts.Observer.ObserveHealth(HealthObservation{
		Server:     status.Name,
		Protocol:   ProtocolSSEPoll,
		Healthy:    status.Healthy,
		DurationMS: status.LatencyMS,
	})
	return status
}

func (h *PollHandler) Close(context.Context) error {
	if h.backend.opts.Client == nil {
		sharedHTTPClientPool.closeIdle()
	}
	return nil
}
