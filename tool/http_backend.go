package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBytes = 16 << 20

// httpBackend holds the HTTP plumbing shared by the sync and polling handlers.
type httpBackend struct {
	opts   HandlerOptions
	calls  *http.Client
	probes *http.Client

	// bareHandles treats a status-less body with a job_id as a receipt.
	bareHandles bool
}

func newHTTPBackend(opts HandlerOptions) httpBackend {
	normalized := opts.normalized()
	backend := httpBackend{
		opts:   normalized,
		calls:  sharedHTTPClientPool.client(0),
		probes: sharedHTTPClientPool.client(normalized.HealthTimeout),
	}
	if normalized.Client != nil {
		backend.calls = normalized.Client
		backend.probes = normalized.Client
	}
	return backend
}

type httpReply struct {
	status int
	body   []byte
}

func (r httpReply) ok() bool {
	return r.status >= http.StatusOK && r.status < http.StatusMultipleChoices
}

// upstreamMessage returns the upstream body, or the status text when it is empty.
func (r httpReply) upstreamMessage() string {
	message := strings.TrimSpace(string(r.body))
	if message == "" {
		message = http.StatusText(r.status)
	}
	return message
}

func (b httpBackend) do(ctx context.Context, client *http.Client, server ServerConfig, method, endpoint string, payload any) (httpReply, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return httpReply{}, NewError(ErrorCodeInvalidRequest, "encode request body", false, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return httpReply{}, NewError(ErrorCodeConfiguration, fmt.Sprintf("build %s request for %s", method, endpoint), false, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := b.opts.Credentials(server.CredentialRef)
	if err != nil {
		return httpReply{}, NewError(ErrorCodeConfiguration, "resolve credential", false, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return httpReply{}, transportError(method+" "+endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return httpReply{}, transportError("read response from "+endpoint, err)
	}
	return httpReply{status: resp.StatusCode, body: raw}, nil
}

// submit posts a tool invocation to the server's execute endpoint.
func (b httpBackend) submit(ctx context.Context, server ServerConfig, req ExecuteRequest) (Response, error) {
	if strings.TrimSpace(req.ToolName) == "" {
		return Response{}, NewError(ErrorCodeInvalidRequest, "tool name is empty", false, nil)
	}
	if req.Params == nil {
		req.Params = map[string]any{}
	}
	endpoint := server.BaseURL + server.ExecutePath
	reply, err := b.do(ctx, b.calls, server, http.MethodPost, endpoint, req)
	if err != nil {
		return Response{}, err
	}
	if !reply.ok() {
		return Response{}, WithDetails(
			NewError(ErrorCodeExecutionFailure, fmt.Sprintf("tool %q returned status %d: %s", req.ToolName, reply.status, reply.upstreamMessage()), false, nil),
			map[string]any{"http_status": reply.status},
		)
	}
	return decodeResponse(reply.body, b.bareHandles)
}

// fetchResult reads the current state of an asynchronous job.
func (b httpBackend) fetchResult(ctx context.Context, server ServerConfig, jobID string) (Response, error) {
	clean := strings.TrimSpace(jobID)
	if clean == "" {
		return Response{}, NewError(ErrorCodeInvalidRequest, "job id is empty", false, nil)
	}
	endpoint := server.BaseURL + server.ResultPath + "/" + url.PathEscape(clean)
	reply, err := b.do(ctx, b.calls, server, http.MethodGet, endpoint, nil)
	if err != nil {
		return Response{}, err
	}
	if !reply.ok() {
		return Response{}, WithDetails(
			NewError(ErrorCodeTransportFailure, fmt.Sprintf("result for job %s returned status %d: %s", clean, reply.status, reply.upstreamMessage()), true, nil),
			map[string]any{"http_status": reply.status},
		)
	}
	resp, err := decodeResponse(reply.body, b.bareHandles)
	if err != nil {
		return Response{}, err
	}
	if resp.JobID == "" {
		resp.JobID = clean
	}
	return resp, nil
}

// discover fetches the discovery document with retries. Failures are logged
// and reported in Discovery.Error.
func (b httpBackend) discover(ctx context.Context, server ServerConfig, protocol ProtocolType) Discovery {
	endpoint := server.BaseURL + server.DiscoveryPath
	meta := retryMeta{server: server.DisplayName(), operation: "discover", protocol: protocol}
	reply, attempts, err := withRetry(ctx, b.opts.DiscoveryRetry, b.opts.Observer, meta, func(ctx context.Context, _ int) (httpReply, error) {
		reply, err := b.do(ctx, b.calls, server, http.MethodGet, endpoint, nil)
		if err != nil {
			return httpReply{}, err
		}
		if !reply.ok() {
			return httpReply{}, NewError(ErrorCodeDiscoveryFailure,
				fmt.Sprintf("discovery returned status %d: %s", reply.status, reply.upstreamMessage()),
				reply.status >= http.StatusInternalServerError, nil)
		}
		return reply, nil
	})
	if err == nil {
		var discovery Discovery
		discovery, err = decodeDiscovery(reply.body, server.ID)
		if err == nil {
			return discovery
		}
	}

	b.opts.Logger.Warn("tool discovery failed",
		"server", server.DisplayName(),
		"server_id", server.ID,
		"protocol", string(protocol),
		"attempts", attempts,
		"error", err,
	)
	return Discovery{Error: err.Error()}
}

// probe issues a health GET bounded by the health timeout.
func (b httpBackend) probe(ctx context.Context, server ServerConfig, endpoint string) (httpReply, error) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.HealthTimeout)
	defer cancel()
	return b.do(ctx, b.probes, server, http.MethodGet, endpoint, nil)
}

func healthResult(server ServerConfig, protocol ProtocolType, start time.Time, err error) HealthStatus {
	status := HealthStatus{
		ServerID:  server.ID,
		Name:      server.DisplayName(),
		Protocol:  protocol,
		Healthy:   err == nil,
		CheckedAt: start.UTC(),
		LatencyMS: elapsedMS(start),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}
