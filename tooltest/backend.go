// Package tooltest provides an in-process tool server for tests. It speaks
// the same wire format as real backends: synchronous tools answer inline,
// asynchronous tools return a job id and report scripted statuses on each
// poll of the result endpoint.
package tooltest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tool"
)

// Step is one scripted answer of the result endpoint.
type Step struct {
	Status string
	Data   any
	Error  string
	// HTTPStatus defaults to 200.
	HTTPStatus int
}

// Tool describes one fake tool.
type Tool struct {
	Name        string
	Description string
	// InputSchema is served as the tool's JSON schema.
	InputSchema map[string]any
	// Async tools return a job handle and answer polls from Steps; the last
	// step repeats once the script runs out.
	Async bool
	// JobID fixes the job handle; random when empty.
	JobID string
	Steps []Step
	// Result and Error are the inline answer of synchronous tools.
	Result any
	Error  string
	// Receipt makes a synchronous tool answer "accepted" with no job id.
	Receipt bool
	// Raw is written as the synchronous answer without a status envelope.
	Raw map[string]any
	// Delay holds the submission response.
	Delay time.Duration
}

type job struct {
	tool  *Tool
	polls int
}

// Backend is a fake tool server.
type Backend struct {
	srv *httptest.Server

	mu              sync.Mutex
	tools           []*Tool
	jobs            map[string]*job
	requests        []tool.ExecuteRequest
	discoveryStatus int
	healthy         bool
	discoveries     int
}

// NewBackend starts a fake server and stops it when the test ends.
func NewBackend(t testing.TB, tools ...Tool) *Backend {
	t.Helper()
	b := &Backend{
		jobs:    map[string]*job{},
		healthy: true,
	}
	for i := range tools {
		copied := tools[i]
		b.tools = append(b.tools, &copied)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+tool.DefaultDiscoveryPath, b.handleDiscovery)
	mux.HandleFunc("POST "+tool.DefaultExecutePath, b.handleExecute)
	mux.HandleFunc("GET "+tool.DefaultResultPath+"/{id}", b.handleResult)
	mux.HandleFunc("GET "+tool.DefaultHealthPath, b.handleHealth)
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

// URL returns the server base URL.
func (b *Backend) URL() string { return b.srv.URL }

// Server returns a server configuration pointing at the backend.
func (b *Backend) Server(id int64, name string, protocol tool.ProtocolType) tool.ServerConfig {
	return tool.ServerConfig{
		ID:       id,
		Name:     name,
		BaseURL:  b.srv.URL,
		Protocol: protocol,
		Active:   true,
	}
}

// Close stops the server early, making it unreachable.
func (b *Backend) Close() { b.srv.Close() }

// FailDiscovery makes the discovery endpoint answer with status.
func (b *Backend) FailDiscovery(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.discoveryStatus = status
}

// SetHealthy switches the health endpoint between 200 and 503.
func (b *Backend) SetHealthy(healthy bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.healthy = healthy
}

// Requests returns every execute request received so far.
func (b *Backend) Requests() []tool.ExecuteRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]tool.ExecuteRequest(nil), b.requests...)
}

// Submits counts execute requests for toolName.
func (b *Backend) Submits(toolName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, req := range b.requests {
		if req.ToolName == toolName {
			n++
		}
	}
	return n
}

// Polls counts result requests for jobID.
func (b *Backend) Polls(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if j, ok := b.jobs[jobID]; ok {
		return j.polls
	}
	return 0
}

// Discoveries counts discovery requests.
func (b *Backend) Discoveries() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.discoveries
}

func (b *Backend) lookup(name string) *Tool {
	for _, t := range b.tools {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func (b *Backend) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	b.discoveries++
	status := b.discoveryStatus
	entries := make([]map[string]any, 0, len(b.tools))
	for _, t := range b.tools {
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		entries = append(entries, map[string]any{
			"name":         t.Name,
			"description":  t.Description,
			"input_schema": schema,
		})
	}
	b.mu.Unlock()

	if status != 0 {
		http.Error(w, "discovery unavailable", status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": entries})
}

func (b *Backend) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req tool.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "failed", "error": err.Error()})
		return
	}

	b.mu.Lock()
	b.requests = append(b.requests, req)
	t := b.lookup(req.ToolName)
	var jobID string
	if t != nil && t.Async {
		jobID = t.JobID
		if jobID == "" {
			jobID = uuid.NewString()
		}
		b.jobs[jobID] = &job{tool: t}
	}
	b.mu.Unlock()

	if t == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"status": "failed", "error": "unknown tool " + req.ToolName})
		return
	}
	if t.Delay > 0 {
		select {
		case <-time.After(t.Delay):
		case <-r.Context().Done():
			return
		}
	}

	switch {
	case t.Async:
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "job_id": jobID})
	case t.Receipt:
		writeJSON(w, http.StatusOK, map[string]any{"status": "accepted", "message": "Workflow was started"})
	case t.Error != "":
		writeJSON(w, http.StatusOK, map[string]any{"status": "failed", "error": t.Error})
	case t.Raw != nil:
		writeJSON(w, http.StatusOK, t.Raw)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"status": "completed", "data": t.Result})
	}
}

func (b *Backend) handleResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	b.mu.Lock()
	j, ok := b.jobs[id]
	var step Step
	if ok {
		j.polls++
		if len(j.tool.Steps) > 0 {
			idx := j.polls - 1
			if idx >= len(j.tool.Steps) {
				idx = len(j.tool.Steps) - 1
			}
			step = j.tool.Steps[idx]
		} else {
			step = Step{Status: "processing"}
		}
	}
	b.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"status": "failed", "error": "unknown job"})
		return
	}
	body := map[string]any{"status": step.Status, "job_id": id}
	if step.Data != nil {
		body["data"] = step.Data
	}
	if strings.TrimSpace(step.Error) != "" {
		body["error"] = step.Error
	}
	status := step.HTTPStatus
	if status == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, body)
}

func (b *Backend) handleHealth(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	healthy := b.healthy
	b.mu.Unlock()
	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "down"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
