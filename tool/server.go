package tool

import (
	"slices"
	"strings"
	"time"
)

// ProtocolType selects the handler variant used to talk to a server.
type ProtocolType string

const (
	ProtocolHTTP      ProtocolType = "http"
	ProtocolSSEPoll   ProtocolType = "sse-poll"
	ProtocolWebSocket ProtocolType = "websocket"
	ProtocolStdio     ProtocolType = "stdio"
)

// ParseProtocolType normalizes stored protocol names, including legacy aliases.
func ParseProtocolType(value string) ProtocolType {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "http", "http_post", "http-post":
		return ProtocolHTTP
	case "sse-poll", "sse_poll", "sse", "poll":
		return ProtocolSSEPoll
	case "websocket", "ws":
		return ProtocolWebSocket
	case "stdio":
		return ProtocolStdio
	default:
		return ProtocolType(strings.ToLower(strings.TrimSpace(value)))
	}
}

// Connection status values written back to the configuration store.
const (
	ConnectionConnected    = "connected"
	ConnectionDegraded     = "degraded"
	ConnectionError        = "error"
	ConnectionDisconnected = "disconnected"
)

const (
	DefaultDiscoveryPath = "/.well-known/mcp.json"
	DefaultExecutePath   = "/execute"
	DefaultResultPath    = "/mcp/results"
	DefaultHealthPath    = "/health"
	DefaultPollInterval  = time.Second
	DefaultCallTimeout   = 30 * time.Second
	DefaultHealthTimeout = 5 * time.Second
)

// ServerConfig describes one backend tool server.
type ServerConfig struct {
	ID             int64            `json:"id" yaml:"id"`
	Scope          string           `json:"scope,omitempty" yaml:"scope,omitempty"`
	Name           string           `json:"name" yaml:"name"`
	BaseURL        string           `json:"base_url" yaml:"base_url"`
	Protocol       ProtocolType     `json:"protocol_type" yaml:"protocol_type"`
	DiscoveryPath  string           `json:"discovery_path,omitempty" yaml:"discovery_path,omitempty"`
	ExecutePath    string           `json:"execute_path,omitempty" yaml:"execute_path,omitempty"`
	ResultPath     string           `json:"result_path,omitempty" yaml:"result_path,omitempty"`
	PollInterval   time.Duration    `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
	Timeout        time.Duration    `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	CredentialRef  string           `json:"credential_ref,omitempty" yaml:"credential_ref,omitempty"`
	Active         bool             `json:"active" yaml:"active"`
	ResultSelector string           `json:"result_selector,omitempty" yaml:"result_selector,omitempty"`
	Tools          []ToolDescriptor `json:"tools,omitempty" yaml:"tools,omitempty"`
	Capabilities   []map[string]any `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Status         string           `json:"status,omitempty" yaml:"status,omitempty"`
	LastConnected  time.Time        `json:"last_connected,omitempty" yaml:"last_connected,omitempty"`
}

// Normalized returns a copy with defaults applied. Poll interval and timeout are
// always strictly positive afterwards.
func (s ServerConfig) Normalized() ServerConfig {
	out := s
	out.Name = strings.TrimSpace(out.Name)
	out.BaseURL = strings.TrimRight(strings.TrimSpace(out.BaseURL), "/")
	out.Protocol = ParseProtocolType(string(out.Protocol))
	if out.Protocol == "" {
		out.Protocol = ProtocolHTTP
	}
	out.DiscoveryPath = normalizePath(out.DiscoveryPath, DefaultDiscoveryPath)
	out.ExecutePath = normalizePath(out.ExecutePath, DefaultExecutePath)
	out.ResultPath = strings.TrimRight(normalizePath(out.ResultPath, DefaultResultPath), "/")
	if out.PollInterval <= 0 {
		out.PollInterval = DefaultPollInterval
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultCallTimeout
	}
	return out
}

// DisplayName returns the server name, falling back to its base URL.
func (s ServerConfig) DisplayName() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	return s.BaseURL
}

func normalizePath(value, fallback string) string {
	clean := strings.TrimSpace(value)
	if clean == "" {
		return fallback
	}
	if !strings.HasPrefix(clean, "/") {
		clean = "/" + clean
	}
	return clean
}

// Param is one declared tool parameter.
type Param struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ToolDescriptor describes one tool as exposed by its owning server.
type ToolDescriptor struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Params      []Param `json:"params,omitempty" yaml:"params,omitempty"`
	ServerID    int64   `json:"server_id,omitempty" yaml:"server_id,omitempty"`
}

// RequiredParams returns the names of required parameters in declaration order.
func (d ToolDescriptor) RequiredParams() []string {
	names := make([]string, 0, len(d.Params))
	for _, param := range d.Params {
		if param.Required {
			names = append(names, param.Name)
		}
	}
	return names
}

func cloneDescriptors(in []ToolDescriptor) []ToolDescriptor {
	if in == nil {
		return nil
	}
	out := make([]ToolDescriptor, len(in))
	for i, desc := range in {
		out[i] = desc
		out[i].Params = slices.Clone(desc.Params)
	}
	return out
}

func cloneCapabilities(in []map[string]any) []map[string]any {
	if in == nil {
		return nil
	}
	out := make([]map[string]any, len(in))
	for i, capability := range in {
		copied := make(map[string]any, len(capability))
		for key, value := range capability {
			copied[key] = value
		}
		out[i] = copied
	}
	return out
}

// CloneServer returns a deep copy of a server configuration.
func CloneServer(s ServerConfig) ServerConfig {
	out := s
	out.Tools = cloneDescriptors(s.Tools)
	out.Capabilities = cloneCapabilities(s.Capabilities)
	return out
}

// JobStatus is the lifecycle state reported for an asynchronous job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobTimeout    JobStatus = "timeout"
	// JobAccepted is a receipt, never a result.
	JobAccepted JobStatus = "accepted"
)

// ParseJobStatus maps upstream status strings onto JobStatus values. Unknown
// values are returned lower-cased so callers can log them.
func ParseJobStatus(value string) JobStatus {
	switch clean := strings.ToLower(strings.TrimSpace(value)); clean {
	case "completed", "complete", "success", "succeeded", "done":
		return JobCompleted
	case "failed", "failure", "error":
		return JobFailed
	case "pending", "queued":
		return JobPending
	case "processing", "running", "in_progress":
		return JobProcessing
	case "accepted":
		return JobAccepted
	case "timeout":
		return JobTimeout
	default:
		return JobStatus(clean)
	}
}

// Terminal reports whether the status ends polling.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job tracks one tool invocation for the duration of a single call.
type Job struct {
	ID          string
	RequestID   string
	ToolName    string
	Params      map[string]any
	SubmittedAt time.Time
	Status      JobStatus
	Result      any
	Error       string
}

// HealthStatus is an advisory health snapshot for one server.
type HealthStatus struct {
	ServerID  int64        `json:"server_id"`
	Name      string       `json:"name"`
	Protocol  ProtocolType `json:"protocol"`
	Healthy   bool         `json:"healthy"`
	CheckedAt time.Time    `json:"checked_at"`
	LatencyMS int64        `json:"latency_ms,omitempty"`
	Error     string       `json:"error,omitempty"`
}
