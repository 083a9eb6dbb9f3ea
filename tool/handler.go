package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// ErrUnsupportedProtocol is wrapped by errors from reserved protocol handlers.
var ErrUnsupportedProtocol = errors.New("tool: unsupported protocol")

// ExecuteRequest is the protocol-agnostic tool invocation payload.
type ExecuteRequest struct {
	ToolName  string         `json:"tool_name"`
	Params    map[string]any `json:"params"`
	RequestID string         `json:"request_id,omitempty"`
}

// Response is what a server answered to a submission or a result poll. A
// response with a JobID is a receipt; only Status=completed carries a result.
type Response struct {
	Status JobStatus `json:"status"`
	Data   any       `json:"data,omitempty"`
	JobID  string    `json:"job_id,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Discovery is the outcome of asking a server for its tools. Error is
// diagnostic only; callers get an empty tool list on failure.
type Discovery struct {
	Tools        []ToolDescriptor
	Capabilities []map[string]any
	Error        string
}

// Handler speaks one server wire protocol.
type Handler interface {
	Protocol() ProtocolType
	ExecuteTool(ctx context.Context, server ServerConfig, req ExecuteRequest) (Response, error)
	DiscoverTools(ctx context.Context, server ServerConfig) Discovery
	GetResult(ctx context.Context, server ServerConfig, jobID string) (Response, error)
	HealthCheck(ctx context.Context, server ServerConfig) HealthStatus
	Close(ctx context.Context) error
}

// CredentialResolver turns a credential reference into a bearer token.
type CredentialResolver func(ref string) (string, error)

// ResolveCredential is the default resolver: "env:NAME" reads the environment,
// "enc:v1:..." is decrypted, anything else is taken literally.
func ResolveCredential(ref string) (string, error) {
	clean := strings.TrimSpace(ref)
	if clean == "" {
		return "", nil
	}
	if IsEncryptedCredential(clean) {
		return decryptCredential(clean)
	}
	name, ok := strings.CutPrefix(clean, "env:")
	if !ok {
		return clean, nil
	}
	value := strings.TrimSpace(os.Getenv(strings.TrimSpace(name)))
	if value == "" {
		return "", fmt.Errorf("tool: credential environment variable %q is empty", name)
	}
	return value, nil
}

// HandlerOptions configures the built-in handlers.
type HandlerOptions struct {
	Credentials    CredentialResolver
	HealthTimeout  time.Duration
	DiscoveryRetry RetryPolicy
	// Client overrides the pooled HTTP client for calls and probes.
	Client   *http.Client
	Observer Observer
	Logger   *slog.Logger
}

func (o HandlerOptions) normalized() HandlerOptions {
	out := o
	if out.Credentials == nil {
		out.Credentials = ResolveCredential
	}
	if out.HealthTimeout <= 0 {
		out.HealthTimeout = DefaultHealthTimeout
	}
	if out.DiscoveryRetry.MaxAttempts <= 0 {
		out.DiscoveryRetry = DefaultDiscoveryRetry
	}
	if out.Observer == nil {
		out.Observer = NoopObserver{}
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
