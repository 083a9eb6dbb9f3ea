package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tool"
)

// Config configures a Dispatcher.
type Config struct {
	Store tool.ServerStore
	// Handlers defaults to tool.DefaultHandlerSet.
	Handlers    *tool.HandlerSet
	Logger      *slog.Logger
	Observer    tool.Observer
	HealthCache tool.HealthCache
	Credentials tool.CredentialResolver
	Now         func() time.Time
	// NewRequestID defaults to random UUIDs.
	NewRequestID func() string
}

// Dispatcher routes tool calls to the servers that own them.
type Dispatcher struct {
	store        tool.ServerStore
	handlers     *tool.HandlerSet
	logger       *slog.Logger
	observer     tool.Observer
	health       tool.HealthCache
	credentials  tool.CredentialResolver
	now          func() time.Time
	newRequestID func() string

	registry atomic.Pointer[Registry]
}

// New creates a dispatcher with an empty registry.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Store == nil {
		return nil, errors.New("dispatch: server store is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = tool.NoopObserver{}
	}
	if cfg.HealthCache == nil {
		cfg.HealthCache = tool.NewMemoryHealthCache()
	}
	if cfg.Credentials == nil {
		cfg.Credentials = tool.ResolveCredential
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewRequestID == nil {
		cfg.NewRequestID = uuid.NewString
	}
	if cfg.Handlers == nil {
		cfg.Handlers = tool.DefaultHandlerSet(tool.HandlerOptions{
			Credentials: cfg.Credentials,
			Observer:    cfg.Observer,
			Logger:      cfg.Logger,
		})
	}

	d := &Dispatcher{
		store:        cfg.Store,
		handlers:     cfg.Handlers,
		logger:       cfg.Logger,
		observer:     cfg.Observer,
		health:       cfg.HealthCache,
		credentials:  cfg.Credentials,
		now:          cfg.Now,
		newRequestID: cfg.NewRequestID,
	}
	d.registry.Store(emptyRegistry())
	return d, nil
}

// Registry returns the current snapshot.
func (d *Dispatcher) Registry() *Registry {
	return d.registry.Load()
}

// Lookup returns the entry registered under name in the current snapshot.
func (d *Dispatcher) Lookup(name string) (Entry, bool) {
	return d.registry.Load().Lookup(name)
}

// Close releases handler resources.
func (d *Dispatcher) Close(ctx context.Context) error {
	return d.handlers.Close(ctx)
}

// SkippedServer describes a server left out of the registry.
type SkippedServer struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// InitReport summarizes one InitializeTools run.
type InitReport struct {
	Scope       string          `json:"scope"`
	Servers     int             `json:"servers"`
	Registered  int             `json:"registered"`
	Skipped     []SkippedServer `json:"skipped,omitempty"`
	Fallbacks   []string        `json:"fallbacks,omitempty"`
	// Unavailable lists servers that stayed in scope but offered no tools.
	Unavailable []string     `json:"unavailable,omitempty"`
	Resolutions []Resolution `json:"resolutions,omitempty"`
	// StoreError is set when the server list could not be read; the
	// previous registry stays in place.
	StoreError error         `json:"-"`
	Duration   time.Duration `json:"duration"`
}

// InitializeTools rebuilds the registry from the active servers in scope.
// A broken server is skipped and logged without affecting the others. The
// returned error is non-nil only when ctx ends before the new snapshot is
// published.
func (d *Dispatcher) InitializeTools(ctx context.Context, scope string) (InitReport, error) {
	start := d.now()
	report := InitReport{Scope: scope}
	defer func() { report.Duration = d.now().Sub(start) }()

	servers, err := d.store.GetActiveServers(ctx, scope)
	if err != nil {
		d.logger.Error("load active servers failed; keeping previous registry",
			"scope", scope,
			"error", err,
		)
		report.StoreError = err
		report.Duration = d.now().Sub(start)
		return report, ctx.Err()
	}
	report.Servers = len(servers)

	builder := newRegistryBuilder()
	for _, stored := range servers {
		d.registerServer(ctx, builder, stored.Normalized(), &report)
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	next := builder.build(d.now())
	d.registry.Store(next)
	report.Registered = next.Len()

	d.logger.Info("tool registry initialized",
		"scope", scope,
		"servers", report.Servers,
		"tools", report.Registered,
		"skipped", len(report.Skipped),
		"duration_ms", d.now().Sub(start).Milliseconds(),
	)
	return report, nil
}

func (d *Dispatcher) registerServer(ctx context.Context, builder *registryBuilder, server tool.ServerConfig, report *InitReport) {
	logger := d.logger.With(
		"server", server.DisplayName(),
		"server_id", server.ID,
		"protocol", string(server.Protocol),
	)
	skip := func(err error) {
		code := tool.ErrorCodeOrDefault(err, tool.ErrorCodeConfiguration)
		logger.Warn("skipping server", "code", code, "error", err)
		report.Skipped = append(report.Skipped, SkippedServer{
			ID:     server.ID,
			Name:   server.DisplayName(),
			Code:   code,
			Reason: err.Error(),
		})
	}

	handler, err := d.handlers.Resolve(server.Protocol)
	if err != nil {
		skip(err)
		return
	}
	if strings.TrimSpace(server.CredentialRef) != "" {
		if _, err := d.credentials(server.CredentialRef); err != nil {
			skip(tool.NewError(tool.ErrorCodeConfiguration, "missing credential", false, err))
			return
		}
	}
	selector, err := tool.CompileResultSelector(server.ResultSelector)
	if err != nil {
		skip(err)
		return
	}

	discoverStart := d.now()
	discovery := handler.DiscoverTools(ctx, server)
	tools := discovery.Tools
	fallback := false
	if len(tools) == 0 {
		tools = server.Tools
		fallback = true
		if len(tools) > 0 {
			logger.Warn("discovery returned no tools; using cached tool list",
				"cached", len(tools),
				"discovery_error", discovery.Error,
			)
			report.Fallbacks = append(report.Fallbacks, server.DisplayName())
		} else {
			report.Unavailable = append(report.Unavailable, server.DisplayName())
		}
	}
	d.observer.ObserveDiscovery(tool.DiscoveryObservation{
		Server:     server.DisplayName(),
		Protocol:   server.Protocol,
		Tools:      len(tools),
		Fallback:   fallback,
		DurationMS: d.now().Sub(discoverStart).Milliseconds(),
		Success:    !fallback,
		ErrorCode:  discoveryErrorCode(fallback),
	})

	for _, desc := range tools {
		desc.ServerID = server.ID
		name := builder.add(server, desc, handler, selector)
		if name != desc.Name {
			logger.Info("resolved tool name conflict", "tool", desc.Name, "registered_as", name)
			report.Resolutions = append(report.Resolutions, Resolution{
				Original: desc.Name,
				Resolved: name,
				Server:   server.DisplayName(),
				ServerID: server.ID,
			})
		}
	}

	d.recordDiscovery(ctx, logger, server, discovery, fallback, len(tools))
}

func discoveryErrorCode(fallback bool) string {
	if fallback {
		return tool.ErrorCodeDiscoveryFailure
	}
	return ""
}

// recordDiscovery writes discovery results back to the store. Failures are
// logged only.
func (d *Dispatcher) recordDiscovery(ctx context.Context, logger *slog.Logger, server tool.ServerConfig, discovery tool.Discovery, fallback bool, registered int) {
	var (
		status    string
		connected *time.Time
	)
	switch {
	case !fallback:
		now := d.now().UTC()
		connected = &now
		status = tool.ConnectionConnected
		if err := d.store.UpdateServerTools(ctx, server.ID, discovery.Tools, discovery.Capabilities); err != nil {
			logger.Warn("update server tools failed", "error", err)
		}
	case registered > 0:
		status = tool.ConnectionDegraded
	default:
		status = tool.ConnectionError
	}
	if err := d.store.UpdateServerStatus(ctx, server.ID, status, connected); err != nil {
		logger.Warn("update server status failed", "status", status, "error", err)
	}
}

// ManifestEntry is one tool as presented to the hosting agent.
type ManifestEntry struct {
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Parameters   []tool.Param      `json:"parameters"`
	Server       string            `json:"server"`
	ServerID     int64             `json:"server_id"`
	Protocol     tool.ProtocolType `json:"protocol"`
	OriginalName string            `json:"original_name"`
	TimeoutMS    int64             `json:"timeout_ms"`
}

// InputSchema renders the parameters as a JSON-schema object.
func (m ManifestEntry) InputSchema() map[string]any {
	return tool.SchemaFromParams(m.Parameters)
}

// GetAvailableTools returns the public manifest in registration order.
func (d *Dispatcher) GetAvailableTools() []ManifestEntry {
	entries := d.registry.Load().Entries()
	out := make([]ManifestEntry, 0, len(entries))
	for _, entry := range entries {
		params := append([]tool.Param(nil), entry.Tool.Params...)
		if params == nil {
			params = []tool.Param{}
		}
		out = append(out, ManifestEntry{
			Name:         entry.Name,
			Description:  entry.Tool.Description,
			Parameters:   params,
			Server:       entry.Server.DisplayName(),
			ServerID:     entry.Server.ID,
			Protocol:     entry.Server.Protocol,
			OriginalName: entry.Tool.Name,
			TimeoutMS:    entry.Server.Timeout.Milliseconds(),
		})
	}
	return out
}

// Result is the outcome of a successful ExecuteTool call.
type Result struct {
	Data     any           `json:"data"`
	JobID    string        `json:"job_id,omitempty"`
	Polls    int           `json:"polls"`
	Duration time.Duration `json:"duration"`
}

// ExecuteTool calls the named tool and waits for its real result. A timeout
// of zero or less uses the server's configured timeout. The deadline covers
// submission and polling.
func (d *Dispatcher) ExecuteTool(ctx context.Context, name string, params map[string]any, timeout time.Duration) (result Result, err error) {
	entry, ok := d.Lookup(name)
	if !ok {
		return Result{}, tool.NewError(tool.ErrorCodeNotFound, fmt.Sprintf("tool %q is not registered", name), false, nil)
	}
	server := entry.Server
	if timeout <= 0 {
		timeout = server.Timeout
	}

	start := d.now()
	job := &tool.Job{
		RequestID:   d.newRequestID(),
		ToolName:    entry.Tool.Name,
		Params:      maps.Clone(params),
		SubmittedAt: start,
		Status:      tool.JobPending,
	}
	if job.Params == nil {
		job.Params = map[string]any{}
	}
	logger := d.logger.With(
		"tool", name,
		"server", server.DisplayName(),
		"server_id", server.ID,
		"protocol", string(server.Protocol),
		"request_id", job.RequestID,
	)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		elapsed := d.now().Sub(start)
		result.Duration = elapsed
		d.observer.ObserveExecute(tool.ExecuteObservation{
			Server:     server.DisplayName(),
			Tool:       name,
			Protocol:   server.Protocol,
			Polls:      result.Polls,
			DurationMS: elapsed.Milliseconds(),
			Success:    err == nil,
			ErrorCode:  tool.ErrorCode(err),
		})
		if err != nil {
			logger.Warn("tool call failed",
				"job_id", job.ID,
				"code", tool.ErrorCode(err),
				"duration_ms", elapsed.Milliseconds(),
				"error", err,
			)
			return
		}
		logger.Info("tool call completed",
			"job_id", job.ID,
			"polls", result.Polls,
			"duration_ms", elapsed.Milliseconds(),
		)
	}()

	logger.Debug("submitting tool call", "timeout", timeout)
	resp, err := entry.Handler.ExecuteTool(callCtx, server, tool.ExecuteRequest{
		ToolName:  entry.Tool.Name,
		Params:    job.Params,
		RequestID: job.RequestID,
	})
	if err != nil {
		return Result{}, d.callError(ctx, callCtx, job, timeout, err)
	}
	job.ID = resp.JobID
	job.Status = resp.Status

	switch {
	case resp.Status == tool.JobCompleted:
		data, err := applySelector(callCtx, entry.Selector, resp.Data)
		if err != nil {
			return Result{}, err
		}
		return Result{Data: data, JobID: resp.JobID}, nil
	case resp.Status == tool.JobFailed:
		return Result{}, failedJobError(name, resp)
	case resp.JobID == "":
		return Result{}, tool.NewError(tool.ErrorCodeExecutionFailure,
			fmt.Sprintf("tool %q acknowledged without a job handle (status %q)", name, resp.Status), false, nil)
	}

	logger.Debug("job accepted; polling for result", "job_id", job.ID, "poll_interval", server.PollInterval)
	data, polls, err := d.awaitResult(ctx, callCtx, entry, job, timeout, logger)
	result.Polls = polls
	if err != nil {
		return result, err
	}
	data, err = applySelector(callCtx, entry.Selector, data)
	if err != nil {
		return result, err
	}
	return Result{Data: data, JobID: job.ID, Polls: polls}, nil
}

func applySelector(ctx context.Context, selector *tool.ResultSelector, data any) (any, error) {
	if selector == nil {
		return data, nil
	}
	return selector.Apply(ctx, data)
}

func failedJobError(name string, resp tool.Response) error {
	message := strings.TrimSpace(resp.Error)
	if message == "" {
		message = "unknown error"
	}
	return tool.WithDetails(
		tool.NewError(tool.ErrorCodeExecutionFailure, fmt.Sprintf("tool %q failed: %s", name, message), false, nil),
		map[string]any{"job_id": resp.JobID, "upstream_error": message},
	)
}

// callError classifies a handler error. Deadline expiry becomes TIMEOUT,
// caller cancellation CANCELLED; transport and decode failures surface as
// EXECUTION_FAILURE wrapping the cause.
func (d *Dispatcher) callError(ctx, callCtx context.Context, job *tool.Job, timeout time.Duration, err error) error {
	if deadlineErr := deadlineError(ctx, callCtx, job, timeout, 0); deadlineErr != nil {
		return deadlineErr
	}
	switch tool.ErrorCode(err) {
	case tool.ErrorCodeExecutionFailure, tool.ErrorCodeUnsupportedProtocol, tool.ErrorCodeConfiguration:
		return err
	}
	return tool.WithDetails(
		tool.NewError(tool.ErrorCodeExecutionFailure, fmt.Sprintf("submit tool %q: %v", job.ToolName, err), false, err),
		map[string]any{"cause_code": tool.ErrorCodeOrDefault(err, tool.ErrorCodeTransportFailure)},
	)
}

// deadlineError returns nil while callCtx is still live.
func deadlineError(ctx, callCtx context.Context, job *tool.Job, timeout time.Duration, polls int) error {
	if callCtx.Err() == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return tool.NewError(tool.ErrorCodeCancelled, fmt.Sprintf("tool %q call cancelled", job.ToolName), false, ctx.Err())
	}
	job.Status = tool.JobTimeout
	return tool.WithDetails(
		tool.NewError(tool.ErrorCodeTimeout,
			fmt.Sprintf("tool %q did not complete within %s", job.ToolName, timeout), true, context.DeadlineExceeded),
		map[string]any{"job_id": job.ID, "polls": polls, "timeout_ms": timeout.Milliseconds()},
	)
}
