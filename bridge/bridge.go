// Package bridge turns registry tools into callables a conversational agent
// can invoke. Every call returns a string; failures are reported as text
// starting with "Error:" and never propagate to the agent.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/samerGMTM22/RealTime-Agent-LiveKit/dispatch"
	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tool"
)

// ErrorPrefix starts every failure string returned by Callable.Call.
const ErrorPrefix = "Error: "

// ToolExecutor is the dispatcher surface the bridge needs.
type ToolExecutor interface {
	GetAvailableTools() []dispatch.ManifestEntry
	ExecuteTool(ctx context.Context, name string, params map[string]any, timeout time.Duration) (dispatch.Result, error)
}

// Bridge builds callables from an executor's current manifest.
type Bridge struct {
	executor ToolExecutor
	logger   *slog.Logger
}

// New creates a bridge. A nil logger uses slog.Default().
func New(executor ToolExecutor, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{executor: executor, logger: logger}
}

// Parameter is one typed callable argument.
type Parameter struct {
	Name        string `json:"name"`
	Kind        Kind   `json:"kind"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// Callable is one registry tool as seen by the agent.
type Callable struct {
	// Name is a host identifier, unique within one Callables result.
	Name string
	// ToolName is the registry display name passed to the executor.
	ToolName    string
	Description string
	Params      []Parameter
	Timeout     time.Duration

	executor ToolExecutor
	logger   *slog.Logger
}

// Callables returns one callable per registered tool, in manifest order.
func (b *Bridge) Callables() []Callable {
	manifest := b.executor.GetAvailableTools()
	names := identifierSet{}
	out := make([]Callable, 0, len(manifest))
	for _, entry := range manifest {
		description := strings.TrimSpace(entry.Description)
		if description == "" {
			description = fmt.Sprintf("Execute %s on %s", entry.OriginalName, entry.Server)
		}
		params := make([]Parameter, 0, len(entry.Parameters))
		for _, param := range entry.Parameters {
			params = append(params, Parameter{
				Name:        param.Name,
				Kind:        KindFor(param.Type),
				Required:    param.Required,
				Description: param.Description,
			})
		}
		out = append(out, Callable{
			Name:        names.claim(entry.Name),
			ToolName:    entry.Name,
			Description: description,
			Params:      params,
			Timeout:     time.Duration(entry.TimeoutMS) * time.Millisecond,
			executor:    b.executor,
			logger:      b.logger,
		})
	}
	return out
}

// Call runs the tool and always returns a string. Optional arguments that are
// absent or nil are omitted from the request.
func (c Callable) Call(ctx context.Context, args map[string]any) (out string) {
	defer func() {
		if recovered := recover(); recovered != nil {
			c.logger.Error("tool callable panicked", "tool", c.ToolName, "panic", recovered)
			out = fmt.Sprintf("%stool %s crashed: %v", ErrorPrefix, c.ToolName, recovered)
		}
	}()

	params, err := c.prepare(args)
	if err != nil {
		c.logger.Warn("rejected tool arguments", "tool", c.ToolName, "error", err)
		return ErrorPrefix + err.Error()
	}
	result, err := c.executor.ExecuteTool(ctx, c.ToolName, params, c.Timeout)
	if err != nil {
		return failureText(c.ToolName, err)
	}
	return resultText(result.Data)
}

func (c Callable) prepare(args map[string]any) (map[string]any, error) {
	params := maps.Clone(args)
	if params == nil {
		params = map[string]any{}
	}
	for _, param := range c.Params {
		value, ok := params[param.Name]
		if !ok || value == nil {
			if param.Required {
				return nil, fmt.Errorf("missing required parameter %q for tool %s", param.Name, c.ToolName)
			}
			delete(params, param.Name)
			continue
		}
		coerced, err := coerce(param.Kind, value)
		if err != nil {
			return nil, fmt.Errorf("parameter %q for tool %s: %w", param.Name, c.ToolName, err)
		}
		params[param.Name] = coerced
	}
	return params, nil
}

// JSONSchema describes the callable arguments as a JSON-schema object.
func (c Callable) JSONSchema() map[string]any {
	params := make([]tool.Param, 0, len(c.Params))
	for _, param := range c.Params {
		params = append(params, tool.Param{
			Name:        param.Name,
			Type:        param.Kind.SchemaType(),
			Required:    param.Required,
			Description: param.Description,
		})
	}
	return tool.SchemaFromParams(params)
}

func failureText(name string, err error) string {
	toolErr, ok := tool.AsToolError(err)
	if !ok {
		return fmt.Sprintf("%stool %s failed: %v", ErrorPrefix, name, err)
	}
	switch toolErr.Code {
	case tool.ErrorCodeNotFound:
		return fmt.Sprintf("%stool %s is not available", ErrorPrefix, name)
	case tool.ErrorCodeTimeout:
		return fmt.Sprintf("%stool %s did not finish in time", ErrorPrefix, name)
	case tool.ErrorCodeCancelled:
		return fmt.Sprintf("%stool %s was cancelled", ErrorPrefix, name)
	case tool.ErrorCodeExecutionFailure:
		return fmt.Sprintf("%stool %s failed: %s", ErrorPrefix, name, toolErr.Message)
	default:
		return fmt.Sprintf("%stool %s failed (%s): %s", ErrorPrefix, name, toolErr.Code, toolErr.Message)
	}
}

func resultText(data any) string {
	switch value := data.(type) {
	case nil:
		return "Tool completed without output"
	case string:
		return value
	case json.RawMessage:
		return string(value)
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprint(data)
	}
	return string(encoded)
}
