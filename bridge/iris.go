package bridge

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/petal-labs/iris/tools"
)

// IrisTool exposes a callable to iris-based agents.
type IrisTool struct {
	callable Callable
}

// NewIrisTool wraps a callable.
func NewIrisTool(callable Callable) *IrisTool {
	return &IrisTool{callable: callable}
}

// IrisTools wraps every current callable.
func (b *Bridge) IrisTools() []tools.Tool {
	callables := b.Callables()
	out := make([]tools.Tool, 0, len(callables))
	for _, callable := range callables {
		out = append(out, NewIrisTool(callable))
	}
	return out
}

func (t *IrisTool) Name() string { return t.callable.Name }

func (t *IrisTool) Description() string { return t.callable.Description }

func (t *IrisTool) Schema() tools.ToolSchema {
	encoded, err := json.Marshal(t.callable.JSONSchema())
	if err != nil {
		encoded = json.RawMessage(`{"type":"object"}`)
	}
	return tools.ToolSchema{JSONSchema: encoded}
}

// Call decodes the model's arguments and runs the tool. The result is always
// a string and the error is always nil, so the model sees failures as text.
func (t *IrisTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	params := map[string]any{}
	if trimmed := bytes.TrimSpace(args); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		decoder := json.NewDecoder(bytes.NewReader(trimmed))
		decoder.UseNumber()
		if err := decoder.Decode(&params); err != nil {
			return ErrorPrefix + "invalid arguments for tool " + t.callable.ToolName + ": " + err.Error(), nil
		}
	}
	return t.callable.Call(ctx, params), nil
}

var _ tools.Tool = (*IrisTool)(nil)
