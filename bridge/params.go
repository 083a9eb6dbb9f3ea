package bridge

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tool"
)

// Kind is the host-side type of a callable parameter.
type Kind string

const (
	KindText     Kind = "text"
	KindInteger  Kind = "integer"
	KindFloat    Kind = "float"
	KindBoolean  Kind = "boolean"
	KindSequence Kind = "sequence"
	KindMap      Kind = "map"
	KindOpaque   Kind = "opaque"
)

// KindFor maps a declared schema type to a Kind. Unrecognized types are opaque.
func KindFor(schemaType string) Kind {
	switch tool.NormalizeParamType(schemaType) {
	case tool.TypeString:
		return KindText
	case tool.TypeInteger:
		return KindInteger
	case tool.TypeNumber:
		return KindFloat
	case tool.TypeBoolean:
		return KindBoolean
	case tool.TypeArray:
		return KindSequence
	case tool.TypeObject:
		return KindMap
	default:
		return KindOpaque
	}
}

// SchemaType returns the JSON-schema type for k, or "" for opaque values.
func (k Kind) SchemaType() string {
	switch k {
	case KindText:
		return tool.TypeString
	case KindInteger:
		return tool.TypeInteger
	case KindFloat:
		return tool.TypeNumber
	case KindBoolean:
		return tool.TypeBoolean
	case KindSequence:
		return tool.TypeArray
	case KindMap:
		return tool.TypeObject
	default:
		return ""
	}
}

func coerce(kind Kind, value any) (any, error) {
	switch kind {
	case KindText:
		return toText(value)
	case KindInteger:
		return toInteger(value)
	case KindFloat:
		return toFloat(value)
	case KindBoolean:
		return toBoolean(value)
	case KindSequence:
		return toSequence(value)
	case KindMap:
		return toMap(value)
	default:
		return value, nil
	}
}

func toText(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool, int, int32, int64, float32, float64:
		return fmt.Sprint(v), nil
	}
	return nil, fmt.Errorf("expected text, got %T", value)
}

func toInteger(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("expected integer, got %v", v)
		}
		return int64(v), nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		return nil, fmt.Errorf("expected integer, got %s", v)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected integer, got %q", v)
		}
		return n, nil
	}
	return nil, fmt.Errorf("expected integer, got %T", value)
}

func toFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("expected number, got %s", v)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("expected number, got %q", v)
		}
		return f, nil
	}
	return nil, fmt.Errorf("expected number, got %T", value)
}

func toBoolean(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("expected boolean, got %q", v)
		}
		return b, nil
	}
	return nil, fmt.Errorf("expected boolean, got %T", value)
}

func toSequence(value any) (any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case string:
		var out []any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("expected sequence, got %q", v)
		}
		return out, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected sequence, got %T", value)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func toMap(value any) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		return v, nil
	case string:
		var out map[string]any
		if err := json.Unmarshal([]byte(v), &out); err != nil || out == nil {
			return nil, fmt.Errorf("expected map, got %q", v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected map, got %T", value)
}
