package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
)

// ResultSelector extracts the useful part of a completed payload with a jq
// expression, e.g. ".data.items[0].summary".
type ResultSelector struct {
	expression string
	code       *gojq.Code
}

// CompileResultSelector parses and compiles expression. An empty expression
// yields a nil selector, which passes payloads through unchanged.
func CompileResultSelector(expression string) (*ResultSelector, error) {
	clean := strings.TrimSpace(expression)
	if clean == "" {
		return nil, nil
	}
	query, err := gojq.Parse(clean)
	if err != nil {
		return nil, NewError(ErrorCodeConfiguration, fmt.Sprintf("invalid result selector %q", clean), false, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, NewError(ErrorCodeConfiguration, fmt.Sprintf("compile result selector %q", clean), false, err)
	}
	return &ResultSelector{expression: clean, code: code}, nil
}

// Expression returns the source expression.
func (s *ResultSelector) Expression() string {
	if s == nil {
		return ""
	}
	return s.expression
}

// Apply runs the selector. One output is returned as is, several as a slice,
// none as nil.
func (s *ResultSelector) Apply(ctx context.Context, payload any) (any, error) {
	if s == nil {
		return payload, nil
	}
	input, err := jqInput(payload)
	if err != nil {
		return nil, NewError(ErrorCodeDecodeFailure, "prepare payload for result selector", false, err)
	}

	iter := s.code.RunWithContext(ctx, input)
	var results []any
	for {
		value, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := value.(error); isErr {
			return nil, NewError(ErrorCodeExecutionFailure, fmt.Sprintf("result selector %q", s.expression), false, err)
		}
		results = append(results, value)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// jqInput converts payloads into the plain JSON values gojq expects.
func jqInput(payload any) (any, error) {
	switch payload.(type) {
	case nil, string, bool, float64, map[string]any, []any:
		return payload, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
