package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// decodeResponse decodes a submission or poll body. A JSON object without a
// status is the result itself unless bareHandles is set and it carries a
// job_id, in which case it is a receipt. Non-JSON bodies are text results.
func decodeResponse(raw []byte, bareHandles bool) (Response, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Response{Status: JobCompleted}, nil
	}
	if !json.Valid(trimmed) {
		return Response{Status: JobCompleted, Data: string(trimmed)}, nil
	}

	var value any
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return Response{}, NewError(ErrorCodeDecodeFailure, "decode response body", false, err)
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return Response{Status: JobCompleted, Data: value}, nil
	}

	statusRaw, hasStatus := obj["status"]
	jobID := stringField(obj, "job_id", "jobId")
	if !hasStatus {
		if bareHandles && jobID != "" {
			return Response{Status: JobProcessing, JobID: jobID}, nil
		}
		if data, ok := obj["data"]; ok {
			return Response{Status: JobCompleted, Data: data}, nil
		}
		return Response{Status: JobCompleted, Data: obj}, nil
	}

	statusText, ok := statusRaw.(string)
	if !ok {
		return Response{}, NewError(ErrorCodeDecodeFailure, "response status must be a string", false, nil)
	}

	resp := Response{
		Status: ParseJobStatus(statusText),
		JobID:  jobID,
		Data:   obj["data"],
	}
	if resp.Status == JobFailed {
		resp.Error = errorMessage(obj)
	}
	return resp, nil
}

// stringField returns the first present key as a string. Numeric ids are
// formatted without exponent.
func stringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		switch value := obj[key].(type) {
		case string:
			if clean := strings.TrimSpace(value); clean != "" {
				return clean
			}
		case float64:
			return strconv.FormatFloat(value, 'f', -1, 64)
		}
	}
	return ""
}

func errorMessage(obj map[string]any) string {
	switch value := obj["error"].(type) {
	case string:
		if strings.TrimSpace(value) != "" {
			return value
		}
	case map[string]any:
		if msg, ok := value["message"].(string); ok && strings.TrimSpace(msg) != "" {
			return msg
		}
		if encoded, err := json.Marshal(value); err == nil {
			return string(encoded)
		}
	}
	if msg, ok := obj["message"].(string); ok && strings.TrimSpace(msg) != "" {
		return msg
	}
	return "unknown error"
}

type discoveryDocument struct {
	Tools        []discoveryTool  `json:"tools"`
	Capabilities []map[string]any `json:"capabilities,omitempty"`
}

type discoveryTool struct {
	Name        string          `json:"name"`
	ToolName    string          `json:"tool_name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
	MCPSchema   json.RawMessage `json:"inputSchema"`
	Parameters  json.RawMessage `json:"parameters"`
	Params      []Param         `json:"params"`
}

// decodeDiscovery parses a discovery document. Entries without a name are
// dropped; parameter order follows the schema's property order.
func decodeDiscovery(raw []byte, serverID int64) (Discovery, error) {
	var doc discoveryDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Discovery{}, NewError(ErrorCodeDiscoveryFailure, "decode discovery document", false, err)
	}

	out := Discovery{Capabilities: doc.Capabilities}
	for _, entry := range doc.Tools {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			name = strings.TrimSpace(entry.ToolName)
		}
		if name == "" {
			continue
		}

		params := entry.Params
		if len(params) == 0 {
			schema := firstRaw(entry.InputSchema, entry.MCPSchema, entry.Parameters)
			parsed, err := ParamsFromSchema(schema)
			if err != nil {
				return Discovery{}, NewError(ErrorCodeDiscoveryFailure, fmt.Sprintf("decode schema for tool %q", name), false, err)
			}
			params = parsed
		} else {
			for i := range params {
				params[i].Type = NormalizeParamType(params[i].Type)
			}
		}

		out.Tools = append(out.Tools, ToolDescriptor{
			Name:        name,
			Description: strings.TrimSpace(entry.Description),
			Params:      params,
			ServerID:    serverID,
		})
	}
	return out, nil
}

func firstRaw(candidates ...json.RawMessage) json.RawMessage {
	for _, candidate := range candidates {
		trimmed := bytes.TrimSpace(candidate)
		if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
			return trimmed
		}
	}
	return nil
}

type schemaProperty struct {
	Type        json.RawMessage `json:"type"`
	Description string          `json:"description"`
}

type objectSchema struct {
	Properties orderedProperties `json:"properties"`
	Required   []string          `json:"required"`
}

type namedProperty struct {
	name string
	prop schemaProperty
}

// orderedProperties keeps JSON object keys in document order.
type orderedProperties []namedProperty

func (p *orderedProperties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("properties must be an object")
	}
	var out orderedProperties
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var prop schemaProperty
		if err := dec.Decode(&prop); err != nil {
			return fmt.Errorf("property %q: %w", key, err)
		}
		out = append(out, namedProperty{name: key, prop: prop})
	}
	*p = out
	return nil
}

// ParamsFromSchema converts a JSON-schema object into ordered parameters.
func ParamsFromSchema(schema []byte) ([]Param, error) {
	if len(bytes.TrimSpace(schema)) == 0 {
		return nil, nil
	}
	var obj objectSchema
	if err := json.Unmarshal(schema, &obj); err != nil {
		return nil, err
	}
	required := make(map[string]struct{}, len(obj.Required))
	for _, name := range obj.Required {
		required[name] = struct{}{}
	}

	params := make([]Param, 0, len(obj.Properties))
	for _, entry := range obj.Properties {
		_, isRequired := required[entry.name]
		params = append(params, Param{
			Name:        entry.name,
			Type:        schemaType(entry.prop.Type),
			Required:    isRequired,
			Description: strings.TrimSpace(entry.prop.Description),
		})
	}
	return params, nil
}

// schemaType accepts both "type": "string" and "type": ["string", "null"].
func schemaType(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return NormalizeParamType(single)
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		for _, candidate := range many {
			if candidate != "null" {
				return NormalizeParamType(candidate)
			}
		}
	}
	return ""
}

// SchemaFromParams renders parameters back into a JSON-schema object.
func SchemaFromParams(params []Param) map[string]any {
	properties := make(map[string]any, len(params))
	required := make([]string, 0, len(params))
	for _, param := range params {
		prop := map[string]any{}
		if IsKnownParamType(param.Type) {
			prop["type"] = param.Type
		}
		if param.Description != "" {
			prop["description"] = param.Description
		}
		properties[param.Name] = prop
		if param.Required {
			required = append(required, param.Name)
		}
	}
	schema := map[string]any{
		"type":       TypeObject,
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
