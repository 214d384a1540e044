// Package mcp converts Model Context Protocol tool definitions into the tool
// shapes each provider API expects. Callers describe tools once as
// mcp-go Tool values; providers convert them per request.
package mcp

import (
	"encoding/json"
	"maps"

	"github.com/anthropics/anthropic-sdk-go"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
)

// Tool is the caller-facing tool definition.
type Tool = mcptypes.Tool

// NewTool builds a tool with an object schema. props maps each parameter
// name to its JSON Schema.
func NewTool(name, description string, props map[string]any, required ...string) Tool {
	return Tool{
		Name:        name,
		Description: description,
		InputSchema: mcptypes.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}
}

// Schema returns a tool's input schema as a plain JSON Schema object.
func Schema(tool Tool) map[string]any {
	in := tool.InputSchema
	typ := in.Type
	if typ == "" {
		typ = "object"
	}
	schema := map[string]any{"type": typ}
	if in.Properties != nil {
		schema["properties"] = in.Properties
	} else {
		schema["properties"] = map[string]any{}
	}
	if len(in.Required) > 0 {
		schema["required"] = in.Required
	}
	if in.Defs != nil {
		schema["$defs"] = in.Defs
	}
	return schema
}

// ToOpenAI converts tools for OpenAI-compatible chat completions, OpenRouter
// included.
func ToOpenAI(tools []Tool) []openai.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolUnionParam, len(tools))
	for i, tool := range tools {
		fn := openai.FunctionDefinitionParam{
			Name:       tool.Name,
			Parameters: openai.FunctionParameters(Schema(tool)),
		}
		if tool.Description != "" {
			fn.Description = openai.String(tool.Description)
		}
		out[i] = openai.ChatCompletionFunctionTool(fn)
	}
	return out
}

// ToAnthropic converts tools for the Messages API.
func ToAnthropic(tools []Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		schema := anthropic.ToolInputSchemaParam{Properties: tool.InputSchema.Properties}
		if len(tool.InputSchema.Required) > 0 {
			schema.Required = tool.InputSchema.Required
		}
		if tool.InputSchema.Defs != nil {
			schema.ExtraFields = map[string]any{"$defs": tool.InputSchema.Defs}
		}
		out[i] = anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if tool.Description != "" {
			out[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}
	return out
}

// FunctionDeclaration is one entry of a Gemini tools[].functionDeclarations
// list.
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// geminiUnsupported lists JSON Schema keywords the Gemini API rejects.
var geminiUnsupported = []string{"$schema", "$defs", "$ref", "additionalProperties"}

// ToGemini converts tools to Gemini function declarations. Keywords outside
// Gemini's OpenAPI schema subset are removed at every depth. A tool without
// parameters gets none, since Gemini rejects an object with no properties.
func ToGemini(tools []Tool) []FunctionDeclaration {
	if len(tools) == 0 {
		return nil
	}
	out := make([]FunctionDeclaration, len(tools))
	for i, tool := range tools {
		out[i] = FunctionDeclaration{Name: tool.Name, Description: tool.Description}
		if len(tool.InputSchema.Properties) > 0 {
			out[i].Parameters = stripKeywords(Schema(tool))
		}
	}
	return out
}

func stripKeywords(v map[string]any) map[string]any {
	out := maps.Clone(v)
	for _, k := range geminiUnsupported {
		delete(out, k)
	}
	for k, val := range out {
		out[k] = stripValue(val)
	}
	return out
}

func stripValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return stripKeywords(t)
	case []any:
		items := make([]any, len(t))
		for i, item := range t {
			items[i] = stripValue(item)
		}
		return items
	default:
		return v
	}
}

// ToOllama converts tools for the Ollama chat API.
func ToOllama(tools []Tool) []api.Tool {
	out := make([]api.Tool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  ollamaParameters(tool.InputSchema),
			},
		})
	}
	return out
}

func ollamaParameters(in mcptypes.ToolInputSchema) api.ToolFunctionParameters {
	params := api.ToolFunctionParameters{
		Type:       in.Type,
		Required:   in.Required,
		Properties: make(map[string]api.ToolProperty, len(in.Properties)),
	}
	if in.Defs != nil {
		params.Defs = in.Defs
	}
	for name, prop := range in.Properties {
		params.Properties[name] = ollamaProperty(prop)
	}
	return params
}

// ollamaProperty maps one JSON Schema property onto api.ToolProperty.
// Values that are not objects are round-tripped through JSON first.
func ollamaProperty(v any) api.ToolProperty {
	prop := api.ToolProperty{}
	m, ok := v.(map[string]any)
	if !ok {
		data, err := json.Marshal(v)
		if err != nil || json.Unmarshal(data, &m) != nil {
			return prop
		}
	}

	switch t := m["type"].(type) {
	case string:
		prop.Type = api.PropertyType{t}
	case []string:
		prop.Type = api.PropertyType(t)
	case []any:
		for _, s := range t {
			if s, ok := s.(string); ok {
				prop.Type = append(prop.Type, s)
			}
		}
	}
	if desc, ok := m["description"].(string); ok {
		prop.Description = desc
	}
	if enum, ok := m["enum"].([]any); ok {
		prop.Enum = enum
	}
	if items, ok := m["items"]; ok {
		prop.Items = items
	}
	if anyOf, ok := m["anyOf"].([]any); ok {
		for _, alt := range anyOf {
			prop.AnyOf = append(prop.AnyOf, ollamaProperty(alt))
		}
	}
	return prop
}
