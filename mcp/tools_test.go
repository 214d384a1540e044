package mcp

import (
	"encoding/json"
	"testing"

	"github.com/tidwall/gjson"
)

func weatherTool() Tool {
	return NewTool("get_weather", "Get current weather", map[string]any{
		"city": map[string]any{
			"type":        "string",
			"description": "City name",
		},
		"unit": map[string]any{
			"type": "string",
			"enum": []any{"celsius", "fahrenheit"},
		},
		"options": map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"days": map[string]any{"type": []any{"integer", "null"}},
			},
		},
	}, "city")
}

func TestToOllama(t *testing.T) {
	tools := ToOllama([]Tool{weatherTool(), NewTool("ping", "", nil)})
	if len(tools) != 2 {
		t.Fatalf("got %d tools, want 2", len(tools))
	}

	tool := tools[0]
	if tool.Type != "function" || tool.Function.Name != "get_weather" || tool.Function.Description != "Get current weather" {
		t.Errorf("unexpected tool %+v", tool)
	}
	params := tool.Function.Parameters
	if params.Type != "object" || len(params.Required) != 1 || len(params.Properties) != 3 {
		t.Errorf("unexpected parameters %+v", params)
	}
	if city := params.Properties["city"]; len(city.Type) != 1 || city.Type[0] != "string" || city.Description != "City name" {
		t.Errorf("city = %+v", city)
	}
	if unit := params.Properties["unit"]; len(unit.Enum) != 2 {
		t.Errorf("unit enum = %v", unit.Enum)
	}
	if len(tools[1].Function.Parameters.Properties) != 0 {
		t.Error("tool without properties should have none")
	}

	if empty := ToOllama(nil); len(empty) != 0 {
		t.Errorf("ToOllama(nil) = %v", empty)
	}
}

func TestOllamaPropertyTypes(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"string type", map[string]any{"type": "number"}, []string{"number"}},
		{"string slice", map[string]any{"type": []string{"string", "null"}}, []string{"string", "null"}},
		{"any slice", map[string]any{"type": []any{"integer", 7, "null"}}, []string{"integer", "null"}},
		{"struct value", struct {
			Type string `json:"type"`
		}{"boolean"}, []string{"boolean"}},
		{"unmarshalable", func() {}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ollamaProperty(tt.in)
			if len(got.Type) != len(tt.want) {
				t.Fatalf("Type = %v, want %v", got.Type, tt.want)
			}
			for i := range tt.want {
				if got.Type[i] != tt.want[i] {
					t.Errorf("Type = %v, want %v", got.Type, tt.want)
				}
			}
		})
	}

	anyOf := ollamaProperty(map[string]any{"anyOf": []any{
		map[string]any{"type": "string"},
		map[string]any{"type": "number"},
	}})
	if len(anyOf.AnyOf) != 2 || anyOf.AnyOf[1].Type[0] != "number" {
		t.Errorf("AnyOf = %+v", anyOf.AnyOf)
	}
}

func TestToOpenAI(t *testing.T) {
	if ToOpenAI(nil) != nil {
		t.Error("ToOpenAI(nil) should be nil")
	}
	tools := ToOpenAI([]Tool{weatherTool()})
	data, err := json.Marshal(tools)
	if err != nil {
		t.Fatal(err)
	}
	root := gjson.ParseBytes(data)
	if got := root.Get("0.type").String(); got != "function" {
		t.Errorf("type = %q", got)
	}
	if got := root.Get("0.function.name").String(); got != "get_weather" {
		t.Errorf("name = %q", got)
	}
	if got := root.Get("0.function.parameters.required.0").String(); got != "city" {
		t.Errorf("required = %q", got)
	}
	if !root.Get("0.function.parameters.properties.options.additionalProperties").Exists() {
		t.Error("OpenAI schema should be passed through unchanged")
	}
}

func TestToAnthropic(t *testing.T) {
	if ToAnthropic(nil) != nil {
		t.Error("ToAnthropic(nil) should be nil")
	}
	tools := ToAnthropic([]Tool{weatherTool()})
	data, err := json.Marshal(tools)
	if err != nil {
		t.Fatal(err)
	}
	root := gjson.ParseBytes(data)
	if got := root.Get("0.name").String(); got != "get_weather" {
		t.Errorf("name = %q", got)
	}
	if got := root.Get("0.description").String(); got != "Get current weather" {
		t.Errorf("description = %q", got)
	}
	if got := root.Get("0.input_schema.type").String(); got != "object" {
		t.Errorf("input_schema.type = %q", got)
	}
	if !root.Get("0.input_schema.properties.city").Exists() {
		t.Error("missing city property")
	}
}

func TestToGemini(t *testing.T) {
	weather := weatherTool()
	decls := ToGemini([]Tool{weather, NewTool("ping", "Check liveness", nil)})
	if len(decls) != 2 {
		t.Fatalf("got %d declarations", len(decls))
	}
	data, err := json.Marshal(decls)
	if err != nil {
		t.Fatal(err)
	}
	root := gjson.ParseBytes(data)
	if got := root.Get("0.parameters.properties.city.type").String(); got != "string" {
		t.Errorf("city type = %q", got)
	}
	if root.Get("0.parameters.properties.options.additionalProperties").Exists() {
		t.Error("additionalProperties should be stripped at every depth")
	}
	if root.Get("1.parameters").Exists() {
		t.Error("parameterless tool should omit parameters")
	}

	// The caller's schema is left untouched.
	opts := weather.InputSchema.Properties["options"].(map[string]any)
	if _, ok := opts["additionalProperties"]; !ok {
		t.Error("ToGemini mutated the input schema")
	}
}
