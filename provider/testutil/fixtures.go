package testutil

import (
	"polychat/model"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

func must(msg model.Message, err error) model.Message {
	if err != nil {
		panic(err)
	}
	return msg
}

// TestMessages returns a sample conversation for testing.
func TestMessages() []model.Message {
	return []model.Message{
		must(model.NewUserMessage("Hello, how are you?")),
		must(model.NewAssistantMessage("I'm doing well, thank you!")),
		must(model.NewUserMessage("Can you help me with a task?")),
	}
}

// ToolExchange returns a user question, the assistant's tool call and the
// tool's answer.
func ToolExchange() []model.Message {
	return []model.Message{
		must(model.NewUserMessage("What's the weather in Paris?")),
		must(model.NewAssistantMessage("", model.ToolCall{
			ID:        "call_1",
			Name:      "get_weather",
			Arguments: `{"location":"Paris"}`,
		})),
		must(model.NewToolMessage("call_1", "18°C, cloudy", false)),
	}
}

// SingleUserMessage returns a single user message for simple tests.
func SingleUserMessage(content string) []model.Message {
	return []model.Message{must(model.NewUserMessage(content))}
}

// SystemMessage returns a system message for testing.
func SystemMessage(content string) model.Message {
	return must(model.NewSystemMessage(content))
}

// TestMCPTools returns sample MCP tools for testing.
func TestMCPTools() []mcptypes.Tool {
	return []mcptypes.Tool{
		{
			Name:        "get_weather",
			Description: "Get the current weather for a location",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"location": map[string]any{
						"type":        "string",
						"description": "The city and state, e.g. San Francisco, CA",
					},
				},
				Required: []string{"location"},
			},
		},
		{
			Name:        "calculate",
			Description: "Perform a mathematical calculation",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"expression": map[string]any{
						"type":        "string",
						"description": "The mathematical expression to evaluate",
					},
				},
				Required: []string{"expression"},
			},
		},
	}
}
