package provider

import (
	"polychat/config"
	"polychat/model"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// buildToolInstructions creates brief execution guidance listing the
// available tools. Capable models still tend to describe tools instead of
// calling them without it.
func buildToolInstructions(tools []mcptypes.Tool) string {
	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
	}

	return strings.Join([]string{
		"TOOLS: " + strings.Join(names, ", "),
		"",
		"When the user asks you to do something that requires a tool:",
		"1. Determine which tool is needed",
		"2. Check if you have all required parameters",
		"3. If yes: Execute the tool IMMEDIATELY without explanation",
		"4. If no: Ask for the missing parameter ONLY",
		"",
		"DO NOT:",
		"- List available tools",
		"- Explain what you're about to do",
		"- Ask 'what would you like me to do?'",
	}, "\n")
}

// shouldSkipToolInstructions reports models that break with explicit tool
// instructions. qwen models call tools natively and leak XML when prompted.
func shouldSkipToolInstructions(modelName string) bool {
	return strings.Contains(strings.ToLower(modelName), "qwen")
}

// withToolInstructions prepends the tool guidance as a system message when
// tools are offered and the model benefits from it.
func withToolInstructions(messages []model.Message, tools []mcptypes.Tool, modelName string) []model.Message {
	if len(tools) == 0 {
		return messages
	}
	if shouldSkipToolInstructions(modelName) {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Provider] Model '%s': skipping tool instructions", modelName)
		}
		return messages
	}
	instruction, err := model.NewSystemMessage(buildToolInstructions(tools))
	if err != nil {
		return messages
	}
	return append([]model.Message{instruction}, messages...)
}
