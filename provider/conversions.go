package provider

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"polychat/config"
	"polychat/model"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
)

// omitted stands in for media a provider cannot accept, so the model still
// sees that something was attached.
func omitted(p model.Part, provider string) string {
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Provider] %s: dropping %s part not supported in this form", provider, p.Type)
	}
	name := string(p.Type)
	if p.Media != nil && p.Media.Name != "" {
		name += " " + p.Media.Name
	}
	return fmt.Sprintf("[%s omitted]", name)
}

// dataURL renders inline media as a data: URL.
func dataURL(m *model.Media) string {
	return "data:" + m.MIMEType + ";base64," + m.Data
}

// audioFormat maps an audio MIME type onto OpenAI's input_audio format.
func audioFormat(mimeType string) string {
	if strings.Contains(mimeType, "mp3") || strings.Contains(mimeType, "mpeg") {
		return "mp3"
	}
	return "wav"
}

// ConvertToOpenAIMessages converts messages to chat completion parameters.
// Tool results become tool messages; assistant tool calls are carried as
// function tool calls.
func ConvertToOpenAIMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Text()))

		case model.RoleTool:
			res, _ := msg.ToolResult()
			result = append(result, openai.ToolMessage(res.Content, res.ToolCallID))

		case model.RoleAssistant:
			result = append(result, openAIAssistant(msg))

		default:
			if !msg.HasMedia() {
				result = append(result, openai.UserMessage(msg.Text()))
				continue
			}
			result = append(result, openai.UserMessage(openAIParts(msg.Parts)))
		}
	}
	return result
}

func openAIParts(parts []model.Part) []openai.ChatCompletionContentPartUnionParam {
	out := make([]openai.ChatCompletionContentPartUnionParam, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case model.PartText:
			out = append(out, openai.TextContentPart(p.Text))

		case model.PartImage:
			url := p.Media.URL
			if url == "" {
				url = dataURL(p.Media)
			}
			out = append(out, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL:    url,
				Detail: p.Media.Detail,
			}))

		case model.PartAudio:
			if p.Media.Data == "" {
				out = append(out, openai.TextContentPart(omitted(p, "openai")))
				continue
			}
			out = append(out, openai.InputAudioContentPart(openai.ChatCompletionContentPartInputAudioInputAudioParam{
				Data:   p.Media.Data,
				Format: audioFormat(p.Media.MIMEType),
			}))

		case model.PartDocument:
			if p.Media.Data == "" {
				out = append(out, openai.TextContentPart(omitted(p, "openai")))
				continue
			}
			file := openai.ChatCompletionContentPartFileFileParam{FileData: openai.String(dataURL(p.Media))}
			if p.Media.Name != "" {
				file.Filename = openai.String(p.Media.Name)
			}
			out = append(out, openai.FileContentPart(file))
		}
	}
	return out
}

func openAIAssistant(msg model.Message) openai.ChatCompletionMessageParamUnion {
	calls := msg.ToolCalls()
	if len(calls) == 0 {
		return openai.AssistantMessage(msg.Text())
	}

	asst := openai.ChatCompletionAssistantMessageParam{}
	if text := msg.Text(); text != "" {
		asst.Content.OfString = openai.String(text)
	}
	for _, tc := range calls {
		asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
}

// ConvertToAnthropicMessages converts messages to Messages API parameters.
// System messages are returned separately as system blocks. Tool results
// travel in user turns, and consecutive turns of the same role are merged
// because the API requires alternation.
func ConvertToAnthropicMessages(messages []model.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var system []anthropic.TextBlockParam
	var out []anthropic.MessageParam

	for _, msg := range messages {
		var role anthropic.MessageParamRole
		var blocks []anthropic.ContentBlockParamUnion

		switch msg.Role {
		case model.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Text()})
			continue

		case model.RoleTool:
			res, _ := msg.ToolResult()
			role = anthropic.MessageParamRoleUser
			blocks = []anthropic.ContentBlockParamUnion{
				anthropic.NewToolResultBlock(res.ToolCallID, res.Content, res.IsError),
			}

		case model.RoleAssistant:
			role = anthropic.MessageParamRoleAssistant
			blocks = anthropicBlocks(msg.Parts)

		default:
			role = anthropic.MessageParamRoleUser
			blocks = anthropicBlocks(msg.Parts)
		}

		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			continue
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}
	return out, system
}

func anthropicBlocks(parts []model.Part) []anthropic.ContentBlockParamUnion {
	out := make([]anthropic.ContentBlockParamUnion, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case model.PartText:
			if p.Text == "" {
				continue
			}
			out = append(out, anthropic.NewTextBlock(p.Text))

		case model.PartImage:
			if p.Media.URL != "" {
				out = append(out, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: p.Media.URL}))
				continue
			}
			out = append(out, anthropic.NewImageBlockBase64(p.Media.MIMEType, p.Media.Data))

		case model.PartDocument:
			switch {
			case p.Media.URL != "":
				out = append(out, anthropic.NewDocumentBlock(anthropic.URLPDFSourceParam{URL: p.Media.URL}))
			case p.Media.MIMEType == "application/pdf":
				out = append(out, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: p.Media.Data}))
			default:
				out = append(out, anthropic.NewTextBlock(omitted(p, "anthropic")))
			}

		case model.PartAudio:
			out = append(out, anthropic.NewTextBlock(omitted(p, "anthropic")))

		case model.PartToolCall:
			var input any = json.RawMessage(p.ToolCall.Arguments)
			if !json.Valid([]byte(p.ToolCall.Arguments)) {
				input = map[string]any{}
			}
			out = append(out, anthropic.NewToolUseBlock(p.ToolCall.ID, input, p.ToolCall.Name))
		}
	}
	if len(out) == 0 {
		out = append(out, anthropic.NewTextBlock(" "))
	}
	return out
}

// ConvertToOllamaMessages converts messages to Ollama chat messages. Inline
// images are decoded into raw bytes; media Ollama cannot take is replaced by
// a placeholder.
func ConvertToOllamaMessages(messages []model.Message) []api.Message {
	result := make([]api.Message, len(messages))
	for i, msg := range messages {
		out := api.Message{Role: string(msg.Role)}
		var text []string

		for _, p := range msg.Parts {
			switch p.Type {
			case model.PartText:
				text = append(text, p.Text)
			case model.PartToolResult:
				text = append(text, p.ToolResult.Content)
			case model.PartToolCall:
				out.ToolCalls = append(out.ToolCalls, api.ToolCall{
					Function: api.ToolCallFunction{
						Index:     len(out.ToolCalls),
						Name:      p.ToolCall.Name,
						Arguments: api.ToolCallFunctionArguments(p.ToolCall.Args()),
					},
				})
			case model.PartImage:
				img, err := base64.StdEncoding.DecodeString(p.Media.Data)
				if p.Media.Data == "" || err != nil {
					text = append(text, omitted(p, "ollama"))
					continue
				}
				out.Images = append(out.Images, api.ImageData(img))
			default:
				text = append(text, omitted(p, "ollama"))
			}
		}

		out.Content = strings.Join(text, "\n")
		result[i] = out
	}
	return result
}

// ParseToolArguments parses a JSON arguments string into a map. Invalid JSON
// yields an empty map.
func ParseToolArguments(argsJSON string) map[string]any {
	return model.ToolCall{Arguments: argsJSON}.Args()
}
