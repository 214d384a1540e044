package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"polychat/mcp"
	"polychat/model"
	"polychat/stream"
	"polychat/transport"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/tidwall/gjson"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-2.5-flash"
)

// Gemini generateContent request shapes. Only the fields polychat sends are
// declared.
type (
	geminiRequest struct {
		Contents          []geminiContent `json:"contents"`
		SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
		Tools             []geminiTool    `json:"tools,omitempty"`
	}

	geminiContent struct {
		Role  string       `json:"role,omitempty"`
		Parts []geminiPart `json:"parts"`
	}

	geminiPart struct {
		Text             string                  `json:"text,omitempty"`
		InlineData       *geminiBlob             `json:"inlineData,omitempty"`
		FileData         *geminiFile             `json:"fileData,omitempty"`
		FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
		FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
	}

	geminiBlob struct {
		MIMEType string `json:"mimeType"`
		Data     string `json:"data"`
	}

	geminiFile struct {
		MIMEType string `json:"mimeType,omitempty"`
		FileURI  string `json:"fileUri"`
	}

	geminiFunctionCall struct {
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	}

	geminiFunctionResponse struct {
		Name     string         `json:"name"`
		Response map[string]any `json:"response"`
	}

	geminiTool struct {
		FunctionDeclarations []mcp.FunctionDeclaration `json:"functionDeclarations"`
	}
)

// convertToGeminiContents converts messages to Gemini contents plus the
// system instruction. The assistant role is "model"; tool results travel as
// functionResponse parts of a user turn, named after the call they answer
// since Gemini matches results by function name.
func convertToGeminiContents(messages []model.Message) ([]geminiContent, *geminiContent) {
	var system *geminiContent
	var contents []geminiContent
	callNames := make(map[string]string)

	for _, msg := range messages {
		var role string
		var parts []geminiPart

		switch msg.Role {
		case model.RoleSystem:
			if system == nil {
				system = &geminiContent{}
			}
			system.Parts = append(system.Parts, geminiPart{Text: msg.Text()})
			continue

		case model.RoleTool:
			res, _ := msg.ToolResult()
			key := "result"
			if res.IsError {
				key = "error"
			}
			role = "user"
			parts = []geminiPart{{FunctionResponse: &geminiFunctionResponse{
				Name:     callNames[res.ToolCallID],
				Response: map[string]any{key: res.Content},
			}}}

		case model.RoleAssistant:
			role = "model"
			for _, tc := range msg.ToolCalls() {
				callNames[tc.ID] = tc.Name
			}
			parts = geminiParts(msg.Parts)

		default:
			role = "user"
			parts = geminiParts(msg.Parts)
		}

		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			continue
		}
		contents = append(contents, geminiContent{Role: role, Parts: parts})
	}
	return contents, system
}

func geminiParts(parts []model.Part) []geminiPart {
	out := make([]geminiPart, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.Type == model.PartText:
			if p.Text != "" {
				out = append(out, geminiPart{Text: p.Text})
			}

		case p.Type == model.PartToolCall:
			out = append(out, geminiPart{FunctionCall: &geminiFunctionCall{
				Name: p.ToolCall.Name,
				Args: p.ToolCall.Args(),
			}})

		case p.Type.IsMedia() && p.Media.Data != "":
			out = append(out, geminiPart{InlineData: &geminiBlob{
				MIMEType: p.Media.MIMEType,
				Data:     p.Media.Data,
			}})

		case p.Type.IsMedia():
			out = append(out, geminiPart{FileData: &geminiFile{
				MIMEType: mimeFromURL(p.Media),
				FileURI:  p.Media.URL,
			}})
		}
	}
	if len(out) == 0 {
		out = append(out, geminiPart{Text: " "})
	}
	return out
}

// mimeFromURL guesses a MIME type from the URL's extension when the part
// does not carry one.
func mimeFromURL(m *model.Media) string {
	if m.MIMEType != "" {
		return m.MIMEType
	}
	u, err := url.Parse(m.URL)
	if err != nil {
		return ""
	}
	typ := mime.TypeByExtension(path.Ext(u.Path))
	if i := strings.Index(typ, ";"); i >= 0 {
		typ = typ[:i]
	}
	return typ
}

// GeminiProvider talks to the Gemini API (Google AI Studio endpoints).
type GeminiProvider struct {
	tc      *transport.Client
	model   selection
	baseURL string
	apiKey  string
}

// NewGeminiProvider creates a Gemini provider. BaseURL defaults to the v1beta
// endpoint and Model to gemini-2.5-flash.
//
// Returns an error if the API key is missing.
func NewGeminiProvider(cfg Config) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	name := cfg.Model
	if name == "" {
		name = defaultGeminiModel
	}

	p := &GeminiProvider{tc: cfg.transport(), baseURL: baseURL, apiKey: cfg.APIKey}
	p.model.set(name)
	return p, nil
}

func (p *GeminiProvider) header() http.Header {
	h := http.Header{}
	h.Set("x-goog-api-key", p.apiKey)
	return h
}

func (p *GeminiProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) (*stream.Response, error) {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

// ChatWithTools implements Provider.ChatWithTools. Gemini streams server-sent
// events when asked for alt=sse. Tool calls come back without ids; streamChat
// assigns them.
func (p *GeminiProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) (*stream.Response, error) {
	name := p.model.get()
	contents, system := convertToGeminiContents(withToolInstructions(messages, tools, name))

	req := geminiRequest{Contents: contents, SystemInstruction: system}
	if len(tools) > 0 {
		req.Tools = []geminiTool{{FunctionDeclarations: mcp.ToGemini(tools)}}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode gemini request: %w", err)
	}

	return streamChat(ctx, p.tc, stream.DialectGemini, transport.Request{
		URL:    p.baseURL + "/models/" + url.PathEscape(name) + ":streamGenerateContent?alt=sse",
		Header: p.header(),
		Body:   body,
	}, callback)
}

// ListModels returns the models that support generateContent.
func (p *GeminiProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	body, err := p.tc.GetJSON(ctx, p.baseURL+"/models?pageSize=1000", p.header())
	if err != nil {
		return nil, fmt.Errorf("failed to list Gemini models: %w", err)
	}

	var result []model.ModelInfo
	gjson.GetBytes(body, "models").ForEach(func(_, m gjson.Result) bool {
		supported := false
		for _, method := range m.Get("supportedGenerationMethods").Array() {
			if method.String() == "generateContent" {
				supported = true
				break
			}
		}
		if !supported {
			return true
		}
		name := strings.TrimPrefix(m.Get("name").String(), "models/")
		result = append(result, model.ModelInfo{
			Name:         name,
			InternalName: name,
			Provider:     "gemini",
		})
		return true
	})
	return result, nil
}

func (p *GeminiProvider) GetModel() string {
	return p.model.get()
}

func (p *GeminiProvider) GetDisplayName() string {
	return p.model.get()
}

func (p *GeminiProvider) SetModel(name string) {
	p.model.set(name)
}

// Ping fetches a single model entry.
func (p *GeminiProvider) Ping(ctx context.Context) error {
	if _, err := p.tc.GetJSON(ctx, p.baseURL+"/models?pageSize=1", p.header()); err != nil {
		return fmt.Errorf("Gemini ping failed: %w", err)
	}
	return nil
}
