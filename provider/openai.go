package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"polychat/mcp"
	"polychat/model"
	"polychat/stream"
	"polychat/transport"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
)

// chatCompletions is the part shared by every OpenAI-compatible backend:
// request building against /chat/completions and model listing through the
// official SDK.
type chatCompletions struct {
	id      string
	client  openai.Client
	tc      *transport.Client
	model   selection
	baseURL string
	apiKey  string
	header  http.Header
}

func newChatCompletions(id string, cfg Config, defaultBaseURL, defaultModel string) *chatCompletions {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	name := cfg.Model
	if name == "" {
		name = defaultModel
	}
	tc := cfg.transport()

	c := &chatCompletions{
		id: id,
		client: openai.NewClient(
			option.WithBaseURL(baseURL),
			option.WithAPIKey(cfg.APIKey),
			option.WithHTTPClient(tc.HTTPClient()),
		),
		tc:      tc,
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		header:  http.Header{},
	}
	c.model.set(name)
	c.header.Set("Authorization", "Bearer "+cfg.APIKey)
	return c
}

// requestBody builds a streamed chat completion request. Usage is requested
// in the final chunk.
func (c *chatCompletions) requestBody(messages []model.Message, tools []mcptypes.Tool) ([]byte, error) {
	params := openai.ChatCompletionNewParams{
		Messages: ConvertToOpenAIMessages(withToolInstructions(messages, tools, c.model.get())),
		Model:    openai.ChatModel(c.model.get()),
	}
	if len(tools) > 0 {
		params.Tools = mcp.ToOpenAI(tools)
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", c.id, err)
	}
	return withStreaming(body, "stream_options.include_usage", true)
}

func (c *chatCompletions) chat(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) (*stream.Response, error) {
	body, err := c.requestBody(messages, tools)
	if err != nil {
		return nil, err
	}
	return streamChat(ctx, c.tc, stream.DialectOpenAI, transport.Request{
		URL:    c.baseURL + "/chat/completions",
		Header: c.header.Clone(),
		Body:   body,
	}, callback)
}

func (c *chatCompletions) listModels(ctx context.Context) ([]openai.Model, error) {
	page, err := c.client.Models.List(ctx)
	if err != nil {
		return nil, err
	}
	return page.Data, nil
}

// OpenAIProvider talks to the OpenAI API, or any server that speaks its chat
// completions protocol.
type OpenAIProvider struct {
	*chatCompletions
}

// NewOpenAIProvider creates an OpenAI provider. BaseURL defaults to
// https://api.openai.com/v1 and Model to gpt-4o-mini.
//
// Returns an error if the API key is missing.
func NewOpenAIProvider(cfg Config) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	return &OpenAIProvider{newChatCompletions("openai", cfg, defaultOpenAIBaseURL, defaultOpenAIModel)}, nil
}

// Chat implements Provider.Chat by delegating to ChatWithTools with no tools.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) (*stream.Response, error) {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

// ChatWithTools implements Provider.ChatWithTools.
func (p *OpenAIProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) (*stream.Response, error) {
	return p.chat(ctx, messages, tools, callback)
}

// ListModels implements Provider.ListModels.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	models, err := p.listModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list OpenAI models: %w", err)
	}

	result := make([]model.ModelInfo, 0, len(models))
	for _, m := range models {
		result = append(result, model.ModelInfo{
			Name:         m.ID,
			InternalName: m.ID,
			Provider:     "openai",
		})
	}
	return result, nil
}

func (p *OpenAIProvider) GetModel() string {
	return p.model.get()
}

// GetDisplayName is the same as GetModel: OpenAI names carry no vendor prefix.
func (p *OpenAIProvider) GetDisplayName() string {
	return p.model.get()
}

func (p *OpenAIProvider) SetModel(name string) {
	p.model.set(name)
}

// Ping implements Provider.Ping by listing models.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	if _, err := p.listModels(ctx); err != nil {
		return fmt.Errorf("OpenAI ping failed: %w", err)
	}
	return nil
}
