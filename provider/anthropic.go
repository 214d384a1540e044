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

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	// anthropicMaxTokens is required by the Messages API.
	anthropicMaxTokens = 4096
)

// AnthropicProvider talks to the Anthropic Messages API.
type AnthropicProvider struct {
	client  *anthropic.Client
	tc      *transport.Client
	model   selection
	baseURL string
	apiKey  string
}

// NewAnthropicProvider creates an Anthropic provider. BaseURL defaults to
// https://api.anthropic.com and Model to Claude Sonnet 4.5.
//
// Returns an error if the API key is missing.
func NewAnthropicProvider(cfg Config) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	name := cfg.Model
	if name == "" {
		name = string(anthropic.ModelClaudeSonnet4_5_20250929)
	}
	tc := cfg.transport()

	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(tc.HTTPClient()),
	)

	p := &AnthropicProvider{
		client:  &client,
		tc:      tc,
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
	}
	p.model.set(name)
	return p, nil
}

func (p *AnthropicProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) (*stream.Response, error) {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

// ChatWithTools implements Provider.ChatWithTools. System messages, the tool
// guidance included, go into the top-level system field.
func (p *AnthropicProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) (*stream.Response, error) {
	body, err := p.requestBody(messages, tools)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("x-api-key", p.apiKey)
	header.Set("anthropic-version", anthropicVersion)

	return streamChat(ctx, p.tc, stream.DialectAnthropic, transport.Request{
		URL:    p.baseURL + "/v1/messages",
		Header: header,
		Body:   body,
	}, callback)
}

func (p *AnthropicProvider) requestBody(messages []model.Message, tools []mcptypes.Tool) ([]byte, error) {
	name := p.model.get()
	anthropicMessages, system := ConvertToAnthropicMessages(withToolInstructions(messages, tools, name))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(name),
		Messages:  anthropicMessages,
		MaxTokens: anthropicMaxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(tools) > 0 {
		params.Tools = mcp.ToAnthropic(tools)
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode anthropic request: %w", err)
	}
	return withStreaming(body)
}

// ListModels returns a curated list; Claude models are few and stable.
func (p *AnthropicProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	models := []anthropic.Model{
		anthropic.ModelClaudeSonnet4_5_20250929,
		anthropic.ModelClaude3_5Haiku20241022,
		anthropic.ModelClaude_3_Opus_20240229,
		anthropic.ModelClaude_3_Haiku_20240307,
	}

	result := make([]model.ModelInfo, 0, len(models))
	for _, m := range models {
		result = append(result, model.ModelInfo{
			Name:         string(m),
			InternalName: string(m),
			Provider:     "anthropic",
		})
	}
	return result, nil
}

func (p *AnthropicProvider) GetModel() string {
	return p.model.get()
}

func (p *AnthropicProvider) GetDisplayName() string {
	return p.model.get()
}

func (p *AnthropicProvider) SetModel(name string) {
	p.model.set(name)
}

// Ping implements Provider.Ping with a one-token request, as Anthropic has
// no health endpoint.
func (p *AnthropicProvider) Ping(ctx context.Context) error {
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model.get()),
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("Anthropic ping failed: %w", err)
	}
	return nil
}
