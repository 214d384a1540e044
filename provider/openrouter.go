package provider

import (
	"context"
	"fmt"
	"polychat/model"
	"polychat/stream"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

const (
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel   = "meta-llama/llama-3.2-90b-instruct"
)

// OpenRouterProvider talks to OpenRouter, which is OpenAI-compatible. Model
// names carry a vendor prefix ("meta-llama/...") that is hidden for display.
type OpenRouterProvider struct {
	*chatCompletions
}

// NewOpenRouterProvider creates an OpenRouter provider.
//
// Returns an error if the API key is missing.
func NewOpenRouterProvider(cfg Config) (*OpenRouterProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenRouter API key is required")
	}
	c := newChatCompletions("openrouter", cfg, defaultOpenRouterBaseURL, defaultOpenRouterModel)
	// Attribution headers OpenRouter uses for its app rankings.
	c.header.Set("HTTP-Referer", "https://github.com/polychat/polychat")
	c.header.Set("X-Title", "polychat")
	return &OpenRouterProvider{c}, nil
}

func (p *OpenRouterProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) (*stream.Response, error) {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

func (p *OpenRouterProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) (*stream.Response, error) {
	return p.chat(ctx, messages, tools, callback)
}

// ListModels implements Provider.ListModels. Name is the display name and
// InternalName the full API name.
func (p *OpenRouterProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	models, err := p.listModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list OpenRouter models: %w", err)
	}

	result := make([]model.ModelInfo, 0, len(models))
	for _, m := range models {
		result = append(result, model.ModelInfo{
			Name:         stripProviderPrefix(m.ID),
			InternalName: m.ID,
			Provider:     "openrouter",
		})
	}
	return result, nil
}

// GetModel returns the full model name used for API calls.
func (p *OpenRouterProvider) GetModel() string {
	return p.model.get()
}

// GetDisplayName returns the model name without its vendor prefix.
func (p *OpenRouterProvider) GetDisplayName() string {
	return stripProviderPrefix(p.model.get())
}

func (p *OpenRouterProvider) SetModel(name string) {
	p.model.set(name)
}

func (p *OpenRouterProvider) Ping(ctx context.Context) error {
	if _, err := p.listModels(ctx); err != nil {
		return fmt.Errorf("OpenRouter ping failed: %w", err)
	}
	return nil
}

// stripProviderPrefix removes the vendor prefix from a model name.
// "qwen/qwen3-coder:free" becomes "qwen3-coder:free".
func stripProviderPrefix(name string) string {
	if i := strings.Index(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
