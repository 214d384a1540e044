package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"polychat/config"
	"polychat/mcp"
	"polychat/model"
	"polychat/ollama"
	"polychat/stream"
	"polychat/transport"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
)

// OllamaProvider talks to a local Ollama server. Chat streams from /api/chat
// as newline-delimited JSON; listing and ping go through ollama.Client.
type OllamaProvider struct {
	client *ollama.Client
	tc     *transport.Client
	model  selection
}

// NewOllamaProvider creates an Ollama provider. BaseURL defaults to
// http://localhost:11434 and Model to llama3.1:latest. No API key is needed.
//
// Returns an error if the base URL is invalid.
func NewOllamaProvider(cfg Config) (*OllamaProvider, error) {
	tc := cfg.transport()
	client, err := ollama.NewClient(cfg.BaseURL, tc.HTTPClient())
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}

	name := cfg.Model
	if name == "" {
		name = ollama.DefaultModel
	}
	p := &OllamaProvider{client: client, tc: tc}
	p.model.set(name)
	return p, nil
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) (*stream.Response, error) {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

// ChatWithTools implements Provider.ChatWithTools. Tools are left out for
// models that cannot call them; those models would answer with the tool
// schema as text.
func (p *OllamaProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) (*stream.Response, error) {
	name := p.model.get()
	if len(tools) > 0 && !ollama.SupportsToolCalling(name) {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Provider] Model '%s' does not support tool calling, sending %d tools as none", name, len(tools))
		}
		tools = nil
	}

	streaming := true
	req := api.ChatRequest{
		Model:    name,
		Messages: ConvertToOllamaMessages(withToolInstructions(messages, tools, name)),
		Stream:   &streaming,
	}
	if len(tools) > 0 {
		req.Tools = mcp.ToOllama(tools)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ollama request: %w", err)
	}

	return streamChat(ctx, p.tc, stream.DialectOllama, transport.Request{
		URL:  p.client.ChatURL(),
		Body: body,
	}, callback)
}

// ListModels returns the models installed on the server.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	return p.client.ListModels(ctx)
}

func (p *OllamaProvider) GetModel() string {
	return p.model.get()
}

// GetDisplayName is the model name; Ollama names have no vendor prefix.
func (p *OllamaProvider) GetDisplayName() string {
	return p.model.get()
}

func (p *OllamaProvider) SetModel(name string) {
	p.model.set(name)
}

// Ping checks the server is reachable.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}
