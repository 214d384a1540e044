package model

import (
	"context"
	"polychat/stream"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Provider abstracts one conversational-AI backend (OpenAI, OpenRouter,
// Anthropic, Gemini, Ollama) behind provider-agnostic messages and the
// unified stream event model.
//
// This interface is defined in the model package (not provider package) to avoid
// import cycles: provider implementations import model, and callers holding a
// conversation can use Provider without importing the provider package.
type Provider interface {
	// Chat sends messages and streams unified events to callback. The
	// returned Response is the folded result; on a stream failure it is the
	// partial result and the error is a *stream.StreamError.
	Chat(ctx context.Context, messages []Message, callback StreamCallback) (*stream.Response, error)

	// ChatWithTools is Chat with tool definitions the model may call.
	ChatWithTools(ctx context.Context, messages []Message, tools []mcptypes.Tool, callback StreamCallback) (*stream.Response, error)

	// ListModels returns available models for this provider.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// GetModel returns the currently selected model name (InternalName for API calls).
	// For OpenRouter, this returns the full name with vendor prefix (e.g., "qwen/qwen3-coder:free").
	GetModel() string

	// GetDisplayName returns the model name formatted for display.
	// For OpenRouter, this strips the vendor prefix.
	GetDisplayName() string

	// SetModel changes the active model.
	SetModel(model string)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// StreamCallback receives every unified event of a streamed response. A
// non-nil error aborts the stream.
type StreamCallback func(event stream.Event) error

// ModelInfo describes one model a provider offers.
type ModelInfo struct {
	Name         string // Display name (stripped for OpenRouter)
	Size         int64
	Provider     string // Provider ID: "ollama", "openrouter", "anthropic", ...
	InternalName string // Full API name (e.g., "meta-llama/llama-3.2-90b" for OpenRouter)
}
