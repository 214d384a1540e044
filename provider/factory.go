package provider

import (
	"fmt"
	"polychat/model"
)

// NewProvider creates a provider based on configuration.
//
// Returns an error if the provider type is unknown or the provider-specific
// constructor fails (missing API key, invalid URL).
func NewProvider(cfg Config) (model.Provider, error) {
	switch cfg.Type {
	case ProviderTypeOllama:
		p, err := NewOllamaProvider(cfg)
		return checked(p, err)
	case ProviderTypeOpenRouter:
		p, err := NewOpenRouterProvider(cfg)
		return checked(p, err)
	case ProviderTypeOpenAI:
		p, err := NewOpenAIProvider(cfg)
		return checked(p, err)
	case ProviderTypeAnthropic:
		p, err := NewAnthropicProvider(cfg)
		return checked(p, err)
	case ProviderTypeGemini:
		p, err := NewGeminiProvider(cfg)
		return checked(p, err)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// checked keeps a failed constructor's nil pointer out of the interface.
func checked[P model.Provider](p P, err error) (model.Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

// MapProviderIDToType converts a config provider ID to a ProviderType.
// "google" is accepted as an alias for Gemini. Unknown IDs are returned
// as-is, and NewProvider rejects them.
func MapProviderIDToType(id string) ProviderType {
	switch id {
	case "ollama":
		return ProviderTypeOllama
	case "openrouter":
		return ProviderTypeOpenRouter
	case "openai":
		return ProviderTypeOpenAI
	case "anthropic":
		return ProviderTypeAnthropic
	case "gemini", "google":
		return ProviderTypeGemini
	default:
		return ProviderType(id)
	}
}
