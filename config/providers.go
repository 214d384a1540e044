package config

import (
	"fmt"
	"strconv"
)

// UpdateProviderField updates a single [[providers]] field in the user config
// and saves it. Supported fields: "base_url", "model", "enabled".
// API keys are not configurable here; see APIKey.
func UpdateProviderField(dataDir, providerID, fieldName, value string) error {
	cfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	p := findOrAddProvider(cfg, providerID)
	switch fieldName {
	case "base_url":
		p.BaseURL = value
	case "model":
		p.Model = value
	case "enabled":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for enabled: %q", value)
		}
		p.Enabled = enabled
	default:
		return fmt.Errorf("unknown field for %s: %s", providerID, fieldName)
	}

	if err := SaveUserConfig(cfg, dataDir); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// findOrAddProvider returns the entry for providerID, appending a disabled
// entry with the provider's defaults when the config has none.
func findOrAddProvider(cfg *UserConfig, providerID string) *ProviderConfig {
	for i := range cfg.Providers {
		if cfg.Providers[i].ID == providerID {
			return &cfg.Providers[i]
		}
	}
	cfg.Providers = append(cfg.Providers, ProviderConfig{
		ID:      providerID,
		Name:    ProviderDisplayName(providerID),
		BaseURL: ProviderDefaultBaseURL(providerID),
	})
	return &cfg.Providers[len(cfg.Providers)-1]
}

// ProviderDisplayName returns the display name for a provider
func ProviderDisplayName(providerID string) string {
	switch providerID {
	case "ollama":
		return "Ollama"
	case "openrouter":
		return "OpenRouter"
	case "anthropic":
		return "Anthropic"
	case "openai":
		return "OpenAI"
	case "gemini":
		return "Gemini"
	default:
		return providerID
	}
}

// ProviderDefaultBaseURL returns the default base URL for a provider
func ProviderDefaultBaseURL(providerID string) string {
	switch providerID {
	case "ollama":
		return "http://localhost:11434"
	case "openrouter":
		return "https://openrouter.ai/api/v1"
	case "anthropic":
		return "https://api.anthropic.com"
	case "openai":
		return "https://api.openai.com/v1"
	case "gemini":
		return "https://generativelanguage.googleapis.com/v1beta"
	default:
		return ""
	}
}
