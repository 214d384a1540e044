package provider

import (
	"polychat/config"
	"polychat/model"
	"polychat/transport"
)

// InitializeProviders creates a provider for every enabled [[providers]]
// entry, keyed by provider ID.
//
// API keys come from the environment (config.APIKey). All providers share
// one transport client built from the [transport] table, so the rate limit
// applies across them. The model is the entry's own, or the configured
// default model for the default provider.
//
// A provider that fails to initialize (most often a missing API key) is
// logged and skipped; the rest are still returned.
//
// Example:
//
//	providers := provider.InitializeProviders(cfg)
//	// providers = {"ollama": ..., "openai": ...}
func InitializeProviders(cfg *config.Config) map[string]model.Provider {
	providers := make(map[string]model.Provider)
	tc := transport.NewClient(transport.OptionsFromConfig(cfg.Transport))

	for _, providerCfg := range cfg.EnabledProviders() {
		pc := ConfigFor(cfg, providerCfg.ID)
		pc.Transport = tc
		providerType := pc.Type

		p, err := NewProvider(pc)
		if err != nil {
			if config.Debug {
				config.DebugLog.Printf("[Provider] Warning: failed to initialize provider %s: %v", providerCfg.ID, err)
			}
			continue
		}

		providers[providerCfg.ID] = p
		if config.Debug {
			config.DebugLog.Printf("[Provider] Initialized provider: %s (type: %s, model: %s)", providerCfg.ID, providerType, p.GetModel())
		}
	}

	return providers
}

// ConfigFor builds the provider Config for a [[providers]] entry, whether or
// not it is enabled. An ID missing from the file gets the provider's default
// base URL and model.
func ConfigFor(cfg *config.Config, providerID string) Config {
	entry, _ := cfg.Provider(providerID)

	modelName := entry.Model
	if providerID == cfg.DefaultProvider && cfg.DefaultModel != "" {
		modelName = cfg.DefaultModel
	}

	return Config{
		Type:    MapProviderIDToType(providerID),
		BaseURL: entry.BaseURL,
		Model:   modelName,
		APIKey:  config.APIKey(providerID),
	}
}
