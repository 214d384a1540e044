package provider

import (
	"context"
	"fmt"
	"polychat/config"
	"polychat/model"
)

// PingProvider creates the provider described by cfg and checks it is
// reachable with the given credentials.
func PingProvider(ctx context.Context, cfg Config) error {
	p, err := NewProvider(cfg)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	if config.Debug {
		config.DebugLog.Printf("[Provider] Provider %s ping successful", cfg.Type)
	}
	return nil
}

// FetchModels lists the models of the provider described by cfg.
func FetchModels(ctx context.Context, cfg Config) ([]model.ModelInfo, error) {
	p, err := NewProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}
	models, err := p.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	if config.Debug {
		config.DebugLog.Printf("[Provider] Fetched %d models from provider %s", len(models), cfg.Type)
	}
	return models, nil
}
