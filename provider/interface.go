// Package provider implements model.Provider for each supported backend.
//
// Every provider follows the same path for a chat request:
//
//  1. convert the provider-agnostic messages (and tools) into the vendor's
//     request body, using the vendor SDK's parameter types where one exists;
//  2. post it through a transport.Client, which hands back raw body fragments;
//  3. feed the fragments to stream.Normalize with the vendor's dialect;
//  4. fold the unified events with stream.Collect, forwarding each one to the
//     caller's callback.
//
// The SDK clients are only used for the non-streaming calls (model listing
// and ping), so all streaming goes through one normalizer.
//
// # Usage
//
//	p, err := provider.NewProvider(provider.Config{
//	    Type:    provider.ProviderTypeOpenAI,
//	    APIKey:  os.Getenv("OPENAI_API_KEY"),
//	    Model:   "gpt-4o-mini",
//	})
//	if err != nil {
//	    // handle error
//	}
//	resp, err := p.Chat(ctx, messages, func(ev stream.Event) error {
//	    fmt.Print(ev.Text)
//	    return nil
//	})
package provider

import (
	"polychat/transport"
	"sync"
)

// Note: The Provider interface and StreamCallback are defined in the model package
// (model/provider.go) to avoid import cycles. This package implements model.Provider.

// ProviderType identifies the provider implementation.
type ProviderType string

const (
	ProviderTypeOllama     ProviderType = "ollama"
	ProviderTypeOpenRouter ProviderType = "openrouter"
	ProviderTypeOpenAI     ProviderType = "openai"
	ProviderTypeAnthropic  ProviderType = "anthropic"
	ProviderTypeGemini     ProviderType = "gemini"
)

// Config holds provider-specific configuration.
type Config struct {
	Type    ProviderType
	BaseURL string
	Model   string
	APIKey  string // Unused for Ollama
	// Transport carries every request. Nil means transport.Default.
	Transport *transport.Client
}

func (c Config) transport() *transport.Client {
	if c.Transport == nil {
		return transport.Default
	}
	return c.Transport
}

// selection is the active model name. SetModel may race with a chat in
// flight, so reads and writes are guarded.
type selection struct {
	mu   sync.RWMutex
	name string
}

func (s *selection) get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *selection) set(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}
