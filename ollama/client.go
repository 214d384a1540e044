// Package ollama wraps the Ollama API client for the management calls a
// provider needs besides chatting: listing local models, reachability, and
// tool-calling capability lookup.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"polychat/model"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.1:latest"
)

// pingTimeout bounds Ping independently of the caller's context.
const pingTimeout = 5 * time.Second

type Client struct {
	api     *api.Client
	baseURL *url.URL
}

// NewClient parses baseURL (DefaultBaseURL when empty). A nil httpClient
// means http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{api: api.NewClient(parsed, httpClient), baseURL: parsed}, nil
}

// ChatURL returns the streaming chat endpoint.
func (c *Client) ChatURL() string {
	return c.baseURL.JoinPath("api", "chat").String()
}

// ListModels returns the locally installed models.
func (c *Client) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	resp, err := c.api.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := make([]model.ModelInfo, len(resp.Models))
	for i, m := range resp.Models {
		models[i] = model.ModelInfo{
			Name:         m.Name,
			Size:         m.Size,
			Provider:     "ollama",
			InternalName: m.Name,
		}
	}
	return models, nil
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := c.api.List(ctx); err != nil {
		return fmt.Errorf("ollama unreachable at %s: %w", c.baseURL, err)
	}
	return nil
}

// toolCallingModels records which model families handle Ollama's tool
// calling API, keyed by name prefix.
var toolCallingModels = map[string]bool{
	"qwen":      true,
	"llama3.1":  true,
	"llama3.2":  true,
	"llama3.3":  true,
	"mistral":   true,
	"command-r": true,
	"nemotron":  true,
	"granite3":  true,

	"llama3-gradient": false,
	"llama3":          false,
	"phi":             false,
	"gemma":           false,
	"codellama":       false,
	"deepseek":        false,
}

// orderedPrefixes lists the keys of toolCallingModels, most specific first,
// so "llama3.2" is matched before "llama3".
var orderedPrefixes = []string{
	"llama3.3", "llama3.2", "llama3.1",
	"llama3-gradient",
	"command-r", "qwen", "mistral", "nemotron", "granite3",
	"codellama",
	"llama3",
	"deepseek", "phi", "gemma",
}

// SupportsToolCalling reports whether a model is known to support tool
// calls. Unknown models report false.
func SupportsToolCalling(modelName string) bool {
	modelName = strings.ToLower(modelName)
	for _, prefix := range orderedPrefixes {
		if strings.HasPrefix(modelName, prefix) {
			return toolCallingModels[prefix]
		}
	}
	return false
}
