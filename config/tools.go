package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// ToolServerEntry is one [servers.<name>] table of tools.toml: an MCP server
// started over stdio.
type ToolServerEntry struct {
	Enabled bool     `toml:"enabled"`
	Command string   `toml:"command"`
	Args    []string `toml:"args,omitempty"`
	// Env values are expanded against the environment, so secrets can be
	// written as "$GITHUB_TOKEN" instead of literally.
	Env map[string]string `toml:"env,omitempty"`
}

type ToolServersConfig struct {
	Servers map[string]ToolServerEntry `toml:"servers"`
}

// ToolServersPath returns <dataDir>/tools.toml.
func ToolServersPath(dataDir string) string {
	return filepath.Join(dataDir, "tools.toml")
}

// LoadToolServers reads tools.toml. A missing file is an empty config.
func LoadToolServers(dataDir string) (*ToolServersConfig, error) {
	path := ToolServersPath(dataDir)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &ToolServersConfig{
			Servers: make(map[string]ToolServerEntry),
		}, nil
	}

	var config ToolServersConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode tool servers config: %w", err)
	}

	if config.Servers == nil {
		config.Servers = make(map[string]ToolServerEntry)
	}

	return &config, nil
}

// SaveToolServers writes tools.toml with 0600 permissions.
func SaveToolServers(dataDir string, config *ToolServersConfig) error {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(ToolServersPath(dataDir), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create tool servers config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode tool servers config: %w", err)
	}

	return nil
}

// Enabled returns the names of enabled servers, sorted.
func (tc *ToolServersConfig) Enabled() []string {
	var names []string
	for name, entry := range tc.Servers {
		if entry.Enabled && entry.Command != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (tc *ToolServersConfig) SetEnabled(name string, enabled bool) {
	if tc.Servers == nil {
		tc.Servers = make(map[string]ToolServerEntry)
	}
	entry := tc.Servers[name]
	entry.Enabled = enabled
	tc.Servers[name] = entry
}

// Environment returns the server's env with variables expanded.
func (e ToolServerEntry) Environment() map[string]string {
	out := make(map[string]string, len(e.Env))
	for k, v := range e.Env {
		out[k] = os.ExpandEnv(v)
	}
	return out
}

// Redacted returns the expanded environment with sensitive values masked,
// for logging.
func (e ToolServerEntry) Redacted() map[string]string {
	out := e.Environment()
	for k := range out {
		if isSensitiveKey(k) {
			out[k] = "***"
		}
	}
	return out
}

// isSensitiveKey determines if a key contains sensitive data
func isSensitiveKey(key string) bool {
	upperKey := strings.ToUpper(key)
	sensitiveWords := []string{"KEY", "TOKEN", "SECRET", "PASSWORD", "AUTH", "CREDENTIAL", "BEARER"}
	for _, word := range sensitiveWords {
		if strings.Contains(upperKey, word) {
			return true
		}
	}
	return false
}
