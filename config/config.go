package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

// ContextConfig is the [context] table: the token budget of a conversation.
type ContextConfig struct {
	MaxTokens      int    `toml:"max_tokens"`
	ReservedTokens int    `toml:"reserved_tokens"`
	Policy         string `toml:"policy"`
}

// TransportConfig is the [transport] table shared by every provider.
type TransportConfig struct {
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// ProviderConfig is one [[providers]] entry. API keys are never stored here;
// they come from the environment (see APIKey).
type ProviderConfig struct {
	ID      string `toml:"id"`
	Name    string `toml:"name"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	Enabled bool   `toml:"enabled"`
}

type UserConfig struct {
	DefaultProvider     string           `toml:"default_provider"`
	DefaultSystemPrompt string           `toml:"default_system_prompt,omitempty"`
	Storage             string           `toml:"storage"`
	Context             ContextConfig    `toml:"context"`
	Transport           TransportConfig  `toml:"transport"`
	Providers           []ProviderConfig `toml:"providers"`
}

type Config struct {
	DataDirectory       string
	DefaultProvider     string
	DefaultModel        string
	DefaultSystemPrompt string
	Storage             string
	Context             ContextConfig
	Transport           TransportConfig
	Providers           []ProviderConfig
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// Provider returns the configured entry for id.
func (c *Config) Provider(id string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// EnabledProviders returns the providers with enabled = true, in file order.
func (c *Config) EnabledProviders() []ProviderConfig {
	var out []ProviderConfig
	for _, p := range c.Providers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) applyUserConfig(u *UserConfig) {
	c.DefaultProvider = u.DefaultProvider
	c.DefaultSystemPrompt = u.DefaultSystemPrompt
	c.Storage = u.Storage
	c.Context = u.Context
	c.Transport = u.Transport
	c.Providers = u.Providers
}

func (c *Config) applyEnvOverrides() {
	if provider := os.Getenv("POLYCHAT_PROVIDER"); provider != "" {
		c.DefaultProvider = provider
	}
	if model := os.Getenv("POLYCHAT_MODEL"); model != "" {
		c.DefaultModel = model
	}
	if prompt := os.Getenv("POLYCHAT_SYSTEM_PROMPT"); prompt != "" {
		c.DefaultSystemPrompt = prompt
	}
}

// APIKeyEnvVar returns the variable holding a provider's API key,
// e.g. POLYCHAT_OPENROUTER_API_KEY.
func APIKeyEnvVar(providerID string) string {
	id := strings.ToUpper(strings.ReplaceAll(providerID, "-", "_"))
	return "POLYCHAT_" + id + "_API_KEY"
}

// APIKey returns the API key for a provider. POLYCHAT_<ID>_API_KEY wins over
// the vendor's conventional variable (OPENAI_API_KEY and friends).
func APIKey(providerID string) string {
	if key := os.Getenv(APIKeyEnvVar(providerID)); key != "" {
		return key
	}
	switch providerID {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openrouter":
		return os.Getenv("OPENROUTER_API_KEY")
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	}
	return ""
}

func CheckDebug() bool {
	debug := os.Getenv("POLYCHAT_DEBUG")
	return debug == "true" || debug == "1"
}

func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	// Create debug log with secure permissions (0600 - may contain prompt text)
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (POLYCHAT_DEBUG=%s) ===", os.Getenv("POLYCHAT_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

// Load reads settings.toml for the data directory, then <data_dir>/config.toml,
// creating either from its template when missing. POLYCHAT_DATA_DIR replaces
// the data directory from settings.toml.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with the user config read from userConfigPath instead of
// <data_dir>/config.toml. An empty path means the default location.
func LoadFrom(userConfigPath string) (*Config, error) {
	defaults := DefaultUserConfig()
	cfg := &Config{DataDirectory: DefaultSystemConfig().DataDirectory}
	cfg.applyUserConfig(defaults)

	if dataDir := os.Getenv("POLYCHAT_DATA_DIR"); dataDir != "" {
		cfg.DataDirectory = dataDir
	} else {
		systemCfg, err := LoadSystemConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load system config: %w", err)
		}
		cfg.DataDirectory = systemCfg.DataDirectory
	}

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// Ensure data directory has correct permissions (fix if needed)
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	var userCfg *UserConfig
	var err error
	if userConfigPath != "" {
		userCfg, err = decodeUserConfig(ExpandPath(userConfigPath))
	} else {
		userCfg, err = LoadUserConfig(dataDir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	cfg.applyUserConfig(userCfg)
	cfg.fillDefaults(defaults)
	cfg.applyEnvOverrides()

	return cfg, nil
}

// fillDefaults restores defaults for values a hand-edited config left zero.
func (c *Config) fillDefaults(d *UserConfig) {
	if c.DefaultProvider == "" {
		c.DefaultProvider = d.DefaultProvider
	}
	if c.Storage == "" {
		c.Storage = d.Storage
	}
	if c.Context.MaxTokens <= 0 {
		c.Context.MaxTokens = d.Context.MaxTokens
	}
	if c.Context.Policy == "" {
		c.Context.Policy = d.Context.Policy
	}
	if c.Transport.TimeoutSeconds <= 0 {
		c.Transport.TimeoutSeconds = d.Transport.TimeoutSeconds
	}
	if len(c.Providers) == 0 {
		c.Providers = d.Providers
	}
}
