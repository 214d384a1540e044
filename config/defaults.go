package config

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/polychat",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		DefaultProvider: "ollama",
		Storage:         "file",
		Context: ContextConfig{
			MaxTokens:      8192,
			ReservedTokens: 1024,
			Policy:         "sliding-window",
		},
		Transport: TransportConfig{
			TimeoutSeconds: 300,
			Burst:          1,
		},
		Providers: []ProviderConfig{
			{ID: "ollama", Name: "Ollama", BaseURL: "http://localhost:11434", Model: "llama3.1:latest", Enabled: true},
			{ID: "openai", Name: "OpenAI", BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini"},
			{ID: "openrouter", Name: "OpenRouter", BaseURL: "https://openrouter.ai/api/v1", Model: "meta-llama/llama-3.2-90b-instruct"},
			{ID: "anthropic", Name: "Anthropic", BaseURL: "https://api.anthropic.com", Model: "claude-sonnet-4-5-20250929"},
			{ID: "gemini", Name: "Gemini", BaseURL: "https://generativelanguage.googleapis.com/v1beta", Model: "gemini-2.5-flash"},
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# polychat System Configuration
# Location: ~/.config/polychat/settings.toml
# This file uses TOML format: https://toml.io

# Directory where conversations, user config and the debug log are stored
data_directory = "~/.local/share/polychat"
`
}

func GenerateUserConfigTemplate() string {
	return `# polychat User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io
#
# API keys are read from the environment, never from this file:
#   POLYCHAT_<PROVIDER>_API_KEY (e.g. POLYCHAT_OPENAI_API_KEY)
#   or OPENAI_API_KEY / ANTHROPIC_API_KEY / OPENROUTER_API_KEY / GEMINI_API_KEY

# Provider used when --provider is not given
default_provider = "ollama"

# Default system prompt for new conversations (optional)
# Example: "You are a helpful coding assistant."
default_system_prompt = ""

# Conversation storage backend: "file" (one JSON file per conversation) or "sqlite"
storage = "file"

[context]
# Context window size of the model, in tokens
max_tokens = 8192
# Tokens kept free for the reply
reserved_tokens = 1024
# Eviction policy: "sliding-window", "truncate-oldest" or "summarize"
policy = "sliding-window"

[transport]
timeout_seconds = 300
# Outbound request rate limit (0 = unlimited)
requests_per_second = 0
burst = 1

[[providers]]
id = "ollama"
name = "Ollama"
base_url = "http://localhost:11434"
model = "llama3.1:latest"
enabled = true

[[providers]]
id = "openai"
name = "OpenAI"
base_url = "https://api.openai.com/v1"
model = "gpt-4o-mini"
enabled = false

[[providers]]
id = "openrouter"
name = "OpenRouter"
base_url = "https://openrouter.ai/api/v1"
model = "meta-llama/llama-3.2-90b-instruct"
enabled = false

[[providers]]
id = "anthropic"
name = "Anthropic"
base_url = "https://api.anthropic.com"
model = "claude-sonnet-4-5-20250929"
enabled = false

[[providers]]
id = "gemini"
name = "Gemini"
base_url = "https://generativelanguage.googleapis.com/v1beta"
model = "gemini-2.5-flash"
enabled = false
`
}
