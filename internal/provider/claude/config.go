package claude

import "time"

// Config holds the Claude provider configuration.
type Config struct {
	Model   string        `mapstructure:"model"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns sensible defaults for Claude.
func DefaultConfig() Config {
	return Config{
		Model:   "claude-sonnet-4-20250514",
		BaseURL: "https://api.anthropic.com/v1",
		Timeout: 60 * time.Second,
	}
}
