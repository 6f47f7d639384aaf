package openai

import "time"

// Config holds the OpenAI provider configuration.
type Config struct {
	Model   string        `mapstructure:"model"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns sensible defaults for OpenAI.
func DefaultConfig() Config {
	return Config{
		Model:   "gpt-4o",
		BaseURL: "https://api.openai.com/v1",
		Timeout: 60 * time.Second,
	}
}
