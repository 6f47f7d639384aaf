package gemini

import "time"

// Config holds the Gemini provider configuration.
type Config struct {
	Model   string        `mapstructure:"model"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns sensible defaults for Gemini.
func DefaultConfig() Config {
	return Config{
		Model:   "gemini-1.5-pro",
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Timeout: 60 * time.Second,
	}
}
