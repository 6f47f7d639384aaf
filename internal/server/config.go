package server

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the server configuration.
type Config struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DataDir string `mapstructure:"data_dir"`
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./data/pilot.db")

	// Plugin defaults
	v.SetDefault("plugins.pilot.enabled", true)
	v.SetDefault("plugins.pilot.default_provider", "claude")
	v.SetDefault("plugins.pilot.request_timeout", "60s")
	v.SetDefault("plugins.pilot.monthly_quota_tokens", 0)
	v.SetDefault("plugins.pilot.rate_limit_per_minute", 30)
	v.SetDefault("plugins.pilot.rate_limit_burst", 10)
	v.SetDefault("plugins.pilot.batch_concurrency", 3)
	v.SetDefault("plugins.pilot.conversation_ttl", "30m")
	v.SetDefault("plugins.pilot.conversation_sweep_interval", "5m")
	v.SetDefault("plugins.pilot.max_conversation_messages", 50)
	v.SetDefault("plugins.pilot.providers.openai.model", "gpt-4o")
	v.SetDefault("plugins.pilot.providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("plugins.pilot.providers.claude.model", "claude-sonnet-4-20250514")
	v.SetDefault("plugins.pilot.providers.claude.base_url", "https://api.anthropic.com/v1")
	v.SetDefault("plugins.pilot.providers.gemini.model", "gemini-1.5-pro")
	v.SetDefault("plugins.pilot.providers.gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("pilot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/pilot")
	}

	// Environment variable support: SV_SERVER_PORT=9090
	v.SetEnvPrefix("SV")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}
