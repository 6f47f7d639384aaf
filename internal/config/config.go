// Package config adapts Viper to the plugin.Config surface handed to
// every plugin, and builds the shared zap logger.
package config

import (
	"time"

	"github.com/sensorvision/pilot/pkg/plugin"
	"github.com/spf13/viper"
)

var _ plugin.Config = (*ViperConfig)(nil)

// ViperConfig implements plugin.Config on top of a Viper instance.
type ViperConfig struct {
	v *viper.Viper
}

// New wraps v. A nil Viper is replaced with an empty one so lookups on
// missing config sections stay safe.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{v: v}
}

// Viper exposes the wrapped instance for callers that need top-level
// keys outside any plugin section, such as the server address.
func (c *ViperConfig) Viper() *viper.Viper { return c.v }

func (c *ViperConfig) Unmarshal(target any) error { return c.v.Unmarshal(target) }

func (c *ViperConfig) Get(key string) any { return c.v.Get(key) }

func (c *ViperConfig) GetString(key string) string { return c.v.GetString(key) }

func (c *ViperConfig) GetInt(key string) int { return c.v.GetInt(key) }

func (c *ViperConfig) GetBool(key string) bool { return c.v.GetBool(key) }

func (c *ViperConfig) GetDuration(key string) time.Duration { return c.v.GetDuration(key) }

func (c *ViperConfig) IsSet(key string) bool { return c.v.IsSet(key) }

// Sub returns the named subsection. Viper yields nil for absent
// sections; that is normalized to an empty config so plugins can read
// defaults without nil checks.
func (c *ViperConfig) Sub(key string) plugin.Config {
	return New(c.v.Sub(key))
}
