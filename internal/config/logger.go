package config

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger from the "logging" section of the
// loaded configuration. logging.format selects "json" (production
// encoder, the default) or "console" (development encoder);
// logging.level accepts the usual zap level names and defaults to info.
func NewLogger(v *viper.Viper) (*zap.Logger, error) {
	cfg, err := encoderConfig(v.GetString("logging.format"))
	if err != nil {
		return nil, err
	}

	lvl := zapcore.InfoLevel
	if name := v.GetString("logging.level"); name != "" {
		if err := lvl.UnmarshalText([]byte(name)); err != nil {
			return nil, fmt.Errorf("unknown log level %q: %w", name, err)
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

func encoderConfig(format string) (zap.Config, error) {
	switch format {
	case "", "json":
		return zap.NewProductionConfig(), nil
	case "console":
		return zap.NewDevelopmentConfig(), nil
	default:
		return zap.Config{}, fmt.Errorf("unknown log format %q, want json or console", format)
	}
}
