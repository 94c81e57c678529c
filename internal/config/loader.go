package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/edgard/shamebot/internal/errs"
)

// EnvPrefix is the prefix for environment overrides, e.g. SHAMEBOT_TELEGRAM_TOKEN.
const EnvPrefix = "SHAMEBOT"

// LoadConfig loads and validates configuration from, in increasing priority:
//  1. Default values
//  2. The YAML file at path (optional; a missing file is not an error)
//  3. SHAMEBOT_* environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, errs.NewConfigError(fmt.Sprintf("failed to read config file %q", path), err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errs.NewConfigError("failed to parse config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
