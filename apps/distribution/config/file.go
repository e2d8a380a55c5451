package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadFile overlays the YAML (or JSON, TOML) file at path onto cfg. Only
// keys present in the file change cfg, so environment values stay in effect
// for everything else.
func LoadFile(path string, cfg *EnvConfig) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	// lists from the file replace, not extend, the environment's
	if v.IsSet("supported_countries") {
		cfg.SupportedCountries = nil
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unmarshaling config file %s: %w", path, err)
	}
	return nil
}
