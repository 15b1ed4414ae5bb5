// Package config loads scriptbus settings.
//
// Settings start from [Default], are overlaid with an optional YAML
// file, and finally with SCRIPTBUS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/danderson/scriptbus"
)

// EnvPrefix is the prefix of environment variables that override
// file settings.
const EnvPrefix = "SCRIPTBUS_"

// Config is the scriptbus configuration.
type Config struct {
	// Bus is the well-known bus to connect to: session, system or
	// starter. Ignored if Address is set.
	Bus string `yaml:"bus" env:"BUS"`

	// Address is an explicit DBus server address, such as
	// "unix:path=/run/dbus/system_bus_socket".
	Address string `yaml:"address" env:"ADDRESS"`

	// Timeout is the default method call timeout.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`

	// Debug enables dumps of call payloads and replies.
	Debug bool `yaml:"debug" env:"DEBUG"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	// LibDir is searched by Lua's require before the default path.
	LibDir string `yaml:"lib_dir" env:"LIB_DIR"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Bus:      scriptbus.BusSession.String(),
		Timeout:  scriptbus.DefaultTimeout,
		LogLevel: "info",
	}
}

// Load returns the configuration read from the YAML file at path,
// with environment overrides applied. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Validate checks that all settings have usable values.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.BusType(); err != nil {
		errs = append(errs, err)
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %v", c.Timeout))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// BusType returns the parsed Bus setting.
func (c *Config) BusType() (scriptbus.BusType, error) {
	return scriptbus.ParseBusType(c.Bus)
}

// Level returns the parsed LogLevel setting.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return l, nil
}
