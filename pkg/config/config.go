// Package config loads the afd process's ambient configuration: an
// optional YAML file (tool-strategy selection, rate-limit defaults, the
// bootstrap naming prefix) overridden by environment variables. Env always
// wins over the file, and both win over the built-in defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// RateLimit configures the default token bucket applied to the stock
// rate-limiting middleware when a host wires it in.
type RateLimit struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// Config is afd's process-level configuration.
type Config struct {
	Port       int    `yaml:"port" env:"PORT"`
	Host       string `yaml:"host" env:"HOST"`
	LogLevel   string `yaml:"logLevel" env:"LOG_LEVEL"`
	CORSOrigin string `yaml:"corsOrigin" env:"CORS_ORIGIN"`

	// ToolStrategy selects "individual" or "grouped" tools/list projection.
	ToolStrategy string `yaml:"toolStrategy"`
	// BootstrapPrefix names the auto-registered discovery tools, e.g.
	// "afd" produces afd-help/afd-docs/afd-schema/afd-start.
	BootstrapPrefix string `yaml:"bootstrapPrefix"`

	RateLimit RateLimit `yaml:"rateLimit"`
}

// Defaults returns the built-in configuration applied before any YAML file
// or environment variable is consulted.
func Defaults() *Config {
	return &Config{
		Port:            3100,
		Host:            "localhost",
		LogLevel:        "info",
		CORSOrigin:      "*",
		ToolStrategy:    "individual",
		BootstrapPrefix: "afd",
		RateLimit:       RateLimit{Rate: 5, Burst: 10},
	}
}

// Load builds a Config by layering, in order: built-in defaults, an
// optional YAML file at path (skipped silently if it doesn't exist), and
// environment variables (which win over both). Passing an empty path skips
// the YAML layer entirely.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// No config file is not an error; defaults (plus env) apply.
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	return cfg, nil
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to Info on an
// unrecognized value.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Addr formats the host:port pair the MCP HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
