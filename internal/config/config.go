// Package config holds engine configuration and YAML file loading for the
// frameloop CLI.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config configures an engine instance.
type Config struct {
	Workers   int    `yaml:"workers"`    // Worker pool size (default 4)
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json
	TraceDB   string `yaml:"trace_db"`   // SQLite trace path; empty disables tracing
	DebugAddr string `yaml:"debug_addr"` // Debug stats server address; empty disables it
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		Workers:   4,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return cfg, nil
}
