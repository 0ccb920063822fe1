package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML config file behind --config. Persistent flags override
// whatever it says.
type Config struct {
	DB      string  `yaml:"db"`
	Backend string  `yaml:"backend"`
	Logging Logging `yaml:"logging"`
}

type Logging struct {
	Level string `yaml:"level"`
}

func DefaultConfig() *Config {
	return &Config{
		DB:      "tuplekv.db",
		Backend: "bolt",
		Logging: Logging{Level: "info"},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}
