package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// LoadConfig reads a YAML configuration file from filePath, starting
// from Default() so a partial file only overrides what it mentions,
// and validates the result.
func LoadConfig(filePath string) (*Configuration, error) {
	cfg := Default()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", filePath, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration from %s: %w", filePath, err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate performs basic sanity checks on a Configuration struct.
func Validate(cfg *Configuration) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if cfg.HTTP.Addr == "" {
		return fmt.Errorf("http.addr cannot be empty")
	}
	if cfg.Pool.ReadableCapacity <= 0 {
		return fmt.Errorf("pool.readableCapacity must be positive")
	}
	if cfg.Pool.WritableCapacity <= 0 {
		return fmt.Errorf("pool.writableCapacity must be positive")
	}
	if cfg.Pool.HandlesPerShard <= 0 {
		return fmt.Errorf("pool.handlesPerShard must be positive")
	}
	if cfg.Index.DataDir == "" {
		return fmt.Errorf("index.dataDir cannot be empty")
	}
	return nil
}
