package app

import (
	"roboharbor/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug enables debug logging.
	Debug bool

	// Silent discards log output.
	Silent bool

	// ConfigPath is the directory holding config.yaml.
	ConfigPath string

	// DryRun forces the dry-run cluster backend regardless of the harbor
	// configuration. Used by commands that never submit workloads.
	DryRun bool

	// DisableReconcile keeps Run from starting the reconciliation loop.
	DisableReconcile bool

	// Harbor is the loaded harbor configuration. When set before
	// NewApplication, loading from ConfigPath is skipped.
	Harbor *config.Config
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
	}
}
