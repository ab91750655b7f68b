package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"roboharbor/pkg/logging"
)

const (
	userConfigDir  = ".config/roboharbor"
	configFileName = "config.yaml"
	dotEnvFileName = ".env"
)

// Environment variables that override file values.
const (
	EnvSecret        = "ROBO_SECRET"
	EnvNamespace     = "ROBOHARBOR_NAMESPACE"
	EnvDatabaseURL   = "DATABASE_URL"
	EnvDevKubernetes = "DEV_KUBERNETES"
)

var osUserHomeDir = os.UserHomeDir

// GetDefaultConfigPath returns ~/.config/roboharbor.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig loads config.yaml from configPath on top of the defaults, then
// applies environment overrides. A missing file is not an error.
func LoadConfig(configPath string) (Config, error) {
	loadDotEnv(".", configPath)

	config := GetDefaultConfig()
	configFilePath := filepath.Join(configPath, configFileName)

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		return Config{}, NewConfigurationError(configFilePath, "io", err.Error())
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, NewConfigurationError(configFilePath, "parse", err.Error())
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	ApplyEnv(&config, os.LookupEnv)
	return config, nil
}

// ApplyEnv overrides config with values from lookup.
func ApplyEnv(config *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvSecret); ok && v != "" {
		config.Harbor.Secret = v
	}
	if v, ok := lookup(EnvNamespace); ok && v != "" {
		config.Namespace = v
	}
	if v, ok := lookup(EnvDatabaseURL); ok && v != "" {
		config.Catalog.DSN = v
	}
	if v, ok := lookup(EnvDevKubernetes); ok && v == "development" {
		config.Cluster.DryRun = true
	}
}

// loadDotEnv loads the first .env file found in dirs. Existing environment
// variables are never overwritten.
func loadDotEnv(dirs ...string) {
	for _, dir := range dirs {
		path := filepath.Join(dir, dotEnvFileName)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			logging.Warn("ConfigLoader", "Ignoring %s: %v", path, err)
			continue
		}
		logging.Debug("ConfigLoader", "Loaded environment from %s", path)
		return
	}
}
