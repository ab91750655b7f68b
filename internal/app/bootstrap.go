package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"roboharbor/internal/config"
	"roboharbor/pkg/logging"
)

// Application wires the harbor components together and runs them.
//
// Initialization happens in two phases:
//  1. NewApplication loads configuration, sets up logging and builds services
//  2. Run serves robot connections and reconciles until the context ends
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads configuration and initializes all services.
//
// If cfg.Harbor is nil the configuration is read from cfg.ConfigPath.
func NewApplication(ctx context.Context, cfg *Config) (*Application, error) {
	if cfg.Harbor == nil {
		harborCfg, err := config.LoadConfig(cfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load roboharbor configuration from %s: %w", cfg.ConfigPath, err)
		}
		cfg.Harbor = &harborCfg
	}
	if cfg.DryRun {
		cfg.Harbor.Cluster.DryRun = true
	}

	initLogging(cfg)

	if err := cfg.Harbor.Validate(); err != nil {
		logging.Error("Bootstrap", err, "Invalid configuration")
		return nil, err
	}

	services, err := InitializeServices(ctx, cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

func initLogging(cfg *Config) {
	level := logging.ParseLevel(cfg.Harbor.Log.Level)
	if cfg.Debug {
		level = logging.LevelDebug
	}
	var out io.Writer = os.Stderr
	if cfg.Silent {
		out = io.Discard
	}
	logging.Init(level, logging.Format(cfg.Harbor.Log.Format), out)
}

// Services returns the initialized services.
func (a *Application) Services() *Services {
	return a.services
}

// Run serves the harbor until ctx is cancelled or a component fails.
func (a *Application) Run(ctx context.Context) error {
	ln, err := a.services.Listen()
	if err != nil {
		return err
	}
	return a.services.Serve(ctx, ln, !a.config.DisableReconcile)
}

// Close releases resources held by the services.
func (a *Application) Close() {
	a.services.Close()
}
