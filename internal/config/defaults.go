package config

import "time"

const (
	DefaultNamespace         = "default"
	DefaultListenAddress     = ":5001"
	DefaultPath              = "/robots"
	DefaultPublicAddress     = "roboharbor:5001"
	DefaultValidationImage   = "validate-robot"
	DefaultMetricsPath       = "/metrics"
	DefaultTimeout           = 60 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultReconcileInterval = 20 * time.Second
)

// GetDefaultConfig returns the configuration used when no file is present.
func GetDefaultConfig() Config {
	return Config{
		Namespace: DefaultNamespace,
		Harbor: HarborConfig{
			ListenAddress: DefaultListenAddress,
			Path:          DefaultPath,
			PublicAddress: DefaultPublicAddress,
		},
		Timeouts: TimeoutsConfig{
			Registration: DefaultTimeout,
			Response:     DefaultTimeout,
			Handshake:    DefaultHandshakeTimeout,
		},
		Reconcile:       ReconcileConfig{Interval: DefaultReconcileInterval},
		Catalog:         CatalogConfig{Driver: CatalogMemory},
		Metrics:         MetricsConfig{Enabled: true, Path: DefaultMetricsPath},
		ValidationImage: DefaultValidationImage,
		Log:             LogConfig{Level: "info", Format: "text"},
	}
}
