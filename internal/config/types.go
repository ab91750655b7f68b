package config

import "time"

// Catalog drivers.
const (
	CatalogMemory   = "memory"
	CatalogFile     = "file"
	CatalogPostgres = "postgres"
)

// Config is the top-level harbor configuration.
type Config struct {
	Namespace       string            `yaml:"namespace"`
	Harbor          HarborConfig      `yaml:"harbor"`
	Timeouts        TimeoutsConfig    `yaml:"timeouts"`
	Reconcile       ReconcileConfig   `yaml:"reconcile"`
	Cluster         ClusterConfig     `yaml:"cluster"`
	Catalog         CatalogConfig     `yaml:"catalog"`
	Metrics         MetricsConfig     `yaml:"metrics"`
	ValidationImage string            `yaml:"validationImage"`
	RobotEnv        map[string]string `yaml:"robotEnv,omitempty"`
	Log             LogConfig         `yaml:"log"`
}

// HarborConfig describes the endpoint robots connect to.
type HarborConfig struct {
	ListenAddress string `yaml:"listenAddress"` // Address the HTTP server binds (default :5001)
	Path          string `yaml:"path"`          // Websocket path (default /robots)
	PublicAddress string `yaml:"publicAddress"` // Address handed to robots as ROBO_HARBOR
	Secret        string `yaml:"secret,omitempty"`
}

// TimeoutsConfig bounds the waits of an orchestration call.
type TimeoutsConfig struct {
	Registration time.Duration `yaml:"registration"`
	Response     time.Duration `yaml:"response"`
	// Handshake bounds how long a new connection may take to register.
	Handshake time.Duration `yaml:"handshake"`
}

// ReconcileConfig controls the periodic scan.
type ReconcileConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ClusterConfig controls how workloads reach Kubernetes.
type ClusterConfig struct {
	DryRun bool `yaml:"dryRun"`
}

// CatalogConfig selects and configures the image catalog.
type CatalogConfig struct {
	Driver string       `yaml:"driver"`
	Path   string       `yaml:"path,omitempty"`
	DSN    string       `yaml:"dsn,omitempty"`
	Images []ImageEntry `yaml:"images,omitempty"`
}

// ImageEntry is an image declared inline for the memory catalog.
type ImageEntry struct {
	Name               string `yaml:"name"`
	ContainerReference string `yaml:"containerReference"`
	Version            string `yaml:"version,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
