package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"roboharbor/internal/broker"
	"roboharbor/internal/catalog"
	"roboharbor/internal/cluster"
	"roboharbor/internal/config"
	"roboharbor/internal/lifecycle"
	"roboharbor/internal/metrics"
	"roboharbor/internal/registry"
	"roboharbor/internal/transport"
	"roboharbor/pkg/logging"
)

// connectCluster builds the real cluster client. Tests replace it.
var connectCluster = func() (cluster.Client, error) {
	return cluster.Connect()
}

// Services holds the initialized harbor components.
type Services struct {
	Config    *config.Config
	Metrics   *metrics.Recorder
	Catalog   catalog.Finder
	Cluster   cluster.Client
	Registry  *registry.Registry
	Broker    *broker.Broker
	Manager   *lifecycle.Manager
	Transport *transport.Server

	fileCatalog *catalog.File
	closers     []func()
	ready       chan struct{}
}

// InitializeServices builds every component from cfg.Harbor. The order
// follows the dependencies: catalog and cluster first, then the broker and
// its transport, then the lifecycle manager on top.
func InitializeServices(ctx context.Context, cfg *Config) (*Services, error) {
	hc := cfg.Harbor
	s := &Services{Config: hc, ready: make(chan struct{})}

	if hc.Metrics.Enabled {
		s.Metrics = metrics.New()
	}

	if err := s.initCatalog(ctx); err != nil {
		s.Close()
		return nil, err
	}

	if hc.Cluster.DryRun {
		logging.Info("Services", "Dry run enabled, manifests are logged instead of submitted")
		s.Cluster = cluster.NewDryRun(nil)
	} else {
		c, err := connectCluster()
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Cluster = c
	}

	s.Registry = registry.New()
	s.Broker = broker.New(s.Registry, broker.WithMetrics(s.Metrics))
	s.Transport = transport.NewServer(s.Broker, hc.Harbor.Secret,
		transport.WithHandshakeTimeout(hc.Timeouts.Handshake))
	s.Manager = lifecycle.NewManager(s.Cluster, s.Catalog, s.Broker, lifecycle.Config{
		Namespace:           hc.Namespace,
		HarborAddress:       hc.Harbor.PublicAddress,
		Secret:              hc.Harbor.Secret,
		RobotEnv:            hc.RobotEnv,
		ValidationImage:     hc.ValidationImage,
		RegistrationTimeout: hc.Timeouts.Registration,
		ResponseTimeout:     hc.Timeouts.Response,
		ReconcileInterval:   hc.Reconcile.Interval,
	}, lifecycle.WithMetrics(s.Metrics))

	return s, nil
}

func (s *Services) initCatalog(ctx context.Context) error {
	cc := s.Config.Catalog
	images := catalogImages(cc.Images)

	switch cc.Driver {
	case config.CatalogFile:
		f, err := catalog.LoadFile(cc.Path)
		if err != nil {
			return err
		}
		s.fileCatalog = f
		s.Catalog = f
	case config.CatalogPostgres:
		p, err := catalog.OpenPostgres(ctx, cc.DSN)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, p.Close)
		if err := p.Seed(ctx, images); err != nil {
			return err
		}
		s.Catalog = p
	default:
		s.Catalog = catalog.NewMemory(images...)
	}
	logging.Info("Services", "Using %s image catalog", cc.Driver)
	return nil
}

// catalogImages returns the built-in images overlaid with configured ones.
func catalogImages(entries []config.ImageEntry) []catalog.Image {
	images := catalog.DefaultImages()
	for _, e := range entries {
		images = append(images, catalog.Image{
			Name:               e.Name,
			ContainerReference: e.ContainerReference,
			Version:            e.Version,
		})
	}
	return images
}

// Handler returns the harbor HTTP routes: the robot websocket endpoint,
// /healthz and, when enabled, the metrics endpoint.
func (s *Services) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.Config.Harbor.Path, s.Transport)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "ok %d robots\n", s.Registry.Len())
	})
	mux.HandleFunc("/connections", s.handleConnections)
	if s.Metrics != nil {
		mux.Handle(s.Config.Metrics.Path, s.Metrics.Handler())
	}
	return mux
}

// Connection is the JSON view of a connected robot.
type Connection struct {
	RobotID     string    `json:"robotId"`
	PodID       string    `json:"podId,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// handleConnections lists the robots currently attached to the harbor.
func (s *Services) handleConnections(w http.ResponseWriter, _ *http.Request) {
	entries := s.Registry.List()
	out := make([]Connection, 0, len(entries))
	for _, e := range entries {
		out = append(out, Connection{RobotID: e.RobotID, PodID: e.PodID, ConnectedAt: e.ConnectedAt})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		logging.Warn("Services", "Failed to write connection list: %v", err)
	}
}

// Ready is closed once Serve accepts connections.
func (s *Services) Ready() <-chan struct{} {
	return s.ready
}

// Close releases catalog connections.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
