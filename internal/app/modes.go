package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"roboharbor/pkg/logging"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Listen binds the harbor listen address.
func (s *Services) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.Config.Harbor.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.Config.Harbor.ListenAddress, err)
	}
	return ln, nil
}

// Serve runs the HTTP server on ln, the catalog watcher and optionally the
// reconciliation loop. It returns when ctx is done or any of them fails.
func (s *Services) Serve(ctx context.Context, ln net.Listener, reconcile bool) error {
	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g.Go(func() error {
		logging.Info("Server", "Harbor listening on %s%s", ln.Addr(), s.Config.Harbor.Path)
		close(s.ready)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("harbor server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logging.Info("Server", "Shutting down harbor")
		s.Transport.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if s.fileCatalog != nil {
		if err := s.fileCatalog.Watch(ctx); err != nil {
			logging.Warn("Services", "Image catalog will not be reloaded: %v", err)
		}
	}

	if reconcile {
		g.Go(func() error {
			return s.Manager.Run(ctx)
		})
	}

	return g.Wait()
}
