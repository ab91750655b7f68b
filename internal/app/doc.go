// Package app bootstraps the harbor.
//
// # Bootstrap
//
// NewApplication loads the configuration (config.yaml plus environment
// overrides), initializes logging and builds the services in dependency
// order:
//
//  1. Metrics recorder (when enabled)
//  2. Image catalog (memory, file or postgres)
//  3. Cluster client (controller-runtime, or dry run)
//  4. Connection registry, broker and websocket transport
//  5. Lifecycle manager
//
// # Running
//
// Run binds the listen address and serves, in one errgroup:
//   - the robot websocket endpoint (default :5001/robots)
//   - /healthz and the Prometheus endpoint
//   - the reconciliation loop, unless disabled
//   - the file catalog watcher, for the file driver
//
// Cancelling the context closes every robot connection and shuts the HTTP
// server down.
//
// Example:
//
//	cfg := app.NewConfig(false, configPath)
//	application, err := app.NewApplication(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer application.Close()
//	return application.Run(ctx)
package app
