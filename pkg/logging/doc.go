// Package logging provides the structured logging used across roboharbor.
//
// It is a thin layer over log/slog that tags every entry with a subsystem
// name, so that broker, transport and lifecycle output can be filtered
// independently.
//
// # Usage
//
//	logging.Init(logging.LevelInfo, logging.FormatJSON, os.Stderr)
//
//	logging.Info("Broker", "Robot %s registered (pod %s)", robotID, podID)
//	logging.Debug("Transport", "Dropping frame from %s", connID)
//	logging.Warn("Lifecycle", "Reconcile tick skipped, previous scan still running")
//	logging.Error("Cluster", err, "Failed to create job %s", name)
//
// # Levels
//
//   - Debug: protocol-level detail (frames, dropped replies)
//   - Info: lifecycle events (workloads created, robots registered)
//   - Warn: recoverable problems (rejected handshakes, skipped scans)
//   - Error: failures surfaced to callers or aborted scans
//
// # Controller-Runtime Integration
//
// Init also installs a logr bridge via ctrl.SetLogger so that controller-runtime
// and client-go write through the same slog handler instead of warning about
// an uninitialized logger.
//
// # Thread Safety
//
// All functions are safe for concurrent use. Init is expected to be called
// once during startup; later calls replace the handler atomically.
package logging
