package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"roboharbor/internal/app"
	"roboharbor/internal/broker"
	"roboharbor/internal/config"
	"roboharbor/internal/lifecycle"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeConfig indicates the configuration could not be loaded or is invalid.
	ExitCodeConfig = 2
	// ExitCodeTimeout indicates a robot did not register or respond in time.
	ExitCodeTimeout = 3
	// ExitCodeRejected indicates a robot rejected its configuration.
	ExitCodeRejected = 4
	// ExitCodeSubmit indicates the cluster refused the workload or the image is unknown.
	ExitCodeSubmit = 5
)

var (
	configPath string
	debug      bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "roboharbor",
	Short: "Run robots as Kubernetes workloads and keep track of them",
	Long: `roboharbor starts robots as Kubernetes Jobs or Deployments and waits for
them to connect back over a websocket. Connected robots can be asked to
validate their configuration, and managed workloads are reconciled from
their labels.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			return nil
		}
		path, err := config.GetDefaultConfigPath()
		if err != nil {
			configPath = "."
			return nil
		}
		configPath = path
		return nil
	},
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits with a code describing the failure.
// SIGINT and SIGTERM cancel the command's context.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "roboharbor version %s\n" .Version}}`)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	var cfgErr *config.ConfigurationError
	if errors.As(err, &cfgErr) {
		return ExitCodeConfig
	}

	var rejected *lifecycle.ValidationFailedError
	if errors.As(err, &rejected) {
		return ExitCodeRejected
	}

	if errors.Is(err, broker.ErrRegistrationTimeout) ||
		errors.Is(err, broker.ErrResponseTimeout) ||
		errors.Is(err, lifecycle.ErrNoResponse) {
		return ExitCodeTimeout
	}

	var submitErr *lifecycle.ClusterSubmitError
	if errors.As(err, &submitErr) || errors.Is(err, lifecycle.ErrImageNotFound) {
		return ExitCodeSubmit
	}

	return ExitCodeError
}

// newApplication bootstraps the harbor for a command.
func newApplication(cmd *cobra.Command, mutate func(*app.Config)) (*app.Application, error) {
	cfg := app.NewConfig(debug, configPath)
	if mutate != nil {
		mutate(cfg)
	}
	return app.NewApplication(commandContext(cmd), cfg)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "", "Configuration directory (default ~/.config/roboharbor)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newManifestCmd())
	rootCmd.AddCommand(newImagesCmd())
}
