package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the harbor: accept robot connections and reconcile workloads",
		Long: `Starts the harbor server. Robots connect to the websocket endpoint
(default :5001/robots), present the shared secret and stay registered until
they disconnect. Managed workloads are reconciled every 20 seconds.

Configuration is read from config.yaml in --config-path. Set
DEV_KUBERNETES=development to log manifests instead of submitting them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication(cmd, nil)
			if err != nil {
				return err
			}
			defer application.Close()
			return application.Run(commandContext(cmd))
		},
	}
}
