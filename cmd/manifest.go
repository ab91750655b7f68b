package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"roboharbor/internal/app"
	"roboharbor/internal/lifecycle"
)

func newManifestCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "manifest <robot.yaml>",
		Short: "Print the workload manifest for a robot without submitting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := lifecycle.ParseKind(kind)
			if err != nil {
				return err
			}
			robot, err := lifecycle.LoadRobot(args[0])
			if err != nil {
				return err
			}

			application, err := newApplication(cmd, func(c *app.Config) {
				c.DryRun = true
				c.Silent = !debug
			})
			if err != nil {
				return err
			}
			defer application.Close()

			obj, err := application.Services().Manager.RenderManifest(commandContext(cmd), robot, k)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(obj)
			if err != nil {
				return fmt.Errorf("failed to render manifest: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(lifecycle.KindJob), "Workload kind: job or deployment")
	return cmd
}
