package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/duration"

	"roboharbor/internal/app"
	"roboharbor/internal/lifecycle"
)

func newListCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the robot pods managed by roboharbor",
		Long: `Runs one reconciliation scan and prints every pod labelled
controlledBy=roboharbor in any namespace, including finished ones.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication(cmd, func(c *app.Config) {
				c.DisableReconcile = true
			})
			if err != nil {
				return err
			}
			defer application.Close()

			workloads, err := application.Services().Manager.Reconcile(commandContext(cmd))
			if err != nil {
				return err
			}
			return renderWorkloads(cmd.OutOrStdout(), workloads, output, time.Now())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json")
	return cmd
}

func renderWorkloads(out io.Writer, workloads []lifecycle.ManagedWorkload, format string, now time.Time) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(workloads)
	case "table", "":
	default:
		return fmt.Errorf("unknown output format %q (expected table or json)", format)
	}

	if len(workloads) == 0 {
		fmt.Fprintf(out, "%s\n", text.FgYellow.Sprint("No managed robots found"))
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Name", "Namespace", "Robot ID", "Phase", "Node", "Age"})
	for _, w := range workloads {
		age := "-"
		if !w.StartedAt.IsZero() {
			age = duration.HumanDuration(now.Sub(w.StartedAt))
		}
		t.AppendRow(table.Row{w.Name, w.Namespace, w.RobotID, string(w.Phase), w.Node, age})
	}
	t.Render()
	return nil
}
