package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"roboharbor/internal/app"
	"roboharbor/internal/catalog"
)

func newImagesCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "images",
		Short: "List the runtime images robots can declare",
		Long: `Prints the image catalog configured for the harbor: the runtime name a
robot declares and the container image it resolves to.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication(cmd, func(c *app.Config) {
				c.DryRun = true
				c.Silent = !debug
			})
			if err != nil {
				return err
			}
			defer application.Close()

			lister, ok := application.Services().Catalog.(catalog.Lister)
			if !ok {
				return errors.New("the configured image catalog cannot be listed")
			}
			images, err := lister.ListImages(commandContext(cmd))
			if err != nil {
				return err
			}
			return renderImages(cmd.OutOrStdout(), images, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json")
	return cmd
}

func renderImages(out io.Writer, images []catalog.Image, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(images)
	case "table", "":
	default:
		return fmt.Errorf("unknown output format %q (expected table or json)", format)
	}

	if len(images) == 0 {
		fmt.Fprintf(out, "%s\n", text.FgYellow.Sprint("No images found"))
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Name", "Image"})
	for _, img := range images {
		t.AppendRow(table.Row{img.Name, img.Reference()})
	}
	t.Render()
	return nil
}
