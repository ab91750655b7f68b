package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"roboharbor/internal/app"
	"roboharbor/internal/lifecycle"
)

type runOptions struct {
	persistent bool
	noWait     bool
	validate   bool
	quiet      bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <robot.yaml>",
		Short: "Start a robot and wait for it to register",
		Long: `Starts the robot described in the given YAML or JSON file.

By default the robot runs as a Job and the command waits for it to connect.
With --persistent it runs as a Deployment; add --no-wait to return as soon
as the cluster accepted it. With --validate the robot is started with the
validation image and asked to check its configuration.`,
		Example: `  roboharbor run robot.yaml
  roboharbor run robot.yaml --persistent --no-wait
  roboharbor run robot.yaml --validate`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRobot(cmd, args[0], opts)
		},
	}
	cmd.Flags().BoolVar(&opts.persistent, "persistent", false, "Run as a Deployment instead of a Job")
	cmd.Flags().BoolVar(&opts.noWait, "no-wait", false, "Do not wait for a persistent robot to register")
	cmd.Flags().BoolVar(&opts.validate, "validate", false, "Validate the robot configuration instead of running it")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress the progress spinner")
	return cmd
}

func (o *runOptions) check() error {
	if o.noWait && !o.persistent {
		return errors.New("--no-wait requires --persistent")
	}
	if o.validate && o.persistent {
		return errors.New("--validate cannot be combined with --persistent")
	}
	return nil
}

func runRobot(cmd *cobra.Command, path string, opts *runOptions) error {
	if err := opts.check(); err != nil {
		return err
	}
	robot, err := lifecycle.LoadRobot(path)
	if err != nil {
		return err
	}

	application, err := newApplication(cmd, func(c *app.Config) {
		c.DisableReconcile = true
	})
	if err != nil {
		return err
	}
	defer application.Close()

	// The robot connects back to this process, so the harbor must be up
	// before the workload is submitted.
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()
	serveErr := make(chan error, 1)
	go func() { serveErr <- application.Run(ctx) }()

	select {
	case <-application.Services().Ready():
	case err := <-serveErr:
		return err
	}

	stop := startSpinner(cmd.ErrOrStderr(), opts, robot.Identifier)
	err = executeRun(ctx, cmd.OutOrStdout(), application.Services().Manager, robot, opts)
	stop(err)

	cancel()
	<-serveErr
	return err
}

func executeRun(ctx context.Context, out io.Writer, m *lifecycle.Manager, robot lifecycle.Robot, opts *runOptions) error {
	if opts.validate {
		res, err := m.Validate(ctx, robot)
		if err != nil {
			return err
		}
		if !res.Accepted {
			fmt.Fprintf(out, "%s robot %s rejected its configuration: %s\n", text.FgRed.Sprint("✗"), robot.Identifier, res.Error)
			return res.Err()
		}
		fmt.Fprintf(out, "%s robot %s accepted its configuration\n", text.FgGreen.Sprint("✓"), robot.Identifier)
		return nil
	}

	var (
		res lifecycle.Result
		err error
	)
	if opts.persistent {
		res, err = m.StartPersistent(ctx, robot, !opts.noWait)
	} else {
		res, err = m.StartEphemeral(ctx, robot)
	}
	if err != nil {
		return err
	}
	printResult(out, res)
	return nil
}

func printResult(out io.Writer, res lifecycle.Result) {
	fmt.Fprintf(out, "workload: %s\n", res.WorkloadName)
	fmt.Fprintf(out, "robot:    %s\n", res.RobotID)
	if res.PodID != "" {
		fmt.Fprintf(out, "pod:      %s\n", res.PodID)
	}
}

// startSpinner shows progress on w and returns a function that stops it.
func startSpinner(w io.Writer, opts *runOptions, robotID string) func(error) {
	if opts.quiet || (opts.persistent && opts.noWait) {
		return func(error) {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = fmt.Sprintf(" Waiting for robot %s...", robotID)
	s.Start()
	return func(err error) {
		if err != nil {
			s.FinalMSG = text.FgRed.Sprintf("Robot %s failed: %v", robotID, err) + "\n"
		}
		s.Stop()
	}
}
