package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tturner/labctl/internal/frame"
	"github.com/tturner/labctl/internal/ui"
)

type watchFlags struct {
	sessionFlags
	command  string
	target   uint16
	interval time.Duration
}

func newWatchCmd() *cobra.Command {
	flags := &watchFlags{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live view of a report command",
		Example: `  labctl watch --device syringe --command position --interval 250ms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.command == "" && len(args) > 0 {
				flags.command = args[0]
			}
			if flags.command == "" {
				return missingFlagError(cmd, "--command")
			}
			return runWatch(flags)
		},
	}

	flags.sessionFlags.register(cmd)
	cmd.Flags().StringVar(&flags.command, "command", "", "Report command name (required)")
	cmd.Flags().Uint16Var(&flags.target, "target", 0, "Actuator index")
	cmd.Flags().DurationVar(&flags.interval, "interval", time.Second, "Time between polls")
	return cmd
}

func runWatch(flags *watchFlags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.logLevel == "" {
		// Log lines would tear the full-screen view.
		flags.logLevel = "silent"
	}
	s, err := openSession(ctx, &flags.sessionFlags, sessionOptions{metricsEndpoint: true, publish: true})
	if err != nil {
		return err
	}
	defer s.Close()

	spec, err := s.table.Lookup(flags.command)
	if err != nil {
		return s.wrap(err, flags.command)
	}
	if !spec.IsReport() {
		return fmt.Errorf("%s is a write command; watch needs a report command (have %v)", spec.Name, s.table.Reports())
	}

	title := fmt.Sprintf("%s · %s on %s", s.device.Name, spec.Name, s.endpoint)
	model := ui.NewWatchModel(ctx, title, flags.interval, func(ctx context.Context) (frame.Result, error) {
		return s.execute(ctx, spec.Name, flags.target, frame.NoParam)
	})
	return ui.RunWatch(ctx, model)
}
