package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tturner/labctl/internal/ui"
)

type interactiveFlags struct {
	sessionFlags
	loop bool
}

func newInteractiveCmd() *cobra.Command {
	flags := &interactiveFlags{}

	cmd := &cobra.Command{
		Use:   "interactive",
		Short: "Pick a command and parameter from a form, then run it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return runInteractive(cmd, flags)
		},
	}

	flags.sessionFlags.register(cmd)
	cmd.Flags().BoolVar(&flags.loop, "loop", false, "Keep asking until the form is cancelled")
	return cmd
}

func runInteractive(cmd *cobra.Command, flags *interactiveFlags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, &flags.sessionFlags, sessionOptions{publish: true})
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	fmt.Fprint(out, ui.RenderTable(s.table))
	for {
		sel, err := ui.RunCommandForm(s.table)
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		if err != nil {
			return err
		}
		param, targets, err := sel.Request()
		if err != nil {
			return err
		}
		if err := executeSelection(ctx, cmd, s, sel.Command, param, targets, true); err != nil {
			fmt.Fprintln(out, ui.RenderError(err))
		}
		if !flags.loop || ctx.Err() != nil {
			return nil
		}
	}
}
