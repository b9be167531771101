package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tturner/labctl/internal/dispatch"
	"github.com/tturner/labctl/internal/frame"
	"github.com/tturner/labctl/internal/ui"
)

type execFlags struct {
	sessionFlags
	command    string
	param      string
	targets    string
	showFrames bool
}

func newExecCmd() *cobra.Command {
	flags := &execFlags{}

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Execute one command on a configured device",
		Long: `Execute a command by name on a device from the session config.

With --targets the command runs once per actuator index, in order, paced
by the device turnaround. A failure on one target does not stop the rest.`,
		Example: `  # Open valves 0, 1 and 2
  labctl exec --config labctl.yaml --device valves --command valve_on --param on --targets 0,1,2

  # Ask a selector valve for its position
  labctl exec --device selector --command position`,
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
			return runExec(cmd, flags)
		},
	}

	flags.sessionFlags.register(cmd)
	cmd.Flags().StringVar(&flags.command, "command", "", "Command name (required)")
	cmd.Flags().StringVar(&flags.param, "param", "", "Parameter: integer, 0x hex, on/off")
	cmd.Flags().StringVar(&flags.targets, "targets", "", "Actuator indices, e.g. 0,1,2 or 0-7")
	cmd.Flags().BoolVar(&flags.showFrames, "show-frames", false, "Print the request frames")
	return cmd
}

func runExec(cmd *cobra.Command, flags *execFlags) error {
	param, err := frame.ParseParam(flags.param)
	if err != nil {
		return err
	}
	targets, err := ui.ParseTargets(flags.targets)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, &flags.sessionFlags, sessionOptions{publish: true})
	if err != nil {
		return err
	}
	defer s.Close()

	return executeSelection(ctx, cmd, s, flags.command, param, targets, flags.showFrames)
}

// executeSelection runs one command, or one per target, and prints the
// results. Results are published when the session has a publisher.
func executeSelection(ctx context.Context, cmd *cobra.Command, s *session, name string, param frame.Param, targets []uint16, showFrames bool) error {
	out := cmd.OutOrStdout()
	d := s.dispatcher

	if len(targets) == 0 {
		if showFrames {
			if f, err := d.Encode(name, frame.Request{Address: d.Address(), Param: param}); err == nil {
				fmt.Fprintln(out, ui.RenderFrame("tx", f))
			}
		}
		res, err := s.execute(ctx, name, 0, param)
		if err != nil {
			return s.wrap(err, name)
		}
		fmt.Fprintln(out, ui.RenderResult(res))
		return nil
	}

	outcomes, err := d.ExecuteMany(ctx, name, targets, param)
	for _, o := range outcomes {
		if showFrames {
			fmt.Fprintln(out, ui.RenderFrame(fmt.Sprintf("tx #%d", o.Target), o.Request))
		}
		s.publishOutcome(ctx, o.Target, o.Result, 0, o.Err)
	}
	fmt.Fprint(out, ui.RenderOutcomes(outcomes))
	if err != nil {
		return s.wrap(err, name)
	}
	for _, o := range outcomes {
		if o.Err != nil {
			return fmt.Errorf("%s failed on %d of %d targets", name, countFailed(outcomes), len(outcomes))
		}
	}
	return nil
}

func countFailed(outcomes []dispatch.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}
