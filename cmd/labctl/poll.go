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
	"github.com/tturner/labctl/internal/metrics"
	"github.com/tturner/labctl/internal/progress"
	"github.com/tturner/labctl/internal/ui"
)

type pollFlags struct {
	sessionFlags
	command     string
	param       string
	target      uint16
	interval    time.Duration
	count       int
	metricsFile string
	quiet       bool
	progress    bool
}

func newPollCmd() *cobra.Command {
	flags := &pollFlags{}

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Run a command repeatedly and report metrics",
		Long: `Run a command on an interval until --count is reached or Ctrl+C.

Every exchange is recorded in the metrics summary printed at the end. When
the config enables them, results are also published to Redis and exported
on the prometheus endpoint while polling.`,
		Example: `  # Read the selector position every 500ms, 20 times
  labctl poll --device selector --command position --interval 500ms --count 20

  # Poll valve status forever, writing per-exchange metrics to CSV
  labctl poll --device valves --command status --metrics-file status.csv`,
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
			if flags.interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}
			return runPoll(cmd, flags)
		},
	}

	flags.sessionFlags.register(cmd)
	cmd.Flags().StringVar(&flags.command, "command", "", "Command name (required)")
	cmd.Flags().StringVar(&flags.param, "param", "", "Parameter: integer, 0x hex, on/off")
	cmd.Flags().Uint16Var(&flags.target, "target", 0, "Actuator index")
	cmd.Flags().DurationVar(&flags.interval, "interval", time.Second, "Time between exchanges")
	cmd.Flags().IntVar(&flags.count, "count", 0, "Stop after this many exchanges (0 = until Ctrl+C)")
	cmd.Flags().StringVar(&flags.metricsFile, "metrics-file", "", "Write per-exchange metrics (.csv or .json)")
	cmd.Flags().BoolVar(&flags.quiet, "quiet", false, "Only print the summary")
	cmd.Flags().BoolVar(&flags.progress, "progress", false, "Draw a progress line on stderr instead of per-exchange output")
	return cmd
}

func runPoll(cmd *cobra.Command, flags *pollFlags) error {
	param, err := frame.ParseParam(flags.param)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, &flags.sessionFlags, sessionOptions{
		metricsEndpoint: true,
		metricsFile:     flags.metricsFile,
		publish:         true,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.table.Lookup(flags.command); err != nil {
		return s.wrap(err, flags.command)
	}

	out := cmd.OutOrStdout()
	var bar *progress.Bar
	if flags.progress {
		bar = progress.NewBar(cmd.ErrOrStderr(), flags.count, flags.command)
	}
	ticker := time.NewTicker(flags.interval)
	defer ticker.Stop()

	for n := 1; flags.count == 0 || n <= flags.count; n++ {
		res, err := s.execute(ctx, flags.command, flags.target, param)
		if ctx.Err() != nil {
			break
		}
		if bar != nil {
			bar.Record(err == nil)
		} else if !flags.quiet {
			stamp := time.Now().Format("15:04:05.000")
			if err != nil {
				fmt.Fprintf(out, "%s %4d %s\n", stamp, n, ui.RenderError(err))
			} else {
				fmt.Fprintf(out, "%s %4d %s\n", stamp, n, ui.RenderResult(res))
			}
		}
		if flags.count != 0 && n == flags.count {
			break
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			break
		}
	}

	if bar != nil {
		bar.Finish()
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, metrics.FormatSummary(s.sink.GetSummary()))
	if s.writer != nil {
		if err := s.writer.Err(); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
