package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tturner/labctl/internal/command"
	"github.com/tturner/labctl/internal/logging"
	"github.com/tturner/labctl/internal/simulator"
)

type simulateFlags struct {
	listen       string
	dialect      string
	address      uint8
	latencyMs    int
	jitterMs     int
	dropEvery    int
	corruptEvery int
	chunkWrites  bool
	seed         int64
	logLevel     string
}

func newSimulateCmd() *cobra.Command {
	flags := &simulateFlags{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a device emulator on TCP",
		Long: `Emulate one instrument on a TCP port so tables and sessions can be
tested without hardware.

  crc16  RTU valve board: 32 coils, holding registers, exception replies
  sum    selector valve: switch (0x44), position (0x3E), pass (0x3F)
  sum16  temperature unit: set (0x05), read (0xA0)
  ascii  syringe pump: A, P, D, Z and ? commands

Fault injection (latency, dropped or corrupted replies, byte-at-a-time
writes) exercises timeout and integrity handling. Press Ctrl+C to stop.`,
		Example: `  # Valve board on the default port
  labctl simulate --dialect crc16

  # Flaky selector valve
  labctl simulate --dialect sum --address 0 --listen :10124 --drop-every 5 --latency-ms 30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.dialect == "" {
				return missingFlagError(cmd, "--dialect")
			}
			return runSimulate(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.listen, "listen", "127.0.0.1:10123", "Listen address")
	cmd.Flags().StringVar(&flags.dialect, "dialect", "", "Device dialect: crc16, sum, sum16, ascii (required)")
	cmd.Flags().Uint8Var(&flags.address, "address", 1, "Device address")
	cmd.Flags().IntVar(&flags.latencyMs, "latency-ms", 0, "Delay before every reply")
	cmd.Flags().IntVar(&flags.jitterMs, "jitter-ms", 0, "Random extra delay up to this value")
	cmd.Flags().IntVar(&flags.dropEvery, "drop-every", 0, "Drop every Nth reply")
	cmd.Flags().IntVar(&flags.corruptEvery, "corrupt-every", 0, "Corrupt every Nth reply")
	cmd.Flags().BoolVar(&flags.chunkWrites, "chunk-writes", false, "Write replies one byte at a time")
	cmd.Flags().Int64Var(&flags.seed, "seed", 0, "Random seed for jitter (0 = time based)")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "info", "Log level: silent, error, info, verbose, debug")
	return cmd
}

func runSimulate(cmd *cobra.Command, flags *simulateFlags) error {
	dialect, err := command.ParseDialect(flags.dialect)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(flags.logLevel)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(level, "")
	if err != nil {
		return err
	}
	defer logger.Close()

	dev, err := simulator.NewDevice(dialect, flags.address)
	if err != nil {
		return err
	}
	srv := simulator.NewServer(flags.listen, dev,
		simulator.WithServerLogger(logger),
		simulator.WithFaults(simulator.Faults{
			Latency:       time.Duration(flags.latencyMs) * time.Millisecond,
			Jitter:        time.Duration(flags.jitterMs) * time.Millisecond,
			DropEveryN:    flags.dropEvery,
			CorruptEveryN: flags.corruptEvery,
			ChunkWrites:   flags.chunkWrites,
			Seed:          flags.seed,
		}),
	)
	if err := srv.Start(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "[SIMULATOR] %s device (address %d) listening on %s\n", dialect, flags.address, srv.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err = srv.Wait(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "[SIMULATOR] stopped after %d requests\n", dev.Requests())
	return err
}
