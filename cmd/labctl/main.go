package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "labctl",
		Short: "Command-frame tool for serial and TCP lab instruments",
		Long: `labctl encodes, sends and decodes command frames for laboratory
instruments: RTU-style valve boards (crc16), CC…DD selector valves and
temperature units (sum, sum16), and ASCII syringe pumps (ascii).

Commands are looked up by name in a per-device command table (YAML or XML),
so the same tool drives every instrument on the bench.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newTableCmd())
	rootCmd.AddCommand(newEncodeCmd())
	rootCmd.AddCommand(newDecodeCmd())
	rootCmd.AddCommand(newExecCmd())
	rootCmd.AddCommand(newPollCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newInteractiveCmd())
	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newCaptureCmd())

	defaultHelp := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != rootCmd {
			defaultHelp(cmd, args)
			return
		}
		printRootHelp(cmd.OutOrStdout(), cmd)
	})
	return rootCmd
}

func printRootHelp(w io.Writer, cmd *cobra.Command) {
	fmt.Fprintf(w, "Usage:\n  %s <command> [arguments] [options]\n\n", cmd.Name())
	fmt.Fprintf(w, "Available Commands:\n")
	for _, subCmd := range cmd.Commands() {
		if !subCmd.Hidden {
			fmt.Fprintf(w, "  %-15s %s\n", subCmd.Name(), subCmd.Short)
		}
	}
	fmt.Fprintf(w, "\nUse \"%s help <command>\" for more information about a command.\n", cmd.Name())
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
