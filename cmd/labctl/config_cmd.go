package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tturner/labctl/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check session config files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigValidateCmd())
	return cmd
}

type configInitFlags struct {
	output string
	force  bool
}

func newConfigInitCmd() *cobra.Command {
	flags := &configInitFlags{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an example session config",
		Example: `  # Write labctl.yaml in the current directory
  labctl config init --output labctl.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.output == "" {
				return missingFlagError(cmd, "--output")
			}
			if _, err := os.Stat(flags.output); err == nil && !flags.force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", flags.output)
			}
			if err := config.WriteDefault(flags.output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", flags.output)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.output, "output", "", "Output path (required)")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Overwrite an existing file")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a session config and every device table it names",
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if path == "" && len(args) > 0 {
				path = args[0]
			}
			if path == "" {
				return missingFlagError(cmd, "--config")
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, dev := range cfg.Devices {
				tbl, err := cfg.LoadTable(dev)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-12s %-40s %d commands\n", dev.Name, dev.Transport, tbl.Len())
			}
			fmt.Fprintf(out, "%s: OK (%d devices)\n", path, len(cfg.Devices))
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "config", "", "Session config file (required)")
	return cmd
}
