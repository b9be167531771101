package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tturner/labctl/internal/ui"
)

type tableFlags struct {
	tablePath string
	dialect   string
}

func (f *tableFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tablePath, "table", "", "Command table file, YAML or XML (required)")
	cmd.Flags().StringVar(&f.dialect, "dialect", "", "Dialect for XML tables or YAML files without one")
}

func newTableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Inspect command tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newTableListCmd())
	cmd.AddCommand(newTableValidateCmd())
	return cmd
}

func newTableListCmd() *cobra.Command {
	flags := &tableFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the commands in a table",
		Example: `  labctl table list --table configs/tables/valves.yaml
  labctl table list --table configs/tables/pump.xml --dialect crc16`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.tablePath == "" && len(args) > 0 {
				flags.tablePath = args[0]
			}
			if flags.tablePath == "" {
				return missingFlagError(cmd, "--table")
			}
			tbl, err := loadTableFlag(flags.tablePath, flags.dialect)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.RenderTable(tbl))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newTableValidateCmd() *cobra.Command {
	flags := &tableFlags{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a table for errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.tablePath == "" && len(args) > 0 {
				flags.tablePath = args[0]
			}
			if flags.tablePath == "" {
				return missingFlagError(cmd, "--table")
			}
			tbl, err := loadTableFlag(flags.tablePath, flags.dialect)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d commands, %d reports)\n", flags.tablePath, tbl.Len(), len(tbl.Reports()))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
