package main

import (
	"fmt"

	"github.com/spf13/cobra"

	labctlerrors "github.com/tturner/labctl/internal/errors"
	"github.com/tturner/labctl/internal/frame"
	"github.com/tturner/labctl/internal/ui"
)

type decodeFlags struct {
	tableFlags
	command string
	hex     string
	text    string
}

func newDecodeCmd() *cobra.Command {
	flags := &decodeFlags{}

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a response frame for a command",
		Example: `  # Selector position report
  labctl decode --table configs/tables/selector.yaml --command position --hex "CC 00 04 01 00 DD AE 01"

  # Syringe pump reply
  labctl decode --table configs/tables/syringe.yaml --command position --text '/0` + "`" + `3000R'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.tablePath == "" {
				return missingFlagError(cmd, "--table")
			}
			if flags.command == "" {
				return missingFlagError(cmd, "--command")
			}
			if flags.hex == "" && flags.text == "" {
				return missingFlagError(cmd, "--hex or --text")
			}
			return runDecode(cmd, flags)
		},
	}

	flags.tableFlags.register(cmd)
	cmd.Flags().StringVar(&flags.command, "command", "", "Command name (required)")
	cmd.Flags().StringVar(&flags.hex, "hex", "", "Response bytes as hex")
	cmd.Flags().StringVar(&flags.text, "text", "", "Response as text (ascii dialect)")
	return cmd
}

func runDecode(cmd *cobra.Command, flags *decodeFlags) error {
	tbl, err := loadTableFlag(flags.tablePath, flags.dialect)
	if err != nil {
		return err
	}
	spec, err := tbl.Lookup(flags.command)
	if err != nil {
		return labctlerrors.WrapCommandError(err, flags.command, flags.tablePath)
	}

	raw := []byte(flags.text)
	if flags.hex != "" {
		if raw, err = frame.ParseHex(flags.hex); err != nil {
			return fmt.Errorf("--hex: %w", err)
		}
	}

	res, err := frame.Decode(spec, raw)
	if err != nil {
		return labctlerrors.WrapFrameError(err, flags.command)
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.RenderResult(res))
	return nil
}
