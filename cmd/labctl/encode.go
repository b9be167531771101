package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tturner/labctl/internal/dispatch"
	labctlerrors "github.com/tturner/labctl/internal/errors"
	"github.com/tturner/labctl/internal/frame"
	"github.com/tturner/labctl/internal/ui"
)

type encodeFlags struct {
	tableFlags
	command string
	param   string
	target  uint16
	address uint8
	payload string
	copy    bool
}

func newEncodeCmd() *cobra.Command {
	flags := &encodeFlags{}

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Print the frame a command would send (no I/O)",
		Long: `Encode a command from a table and print the request frame as hex.
Nothing is sent; use this to check tables or to feed another tool.`,
		Example: `  # Coil 2 on for an RTU valve board
  labctl encode --table configs/tables/valves.yaml --command valve_on --target 2 --param on

  # Move a syringe pump and copy the line to the clipboard
  labctl encode --table configs/tables/syringe.yaml --command move --param 3000 --copy`,
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
			return runEncode(cmd, flags)
		},
	}

	flags.tableFlags.register(cmd)
	cmd.Flags().StringVar(&flags.command, "command", "", "Command name (required)")
	cmd.Flags().StringVar(&flags.param, "param", "", "Parameter: integer, 0x hex, on/off")
	cmd.Flags().Uint16Var(&flags.target, "target", 0, "Actuator index added to the command register")
	cmd.Flags().Uint8Var(&flags.address, "address", 1, "Device address")
	cmd.Flags().StringVar(&flags.payload, "payload", "", "Explicit payload bytes as hex (sum16 only)")
	cmd.Flags().BoolVar(&flags.copy, "copy", false, "Copy the hex frame to the clipboard")
	return cmd
}

func runEncode(cmd *cobra.Command, flags *encodeFlags) error {
	tbl, err := loadTableFlag(flags.tablePath, flags.dialect)
	if err != nil {
		return err
	}
	param, err := frame.ParseParam(flags.param)
	if err != nil {
		return err
	}
	req := frame.Request{Address: flags.address, Target: flags.target, Param: param}
	if flags.payload != "" {
		if req.Payload, err = frame.ParseHex(flags.payload); err != nil {
			return fmt.Errorf("--payload: %w", err)
		}
	}

	d := dispatch.New(tbl, nil)
	f, err := d.Encode(flags.command, req)
	if err != nil {
		return labctlerrors.Wrap(err, flags.command, "", flags.tablePath)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ui.RenderFrame("tx", f))
	if flags.copy {
		if err := ui.CopyToClipboard(f.Hex()); err != nil {
			return fmt.Errorf("copy to clipboard: %w", err)
		}
		fmt.Fprintln(out, "Frame copied to clipboard")
	}
	return nil
}
