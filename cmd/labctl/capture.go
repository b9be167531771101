package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tturner/labctl/internal/capture"
	"github.com/tturner/labctl/internal/frame"
	"github.com/tturner/labctl/internal/ui"
)

func newCaptureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Inspect pcap files recorded with --capture",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newCaptureDumpCmd())
	return cmd
}

type captureDumpFlags struct {
	tableFlags
	input      string
	devicePort uint16
	hexdump    bool
	max        int
}

func newCaptureDumpCmd() *cobra.Command {
	flags := &captureDumpFlags{}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "List recorded exchanges, decoded against a table",
		Example: `  labctl capture dump --input session.pcap
  labctl capture dump --input session.pcap --table configs/tables/selector.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.input == "" && len(args) > 0 {
				flags.input = args[0]
			}
			if flags.input == "" {
				return missingFlagError(cmd, "--input")
			}
			return runCaptureDump(cmd.OutOrStdout(), flags)
		},
	}

	flags.tableFlags.register(cmd)
	cmd.Flags().StringVar(&flags.input, "input", "", "Input pcap file (required)")
	cmd.Flags().Uint16Var(&flags.devicePort, "device-port", capture.DevicePort, "TCP port of the device side")
	cmd.Flags().BoolVar(&flags.hexdump, "hexdump", false, "Include a hex dump of every frame")
	cmd.Flags().IntVar(&flags.max, "max", 0, "Maximum exchanges to print (0 = all)")
	return cmd
}

func runCaptureDump(out io.Writer, flags *captureDumpFlags) error {
	packets, err := capture.ReadFile(flags.input, flags.devicePort)
	if err != nil {
		return err
	}
	exchanges := capture.Pair(packets)
	if flags.tablePath != "" {
		tbl, err := loadTableFlag(flags.tablePath, flags.dialect)
		if err != nil {
			return err
		}
		capture.Annotate(exchanges, tbl)
	}

	fmt.Fprintf(out, "%s: %d packets, %d exchanges\n", flags.input, len(packets), len(exchanges))
	for i, ex := range exchanges {
		if flags.max > 0 && i >= flags.max {
			break
		}
		name := "?"
		if ex.Known {
			name = ex.Spec.Name
		}
		fmt.Fprintf(out, "\n#%d %s %s\n", ex.Request.Index, ex.Request.Timestamp.Format("15:04:05.000"), name)
		fmt.Fprintf(out, "  tx %s\n", frame.FormatHex(ex.Request.Payload))
		if flags.hexdump {
			fmt.Fprint(out, indent(capture.HexDump(ex.Request.Payload, 16)))
		}
		if ex.Response == nil {
			fmt.Fprintln(out, "  rx (no reply)")
			continue
		}
		rtt := ex.Response.Timestamp.Sub(ex.Request.Timestamp)
		fmt.Fprintf(out, "  rx %s (%s)\n", frame.FormatHex(ex.Response.Payload), rtt)
		if flags.hexdump {
			fmt.Fprint(out, indent(capture.HexDump(ex.Response.Payload, 16)))
		}
		switch {
		case !ex.Known:
		case ex.Err != nil:
			fmt.Fprintf(out, "  => %s\n", ui.RenderError(ex.Err))
		default:
			fmt.Fprintf(out, "  => %s\n", ui.RenderResult(ex.Result))
		}
	}
	return nil
}

func indent(s string) string {
	if s == "" {
		return s
	}
	var out []byte
	atStart := true
	for i := 0; i < len(s); i++ {
		if atStart {
			out = append(out, "     "...)
		}
		out = append(out, s[i])
		atStart = s[i] == '\n'
	}
	return string(out)
}
