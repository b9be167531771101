package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/tturner/labctl/internal/command"
	"github.com/tturner/labctl/internal/simulator"
)

const (
	valvesTable   = "../../configs/tables/valves.yaml"
	selectorTable = "../../configs/tables/selector.yaml"
	syringeTable  = "../../configs/tables/syringe.yaml"
	pumpTable     = "../../configs/tables/pump.xml"
)

// runCmd executes cmd with args and returns stdout.
func runCmd(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRequiredFlagsErrors(t *testing.T) {
	tests := []struct {
		name    string
		cmd     func() *cobra.Command
		args    []string
		wantErr string
	}{
		{"encode missing table", newEncodeCmd, nil, "required flag --table not set"},
		{"encode missing command", newEncodeCmd, []string{"--table", valvesTable}, "required flag --command not set"},
		{"decode missing bytes", newDecodeCmd, []string{"--table", valvesTable, "--command", "status"}, "required flag --hex or --text not set"},
		{"exec missing command", newExecCmd, nil, "required flag --command not set"},
		{"poll missing command", newPollCmd, nil, "required flag --command not set"},
		{"simulate missing dialect", newSimulateCmd, nil, "required flag --dialect not set"},
		{"capture dump missing input", newCaptureDumpCmd, nil, "required flag --input not set"},
		{"config init missing output", newConfigInitCmd, nil, "required flag --output not set"},
		{"table list missing table", newTableListCmd, nil, "required flag --table not set"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCmd(t, tt.cmd(), tt.args...)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error: got %q want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestMissingFlagHint(t *testing.T) {
	cmd := newEncodeCmd()
	var stderr bytes.Buffer
	cmd.SetOut(io.Discard)
	cmd.SetErr(&stderr)
	cmd.SetArgs(nil)
	err := cmd.Execute()

	var fe *flagError
	if !errors.As(err, &fe) {
		t.Fatalf("error %v is not a flagError", err)
	}
	if fe.flag != "--table" {
		t.Fatalf("flag = %q, want --table", fe.flag)
	}
	if !strings.Contains(err.Error(), `"encode --help"`) {
		t.Fatalf("error %q has no help hint", err.Error())
	}
	if !strings.Contains(stderr.String(), "--table") {
		t.Fatalf("stderr has no flag summary: %q", stderr.String())
	}
}

func TestHelpArgument(t *testing.T) {
	for _, arg := range []string{"help", "HELP", "?"} {
		t.Run(arg, func(t *testing.T) {
			out, err := runCmd(t, newEncodeCmd(), arg)
			if err != nil {
				t.Fatalf("encode %s: %v", arg, err)
			}
			if !strings.Contains(out, "--table") {
				t.Fatalf("encode %s printed no help: %q", arg, out)
			}
		})
	}
}

func TestVersionOutput(t *testing.T) {
	out, err := runCmd(t, newRootCmd(), "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "labctl version "+version) {
		t.Fatalf("unexpected version output: %q", out)
	}
}

func TestEncodeOutput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "rtu coil on",
			args: []string{"--table", valvesTable, "--command", "valve_on", "--target", "2", "--param", "on"},
			want: "01 05 00 02 FF 00 2D FA",
		},
		{
			name: "sum query",
			args: []string{"--table", selectorTable, "--command", "position", "--address", "0"},
			want: "CC 00 3E 00 00 DD E7 01",
		},
		{
			name: "ascii move",
			args: []string{"--table", syringeTable, "--command", "move", "--param", "3000"},
			want: `"/1A3000R"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCmd(t, newEncodeCmd(), tt.args...)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Fatalf("output %q does not contain %q", out, tt.want)
			}
		})
	}
}

func TestEncodeUnknownCommand(t *testing.T) {
	_, err := runCmd(t, newEncodeCmd(), "--table", valvesTable, "--command", "nope")
	if err == nil {
		t.Fatalf("expected error for unknown command")
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Fatalf("error should name the command: %v", err)
	}
}

func TestDecodeOutput(t *testing.T) {
	out, err := runCmd(t, newDecodeCmd(), "--table", selectorTable, "--command", "position", "--hex", "CC 00 04 01 00 DD AE 01")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(out, "position") || !strings.Contains(out, " 4") {
		t.Fatalf("unexpected decode output: %q", out)
	}

	_, err = runCmd(t, newDecodeCmd(), "--table", selectorTable, "--command", "position", "--hex", "CC 00 04 01 00 DD AF 01")
	if err == nil || !strings.Contains(strings.ToLower(err.Error()), "checksum") {
		t.Fatalf("expected checksum error, got %v", err)
	}
}

func TestTableListAndValidate(t *testing.T) {
	out, err := runCmd(t, newTableCmd(), "list", "--table", valvesTable)
	if err != nil {
		t.Fatalf("table list: %v", err)
	}
	for _, name := range []string{"valve_on", "status", "0x05"} {
		if !strings.Contains(out, name) {
			t.Fatalf("table list output missing %q:\n%s", name, out)
		}
	}

	out, err = runCmd(t, newTableCmd(), "validate", "--table", pumpTable, "--dialect", "crc16")
	if err != nil {
		t.Fatalf("table validate: %v", err)
	}
	if !strings.Contains(out, "OK (4 commands, 2 reports)") {
		t.Fatalf("unexpected validate output: %q", out)
	}

	if _, err := runCmd(t, newTableCmd(), "validate", "--table", pumpTable); err == nil {
		t.Fatalf("XML table without dialect should fail validation")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("version: 1\ndialect: crc16\ncommands:\n  - name: x\n    code: ZZ\n"), 0644); err != nil {
		t.Fatalf("write table: %v", err)
	}
	if _, err := runCmd(t, newTableCmd(), "validate", "--table", bad); err == nil {
		t.Fatalf("invalid code should fail validation")
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labctl.yaml")

	if _, err := runCmd(t, newConfigCmd(), "init", "--output", path); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := runCmd(t, newConfigCmd(), "init", "--output", path); err == nil {
		t.Fatalf("second init without --force should fail")
	}
	if _, err := runCmd(t, newConfigCmd(), "init", "--output", path, "--force"); err != nil {
		t.Fatalf("config init --force: %v", err)
	}

	out, err := runCmd(t, newConfigCmd(), "validate", "--config", "../../configs/labctl.yaml")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "OK (5 devices)") {
		t.Fatalf("unexpected validate output: %q", out)
	}
}

// writeSessionConfig writes a one-device config pointing at addr.
func writeSessionConfig(t *testing.T, addr, table string, extra string) string {
	t.Helper()
	abs, err := filepath.Abs(table)
	if err != nil {
		t.Fatalf("abs: %v", err)
	}
	path := filepath.Join(t.TempDir(), "labctl.yaml")
	data := "log:\n  level: silent\n" + extra + "devices:\n" +
		"  - name: bench\n" +
		"    transport: tcp://" + addr + "\n" +
		"    table: " + abs + "\n" +
		"    address: 1\n" +
		"    turnaround_ms: 1\n" +
		"    timeout_ms: 500\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func startSimulator(t *testing.T, dialect command.Dialect) *simulator.Server {
	t.Helper()
	dev, err := simulator.NewDevice(dialect, 1)
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	srv := simulator.NewServer("127.0.0.1:0", dev)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func TestExecAgainstSimulator(t *testing.T) {
	srv := startSimulator(t, command.DialectCRC16)
	capturePath := filepath.Join(t.TempDir(), "session.pcap")
	cfgPath := writeSessionConfig(t, srv.Addr(), valvesTable, "")

	out, err := runCmd(t, newExecCmd(), "--config", cfgPath, "--command", "valve_on", "--param", "on", "--targets", "0-2", "--capture", capturePath)
	if err != nil {
		t.Fatalf("exec valve_on: %v", err)
	}
	if !strings.Contains(out, "3 ok, 0 failed") {
		t.Fatalf("unexpected exec output: %q", out)
	}
	for i := 0; i < 3; i++ {
		if !srv.Device().Coil(i) {
			t.Fatalf("coil %d should be on", i)
		}
	}

	out, err = runCmd(t, newExecCmd(), "--config", cfgPath, "--command", "status")
	if err != nil {
		t.Fatalf("exec status: %v", err)
	}
	if !strings.Contains(out, "status") {
		t.Fatalf("unexpected status output: %q", out)
	}

	out, err = runCmd(t, newCaptureCmd(), "dump", "--input", capturePath, "--table", valvesTable)
	if err != nil {
		t.Fatalf("capture dump: %v", err)
	}
	if !strings.Contains(out, "3 exchanges") || !strings.Contains(out, "valve_on") {
		t.Fatalf("unexpected dump output: %q", out)
	}
}

func TestExecUnknownDevice(t *testing.T) {
	srv := startSimulator(t, command.DialectCRC16)
	cfgPath := writeSessionConfig(t, srv.Addr(), valvesTable, "")
	if _, err := runCmd(t, newExecCmd(), "--config", cfgPath, "--device", "missing", "--command", "status"); err == nil {
		t.Fatalf("expected error for unknown device")
	}
}

func TestPollWritesMetrics(t *testing.T) {
	srv := startSimulator(t, command.DialectCRC16)
	cfgPath := writeSessionConfig(t, srv.Addr(), valvesTable, "")
	metricsPath := filepath.Join(t.TempDir(), "metrics.csv")

	out, err := runCmd(t, newPollCmd(), "--config", cfgPath, "--command", "status", "--interval", "5ms", "--count", "3", "--metrics-file", metricsPath, "--quiet")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if !strings.Contains(out, "Total Operations: 3") {
		t.Fatalf("unexpected poll summary: %q", out)
	}
	data, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 4 {
		t.Fatalf("metrics file has %d lines, want header + 3", lines)
	}
}
