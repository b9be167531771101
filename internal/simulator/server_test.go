package simulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tturner/labctl/internal/command"
	"github.com/tturner/labctl/internal/dispatch"
	"github.com/tturner/labctl/internal/frame"
	"github.com/tturner/labctl/internal/transport"
)

func intPtr(v int) *int { return &v }

func startServer(t *testing.T, dialect command.Dialect, addr byte, opts ...ServerOption) *Server {
	t.Helper()
	srv := NewServer("127.0.0.1:0", mustDevice(t, dialect, addr), opts...)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func connect(t *testing.T, srv *Server, table *command.Table, addr byte, lineMode bool) *dispatch.Dispatcher {
	t.Helper()
	opts := transport.DefaultOptions()
	opts.LineMode = lineMode
	opts.Timeout = 500 * time.Millisecond
	tr, err := transport.DialTCP(context.Background(), srv.Addr(), opts)
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return dispatch.New(table, tr, dispatch.WithAddress(addr), dispatch.WithTurnaround(time.Millisecond))
}

func mustTable(t *testing.T, records []command.Record) *command.Table {
	t.Helper()
	tbl, err := command.New(records)
	if err != nil {
		t.Fatalf("command.New: %v", err)
	}
	return tbl
}

func TestServerCRC16RoundTrip(t *testing.T) {
	srv := startServer(t, command.DialectCRC16, 0x01)
	tbl := mustTable(t, []command.Record{
		{Name: "open", Dialect: command.DialectCRC16, Code: "05"},
		{Name: "status", Dialect: command.DialectCRC16, Kind: command.KindReport, Code: "01", Quantity: 0x20},
	})
	d := connect(t, srv, tbl, 0x01, false)
	ctx := context.Background()

	outcomes, err := d.ExecuteMany(ctx, "open", []uint16{0, 2}, frame.IntParam(1))
	if err != nil {
		t.Fatalf("ExecuteMany: %v", err)
	}
	for _, o := range outcomes {
		if o.Err != nil {
			t.Fatalf("target %d: %v", o.Target, o.Err)
		}
	}

	res, err := d.Execute(ctx, "status", frame.NoParam)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if res.Type != frame.ValueBits {
		t.Fatalf("status type = %s", res.Type)
	}
	if got := res.BitString()[:4]; got != "1010" {
		t.Fatalf("status bits = %s, want 1010...", got)
	}
}

func TestServerSumRoundTrip(t *testing.T) {
	srv := startServer(t, command.DialectSum, 0x00)
	tbl := mustTable(t, []command.Record{
		{Name: "switch", Dialect: command.DialectSum, Code: "44"},
		{Name: "position", Dialect: command.DialectSum, Kind: command.KindReport, Code: "3E", Offset: intPtr(2)},
		{Name: "pass", Dialect: command.DialectSum, Kind: command.KindReport, Code: "3F", Offset: intPtr(3)},
	})
	d := connect(t, srv, tbl, 0x00, false)
	ctx := context.Background()

	if _, err := d.Execute(ctx, "switch", frame.IntParam(3)); err != nil {
		t.Fatalf("switch: %v", err)
	}
	pos, err := d.Execute(ctx, "position", frame.NoParam)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.Int != 3 {
		t.Fatalf("position = %d, want 3", pos.Int)
	}
	pass, err := d.Execute(ctx, "pass", frame.NoParam)
	if err != nil {
		t.Fatalf("pass: %v", err)
	}
	if pass.Int != 1 {
		t.Fatalf("pass = %d, want 1", pass.Int)
	}
}

func TestServerSum16RoundTrip(t *testing.T) {
	srv := startServer(t, command.DialectSum16, 0x00)
	tbl := mustTable(t, []command.Record{
		{Name: "set_temp", Dialect: command.DialectSum16, Code: "05"},
		{Name: "read_temp", Dialect: command.DialectSum16, Kind: command.KindReport, Code: "A0"},
	})
	d := connect(t, srv, tbl, 0x00, false)
	ctx := context.Background()

	if _, err := d.Execute(ctx, "set_temp", frame.IntParam(100)); err != nil {
		t.Fatalf("set_temp: %v", err)
	}
	res, err := d.Execute(ctx, "read_temp", frame.NoParam)
	if err != nil {
		t.Fatalf("read_temp: %v", err)
	}
	if res.Type != frame.ValueRaw || len(res.Raw) != 2 || res.Raw[1] != 100 {
		t.Fatalf("read_temp = %v", res)
	}
}

func TestServerASCIIRoundTrip(t *testing.T) {
	srv := startServer(t, command.DialectASCII, 0x01)
	tbl := mustTable(t, []command.Record{
		{Name: "move", Dialect: command.DialectASCII, Code: "A"},
		{Name: "position", Dialect: command.DialectASCII, Kind: command.KindReport, Code: "?"},
	})
	d := connect(t, srv, tbl, 0x01, true)
	ctx := context.Background()

	res, err := d.Execute(ctx, "move", frame.IntParam(1500))
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if res.Type != frame.ValueBoolean || !res.Bool {
		t.Fatalf("move ack = %v", res)
	}
	res, err = d.Execute(ctx, "position", frame.NoParam)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if res.Int != 1500 {
		t.Fatalf("position = %d, want 1500", res.Int)
	}
}

func TestServerChunkedWrites(t *testing.T) {
	srv := startServer(t, command.DialectSum, 0x00, WithFaults(Faults{ChunkWrites: true}))
	tbl := mustTable(t, []command.Record{
		{Name: "position", Dialect: command.DialectSum, Kind: command.KindReport, Code: "3E", Offset: intPtr(2)},
	})
	d := connect(t, srv, tbl, 0x00, false)

	res, err := d.Execute(context.Background(), "position", frame.NoParam)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if res.Int != 1 {
		t.Fatalf("position = %d, want 1", res.Int)
	}
}

func TestServerFaultsSurfaceAsErrors(t *testing.T) {
	srv := startServer(t, command.DialectCRC16, 0x01, WithFaults(Faults{CorruptEveryN: 1}))
	tbl := mustTable(t, []command.Record{
		{Name: "open", Dialect: command.DialectCRC16, Code: "05"},
	})
	d := connect(t, srv, tbl, 0x01, false)

	_, err := d.Execute(context.Background(), "open", frame.IntParam(1))
	if !errors.Is(err, frame.ErrChecksumMismatch) {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}
}

func TestServerDroppedReplyTimesOut(t *testing.T) {
	srv := startServer(t, command.DialectCRC16, 0x01, WithFaults(Faults{DropEveryN: 1}))
	tbl := mustTable(t, []command.Record{
		{Name: "open", Dialect: command.DialectCRC16, Code: "05"},
	})
	d := connect(t, srv, tbl, 0x01, false)

	_, err := d.Execute(context.Background(), "open", frame.IntParam(1))
	if !errors.Is(err, transport.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if srv.Device().Requests() != 1 {
		t.Fatalf("device should still have processed the request")
	}
}

func TestServerStopIsIdempotent(t *testing.T) {
	srv := NewServer("127.0.0.1:0", mustDevice(t, command.DialectSum, 0))
	if srv.Addr() != "" {
		t.Fatalf("Addr before Start should be empty")
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
