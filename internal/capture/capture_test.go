package capture

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func TestRecorderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchange.pcap")
	rec, err := Create(path, Endpoints{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec.now = func() time.Time { return base }

	tx := []byte{0x01, 0x05, 0x00, 0x00, 0xFF, 0x00, 0x8C, 0x3A}
	rec.RecordTx(tx)
	rec.RecordRx(tx)
	rec.RecordTx(nil)
	if rec.Count() != 2 {
		t.Fatalf("Count = %d, want 2", rec.Count())
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	packets, err := ReadFile(path, 0)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(packets) != 2 {
		t.Fatalf("got %d packets, want 2", len(packets))
	}
	if packets[0].Direction != DirectionTx || packets[1].Direction != DirectionRx {
		t.Fatalf("directions = %s, %s", packets[0].Direction, packets[1].Direction)
	}
	if !bytes.Equal(packets[0].Payload, tx) {
		t.Fatalf("payload = % X, want % X", packets[0].Payload, tx)
	}
	if packets[0].SrcIP != "192.168.100.10" || packets[0].DstPort != DevicePort {
		t.Fatalf("tx flow = %s:%d -> %d", packets[0].SrcIP, packets[0].SrcPort, packets[0].DstPort)
	}
	if !packets[1].Timestamp.Equal(base) {
		t.Fatalf("timestamp = %v, want %v", packets[1].Timestamp, base)
	}
}

func TestRecorderAfterClose(t *testing.T) {
	var buf bytes.Buffer
	rec, err := NewRecorder(nopCloser{&buf}, Endpoints{DevicePort: 9000})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	rec.RecordTx([]byte("/1?R"))
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	rec.RecordTx([]byte("/1?R"))
	if rec.Count() != 1 {
		t.Fatalf("Count = %d, want 1", rec.Count())
	}

	packets, err := Read(bytes.NewReader(buf.Bytes()), 9000)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(packets) != 1 || string(packets[0].Payload) != "/1?R" {
		t.Fatalf("packets = %+v", packets)
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	if _, err := Read(strings.NewReader("not a pcap"), 0); err == nil {
		t.Fatalf("expected header error")
	}
}

func TestHexDump(t *testing.T) {
	got := HexDump([]byte("/0`12\x03"), 4)
	want := "0000: 2f 30 60 31  |/0`1|\n0004: 32 03        |2.|\n"
	if got != want {
		t.Fatalf("HexDump =\n%q\nwant\n%q", got, want)
	}
}
