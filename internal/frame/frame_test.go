package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/tturner/labctl/internal/command"
)

func TestFrameImmutable(t *testing.T) {
	src := []byte{0x01, 0x02}
	f := NewFrame(src)
	src[0] = 0xFF
	out := f.Bytes()
	out[1] = 0xFF
	if !bytes.Equal(f.Bytes(), []byte{0x01, 0x02}) {
		t.Fatalf("frame mutated: %s", f.Hex())
	}
}

func TestParseParam(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		set     bool
		wantErr bool
	}{
		{"", 0, false, false},
		{"on", 1, true, false},
		{"OFF", 0, true, false},
		{"true", 1, true, false},
		{"120", 120, true, false},
		{"0x78", 120, true, false},
		{"abc", 0, false, true},
	}
	for _, tt := range tests {
		p, err := ParseParam(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseParam(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseParam(%q): %v", tt.in, err)
		}
		v, set := p.Value()
		if v != tt.want || set != tt.set {
			t.Errorf("ParseParam(%q): got (%d, %v), want (%d, %v)", tt.in, v, set, tt.want, tt.set)
		}
	}
}

func TestParseHex(t *testing.T) {
	for _, in := range []string{"01 05 00 00", "01050000", "0x01050000", "01:05:00:00", "01-05-00-00"} {
		got, err := ParseHex(in)
		if err != nil {
			t.Fatalf("ParseHex(%q): %v", in, err)
		}
		if !bytes.Equal(got, []byte{0x01, 0x05, 0x00, 0x00}) {
			t.Errorf("ParseHex(%q): got % X", in, got)
		}
	}
	if _, err := ParseHex("0G"); err == nil {
		t.Fatalf("expected error for invalid hex")
	}
	if got := FormatHex([]byte{0xcd, 0x0a}); got != "CD 0A" {
		t.Fatalf("FormatHex: got %q", got)
	}
}

func TestCodecFor(t *testing.T) {
	for _, d := range command.Dialects {
		c, err := For(d)
		if err != nil {
			t.Fatalf("For(%s): %v", d, err)
		}
		if c.Dialect() != d {
			t.Fatalf("For(%s): codec dialect %s", d, c.Dialect())
		}
	}
	if _, err := For("bogus"); !errors.Is(err, ErrUnknownDialect) {
		t.Fatalf("expected ErrUnknownDialect, got %v", err)
	}
}

func TestRoundTripAllDialects(t *testing.T) {
	tests := []struct {
		rec   command.Record
		param Param
	}{
		{command.Record{Name: "open", Dialect: command.DialectCRC16, Code: "05"}, BoolParam(true)},
		{command.Record{Name: "speed", Dialect: command.DialectCRC16, Code: "06", Register: 0x20}, IntParam(120)},
		{command.Record{Name: "switch", Dialect: command.DialectSum, Code: "44"}, IntParam(3)},
		{command.Record{Name: "heat", Dialect: command.DialectSum16, Code: "05"}, IntParam(9)},
	}
	for _, tt := range tests {
		spec := mustSpec(t, tt.rec)
		f, err := Encode(spec, Request{Address: 0x01, Param: tt.param})
		if err != nil {
			t.Fatalf("%s: Encode: %v", spec.Name, err)
		}
		// Write commands echo the request.
		res, err := Decode(spec, f.Bytes())
		if err != nil {
			t.Fatalf("%s: Decode(%s): %v", spec.Name, f.Hex(), err)
		}
		if res.Type != ValueBoolean || !res.Bool {
			t.Fatalf("%s: expected Boolean(true), got %v", spec.Name, res)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	spec := mustSpec(t, command.Record{Name: "open", Dialect: command.DialectCRC16, Code: "05"})
	_, err := Decode(spec, []byte{0x01})
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if fe.Op != "decode" || fe.Command != "open" {
		t.Fatalf("unexpected error fields: %+v", fe)
	}
	if got := err.Error(); got != "crc16 decode open: truncated frame: 1 bytes (minimum 5)" {
		t.Fatalf("message: got %q", got)
	}
}
