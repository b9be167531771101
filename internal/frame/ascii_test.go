package frame

import (
	"errors"
	"testing"

	"github.com/tturner/labctl/internal/command"
)

func TestASCIIEncode(t *testing.T) {
	tests := []struct {
		code  string
		param Param
		want  string
	}{
		{"A", IntParam(0), "/1A0R"},
		{"A", IntParam(3000), "/1A3000R"},
		{"V", IntParam(120), "/1V120R"},
		{"?", NoParam, "/1?R"},
		{"ZR", NoParam, "/1ZRR"},
	}
	for _, tt := range tests {
		spec := mustSpec(t, command.Record{Name: "cmd", Dialect: command.DialectASCII, Code: tt.code})
		f, err := ASCII{}.Encode(spec, Request{Param: tt.param})
		if err != nil {
			t.Fatalf("Encode(%q, %v): %v", tt.code, tt.param, err)
		}
		if f.Text() != tt.want {
			t.Errorf("Encode(%q, %v): got %q, want %q", tt.code, tt.param, f.Text(), tt.want)
		}
	}
}

func TestASCIIEncodeNegative(t *testing.T) {
	spec := mustSpec(t, command.Record{Name: "move", Dialect: command.DialectASCII, Code: "A"})
	if _, err := (ASCII{}).Encode(spec, Request{Param: IntParam(-5)}); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("expected ErrInvalidParam, got %v", err)
	}
}

func TestASCIIDecode(t *testing.T) {
	spec := mustSpec(t, command.Record{Name: "position", Dialect: command.DialectASCII, Kind: command.KindReport, Code: "?"})

	tests := []struct {
		raw      string
		wantType ValueType
		wantInt  int64
	}{
		{"/0`3000R", ValueInteger, 3000},
		{"/0`3000\x03", ValueInteger, 3000},
		{"/0`0R", ValueInteger, 0},
		{"/0`R", ValueBoolean, 0},
		{"/0`\x03", ValueBoolean, 0},
	}
	for _, tt := range tests {
		res, err := ASCII{}.Decode(spec, []byte(tt.raw))
		if err != nil {
			t.Fatalf("Decode(%q): %v", tt.raw, err)
		}
		if res.Type != tt.wantType {
			t.Fatalf("Decode(%q): type %s, want %s", tt.raw, res.Type, tt.wantType)
		}
		if tt.wantType == ValueInteger && res.Int != tt.wantInt {
			t.Fatalf("Decode(%q): got %d, want %d", tt.raw, res.Int, tt.wantInt)
		}
	}
}

func TestASCIIDecodeErrors(t *testing.T) {
	spec := mustSpec(t, command.Record{Name: "position", Dialect: command.DialectASCII, Kind: command.KindReport, Code: "?"})

	tests := []struct {
		raw  string
		want error
	}{
		{"", ErrTruncatedFrame},
		{"/0`", ErrTruncatedFrame},
		{"/0@3000R", ErrUnrecognizedResponse},
		{"xx", ErrTruncatedFrame},
		{"/0`abcR", ErrUnknownResponseShape},
		{"/0`3000", ErrUnknownResponseShape},
		{"/0`3000\r\n", ErrUnknownResponseShape},
		{"/0`3000\n", ErrUnknownResponseShape},
		{"/0`3000R\r\n", ErrUnknownResponseShape},
		{"/0`7", ErrUnknownResponseShape},
	}
	for _, tt := range tests {
		if _, err := (ASCII{}).Decode(spec, []byte(tt.raw)); !errors.Is(err, tt.want) {
			t.Errorf("Decode(%q): expected %v, got %v", tt.raw, tt.want, err)
		}
	}
}
