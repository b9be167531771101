package command

import (
	"errors"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestTableLookup(t *testing.T) {
	table, err := New([]Record{
		{Name: "set_valve", Dialect: DialectCRC16, Code: "05"},
		{Name: "query_position", Dialect: DialectSum, Code: "3E", Kind: KindReport, Offset: intPtr(2)},
		{Name: "aspirate", Dialect: DialectASCII, Code: "P"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if table.Len() != 3 {
		t.Fatalf("Len = %d, want 3", table.Len())
	}

	s, err := table.Lookup("query_position")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if s.Function != 0x3E {
		t.Errorf("Function = 0x%02X, want 0x3E", s.Function)
	}
	if !s.IsReport() {
		t.Error("query_position should be a report command")
	}
	if off, ok := s.ResponseOffset(); !ok || off != 2 {
		t.Errorf("ResponseOffset = %d, %v; want 2, true", off, ok)
	}

	w, err := table.Lookup("set_valve")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if w.Kind != KindWrite {
		t.Errorf("Kind = %q, want write (default)", w.Kind)
	}
	if _, ok := w.ResponseOffset(); ok {
		t.Error("set_valve should have no response offset")
	}
}

func TestTableLookupNotFound(t *testing.T) {
	table, err := New([]Record{{Name: "Set_Valve", Dialect: DialectCRC16, Code: "05"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, name := range []string{"does_not_exist", "set_valve", ""} {
		_, err := table.Lookup(name)
		if !errors.Is(err, ErrCommandNotFound) {
			t.Errorf("Lookup(%q) error = %v, want ErrCommandNotFound", name, err)
		}
	}
}

func TestTableLastRecordWins(t *testing.T) {
	table, err := New([]Record{
		{Name: "run", Dialect: DialectCRC16, Code: "06", Register: 0x0001},
		{Name: "run", Dialect: DialectCRC16, Code: "06", Register: 0x0002},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("Len = %d, want 1", table.Len())
	}
	s, _ := table.Lookup("run")
	if s.Register != 0x0002 {
		t.Errorf("Register = 0x%04X, want 0x0002 from the later record", s.Register)
	}
}

func TestNewSpecValidation(t *testing.T) {
	tests := []struct {
		name    string
		record  Record
		wantErr bool
	}{
		{"valid crc16", Record{Name: "a", Dialect: DialectCRC16, Code: "05"}, false},
		{"valid 0x prefix", Record{Name: "a", Dialect: DialectSum, Code: "0x1A"}, false},
		{"valid ascii", Record{Name: "a", Dialect: DialectASCII, Code: "A"}, false},
		{"missing name", Record{Dialect: DialectCRC16, Code: "05"}, true},
		{"unknown dialect", Record{Name: "a", Dialect: "modbus", Code: "05"}, true},
		{"bad hex", Record{Name: "a", Dialect: DialectCRC16, Code: "ZZ"}, true},
		{"code too wide", Record{Name: "a", Dialect: DialectCRC16, Code: "105"}, true},
		{"empty binary code", Record{Name: "a", Dialect: DialectSum}, true},
		{"empty ascii code", Record{Name: "a", Dialect: DialectASCII}, true},
		{"ascii with newline", Record{Name: "a", Dialect: DialectASCII, Code: "A\r\n"}, true},
		{"bad kind", Record{Name: "a", Dialect: DialectCRC16, Code: "05", Kind: "query"}, true},
		{"negative offset", Record{Name: "a", Dialect: DialectSum, Code: "05", Offset: intPtr(-1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSpec(tt.record)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSpec error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewRejectsBadRecord(t *testing.T) {
	_, err := New([]Record{
		{Name: "ok", Dialect: DialectCRC16, Code: "05"},
		{Name: "bad", Dialect: DialectCRC16, Code: "nope"},
	})
	if err == nil {
		t.Fatal("expected error for malformed record")
	}
}

func TestTableNamesAndReports(t *testing.T) {
	table, err := New([]Record{
		{Name: "b", Dialect: DialectSum, Code: "01"},
		{Name: "a", Dialect: DialectSum, Code: "02", Kind: KindReport},
		{Name: "c", Dialect: DialectSum, Code: "03", Kind: KindReport},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	names := table.Names()
	if len(names) != 3 || names[0] != "a" || names[2] != "c" {
		t.Errorf("Names = %v, want sorted [a b c]", names)
	}
	reports := table.Reports()
	if len(reports) != 2 || reports[0] != "a" || reports[1] != "c" {
		t.Errorf("Reports = %v, want [a c]", reports)
	}
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect(" CRC16 ")
	if err != nil || d != DialectCRC16 {
		t.Errorf("ParseDialect = %q, %v; want crc16", d, err)
	}
	if _, err := ParseDialect("rtu"); err == nil {
		t.Error("expected error for unknown dialect")
	}
}
