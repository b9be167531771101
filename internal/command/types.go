// Package command holds the command table: the mapping from a symbolic
// command name to the dialect-specific metadata needed to encode it.
package command

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect identifies the framing convention a device family speaks.
type Dialect string

const (
	DialectCRC16 Dialect = "crc16" // RTU-style frame with CRC-16
	DialectSum   Dialect = "sum"   // "CC…DD" frame with 8-bit additive checksum
	DialectSum16 Dialect = "sum16" // "CC…DD" frame with 16-bit additive checksum
	DialectASCII Dialect = "ascii" // "/1<code><param>R" line protocol
)

// Dialects lists every supported dialect.
var Dialects = []Dialect{DialectCRC16, DialectSum, DialectSum16, DialectASCII}

// ParseDialect resolves a dialect name, case-insensitively.
func ParseDialect(s string) (Dialect, error) {
	d := Dialect(strings.ToLower(strings.TrimSpace(s)))
	if d.Valid() {
		return d, nil
	}
	return "", fmt.Errorf("unknown dialect %q (want crc16, sum, sum16 or ascii)", s)
}

// Valid reports whether d is a known dialect.
func (d Dialect) Valid() bool {
	switch d {
	case DialectCRC16, DialectSum, DialectSum16, DialectASCII:
		return true
	default:
		return false
	}
}

// Binary reports whether the dialect carries a hex function code.
func (d Dialect) Binary() bool {
	return d == DialectCRC16 || d == DialectSum || d == DialectSum16
}

// Kind separates commands that change device state from those that report it.
type Kind string

const (
	KindWrite  Kind = "write"
	KindReport Kind = "report"
)

// Record is one entry of a command-table source, as produced by a loader.
type Record struct {
	Name     string  `yaml:"name"`
	Dialect  Dialect `yaml:"dialect,omitempty"`
	Kind     Kind    `yaml:"type,omitempty"`
	Code     string  `yaml:"code"`
	Register uint16  `yaml:"register,omitempty"` // CRC16: register or actuator base address
	Quantity uint16  `yaml:"quantity,omitempty"` // CRC16 reads: default data word
	Offset   *int    `yaml:"offset,omitempty"`   // SUM reports: byte offset of the value
}

// Spec is the resolved, validated metadata for one command.
// Specs are values; a table never hands out references into its storage.
type Spec struct {
	Name     string
	Dialect  Dialect
	Kind     Kind
	Code     string
	Function byte // parsed Code for binary dialects
	Register uint16
	Quantity uint16

	offset    int
	hasOffset bool
}

// ResponseOffset returns the configured response value offset, if any.
func (s Spec) ResponseOffset() (int, bool) {
	return s.offset, s.hasOffset
}

// IsReport reports whether the command queries device state.
func (s Spec) IsReport() bool {
	return s.Kind == KindReport
}

// String returns a compact description of the spec.
func (s Spec) String() string {
	if s.Dialect.Binary() {
		return fmt.Sprintf("%s (%s %s fc=0x%02X reg=0x%04X)", s.Name, s.Dialect, s.Kind, s.Function, s.Register)
	}
	return fmt.Sprintf("%s (%s %s code=%q)", s.Name, s.Dialect, s.Kind, s.Code)
}

// NewSpec validates a record and resolves it into a Spec.
func NewSpec(r Record) (Spec, error) {
	if r.Name == "" {
		return Spec{}, fmt.Errorf("missing name")
	}
	if !r.Dialect.Valid() {
		return Spec{}, fmt.Errorf("command %q: unknown dialect %q", r.Name, r.Dialect)
	}
	kind := r.Kind
	if kind == "" {
		kind = KindWrite
	}
	if kind != KindWrite && kind != KindReport {
		return Spec{}, fmt.Errorf("command %q: unknown type %q (want write or report)", r.Name, r.Kind)
	}

	s := Spec{
		Name:     r.Name,
		Dialect:  r.Dialect,
		Kind:     kind,
		Code:     strings.TrimSpace(r.Code),
		Register: r.Register,
		Quantity: r.Quantity,
	}

	if s.Dialect.Binary() {
		fc, err := parseHexByte(s.Code)
		if err != nil {
			return Spec{}, fmt.Errorf("command %q: code: %w", r.Name, err)
		}
		s.Function = fc
	} else {
		if s.Code == "" {
			return Spec{}, fmt.Errorf("command %q: missing code", r.Name)
		}
		if strings.ContainsAny(s.Code, "\r\n") {
			return Spec{}, fmt.Errorf("command %q: code must not contain line terminators", r.Name)
		}
	}

	if r.Offset != nil {
		if *r.Offset < 0 {
			return Spec{}, fmt.Errorf("command %q: offset must be >= 0", r.Name)
		}
		s.offset = *r.Offset
		s.hasOffset = true
	}
	return s, nil
}

// parseHexByte parses a one-byte hex code such as "05", "0x05" or "C".
func parseHexByte(s string) (byte, error) {
	v := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if v == "" {
		return 0, fmt.Errorf("missing function code")
	}
	n, err := strconv.ParseUint(v, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid function code %q", s)
	}
	return byte(n), nil
}
