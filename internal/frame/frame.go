package frame

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/tturner/labctl/internal/command"
)

// Frame is one complete request or response unit. Frames are immutable:
// the constructor and every accessor copy.
type Frame struct {
	b []byte
}

// NewFrame returns a frame holding a copy of b.
func NewFrame(b []byte) Frame {
	return Frame{b: cloneBytes(b)}
}

// Bytes returns a copy of the frame contents.
func (f Frame) Bytes() []byte {
	return cloneBytes(f.b)
}

// Len returns the frame length in bytes.
func (f Frame) Len() int {
	return len(f.b)
}

// Hex returns the frame as space-separated uppercase hex.
func (f Frame) Hex() string {
	return FormatHex(f.b)
}

// Text returns the frame contents as a string (ASCII dialect lines).
func (f Frame) Text() string {
	return string(f.b)
}

// Request carries the per-call encoding inputs.
type Request struct {
	Address byte   // device/slave address
	Target  uint16 // actuator index, added to the command's register
	Param   Param
	Payload []byte // sum16 only: explicit parameter bytes
}

// Param is an optional integer command argument.
type Param struct {
	value int64
	set   bool
}

// NoParam is the absent parameter.
var NoParam = Param{}

// IntParam returns a parameter holding v.
func IntParam(v int64) Param {
	return Param{value: v, set: true}
}

// BoolParam maps true to 1 and false to 0.
func BoolParam(b bool) Param {
	if b {
		return IntParam(1)
	}
	return IntParam(0)
}

// ParseParam parses a CLI/config parameter: empty means absent; on/off and
// true/false map to 1/0; anything else is an integer in Go syntax
// ("120", "0x78").
func ParseParam(s string) (Param, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return NoParam, nil
	case "on", "true", "open":
		return IntParam(1), nil
	case "off", "false", "close":
		return IntParam(0), nil
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return NoParam, fmt.Errorf("invalid parameter %q", s)
	}
	return IntParam(v), nil
}

// Value returns the parameter value and whether it is set.
func (p Param) Value() (int64, bool) {
	return p.value, p.set
}

// IsSet reports whether the parameter is present.
func (p Param) IsSet() bool {
	return p.set
}

func (p Param) String() string {
	if !p.set {
		return "-"
	}
	return strconv.FormatInt(p.value, 10)
}

// ValueType tags the variant held by a Result.
type ValueType int

const (
	ValueInteger ValueType = iota // position, speed, pass index
	ValueBoolean                  // acknowledged write
	ValueBits                     // per-actuator status
	ValueRaw                      // successful response with no known shape
)

func (t ValueType) String() string {
	switch t {
	case ValueInteger:
		return "integer"
	case ValueBoolean:
		return "boolean"
	case ValueBits:
		return "bits"
	case ValueRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Result is a decoded response. It is only produced from frames that passed
// their dialect's integrity check.
type Result struct {
	Command string
	Kind    command.Kind
	Type    ValueType
	Int     int64
	Bool    bool
	Bits    []bool
	Raw     []byte
}

// BitString renders Bits as a string of '0'/'1', actuator 0 first.
func (r Result) BitString() string {
	var sb strings.Builder
	sb.Grow(len(r.Bits))
	for _, b := range r.Bits {
		if b {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// Value returns the held variant as a plain Go value.
func (r Result) Value() any {
	switch r.Type {
	case ValueInteger:
		return r.Int
	case ValueBoolean:
		return r.Bool
	case ValueBits:
		return r.BitString()
	default:
		return FormatHex(r.Raw)
	}
}

func (r Result) String() string {
	return fmt.Sprintf("%s %s=%v", r.Command, r.Type, r.Value())
}

func newResult(spec command.Spec, t ValueType) Result {
	return Result{Command: spec.Name, Kind: spec.Kind, Type: t}
}

// FormatHex renders b as space-separated uppercase hex ("01 05 00 00").
func FormatHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(b) * 3)
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", c)
	}
	return sb.String()
}

// ParseHex decodes hex text, ignoring whitespace, ':' and '-' separators
// and an optional 0x prefix.
func ParseHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':', '-':
			return -1
		}
		return r
	}, s)
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("hex decode: %w", err)
	}
	return out, nil
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
