package frame

// "CC…DD" dialects.
//
// sum:   [CC] [addr] [fc] [param] [00] [DD] [sum8] [01]
// sum16: [CC] [addr] [fc] [payload...] [DD] [sum lo] [sum hi]

import (
	"github.com/tturner/labctl/internal/checksum"
	"github.com/tturner/labctl/internal/command"
)

// Frame markers.
const (
	SumHeader  byte = 0xCC
	SumTail    byte = 0xDD
	SumTrailer byte = 0x01
)

// Sum framing constants.
const (
	SumFrameSize      = 8
	sumChecksumIndex  = 6
	Sum16MinFrameSize = 6 // header + addr + fc + tail + sum(2)
)

// Sum is the sum dialect codec.
type Sum struct{}

// Dialect returns command.DialectSum.
func (Sum) Dialect() command.Dialect { return command.DialectSum }

// Encode builds the fixed 8-byte frame. An absent parameter encodes as 0x00.
func (Sum) Encode(spec command.Spec, req Request) (Frame, error) {
	p, err := paramByte(spec, req.Param)
	if err != nil {
		return Frame{}, err
	}
	buf := make([]byte, 0, SumFrameSize)
	buf = append(buf, SumHeader, req.Address, spec.Function, p, 0x00, SumTail)
	buf = append(buf, checksum.Sum8(buf), SumTrailer)
	return Frame{b: buf}, nil
}

// Decode checks header, tail, checksum and trailer. Reports read a single byte at
// the command's configured offset; writes decode to Boolean(true).
func (Sum) Decode(spec command.Spec, raw []byte) (Result, error) {
	if len(raw) < SumFrameSize {
		return Result{}, errTooShort(spec, len(raw), SumFrameSize)
	}
	if raw[0] != SumHeader {
		return Result{}, decodeError(spec, ErrUnrecognizedResponse, "header 0x%02X, want 0x%02X", raw[0], SumHeader)
	}
	if len(raw) != SumFrameSize {
		return Result{}, decodeError(spec, ErrLengthMismatch, "%d bytes, want %d", len(raw), SumFrameSize)
	}
	if raw[sumChecksumIndex-1] != SumTail {
		return Result{}, decodeError(spec, ErrUnrecognizedResponse, "tail 0x%02X, want 0x%02X", raw[sumChecksumIndex-1], SumTail)
	}
	if want := checksum.Sum8(raw[:sumChecksumIndex]); raw[sumChecksumIndex] != want {
		return Result{}, decodeError(spec, ErrChecksumMismatch, "got 0x%02X, want 0x%02X", raw[sumChecksumIndex], want)
	}
	if raw[sumChecksumIndex+1] != SumTrailer {
		return Result{}, decodeError(spec, ErrUnrecognizedResponse, "trailer 0x%02X, want 0x%02X", raw[sumChecksumIndex+1], SumTrailer)
	}
	return decodeSumValue(spec, raw, sumChecksumIndex-1)
}

// Sum16 is the sum16 dialect codec.
type Sum16 struct{}

// Dialect returns command.DialectSum16.
func (Sum16) Dialect() command.Dialect { return command.DialectSum16 }

// Encode builds [CC][addr][fc][payload][DD][lo][hi]. The payload is
// req.Payload, else the parameter byte, else empty.
func (Sum16) Encode(spec command.Spec, req Request) (Frame, error) {
	payload := req.Payload
	if len(payload) == 0 && req.Param.IsSet() {
		p, err := paramByte(spec, req.Param)
		if err != nil {
			return Frame{}, err
		}
		payload = []byte{p}
	}
	buf := make([]byte, 0, Sum16MinFrameSize+len(payload))
	buf = append(buf, SumHeader, req.Address, spec.Function)
	buf = append(buf, payload...)
	buf = append(buf, SumTail)
	lo, hi := checksum.Sum16(buf)
	buf = append(buf, lo, hi)
	return Frame{b: buf}, nil
}

// Decode checks header, tail and 16-bit checksum. Reports with an offset
// yield Integer; reports without one yield the payload as Raw.
func (Sum16) Decode(spec command.Spec, raw []byte) (Result, error) {
	if len(raw) < Sum16MinFrameSize {
		return Result{}, errTooShort(spec, len(raw), Sum16MinFrameSize)
	}
	if raw[0] != SumHeader {
		return Result{}, decodeError(spec, ErrUnrecognizedResponse, "header 0x%02X, want 0x%02X", raw[0], SumHeader)
	}
	tail := len(raw) - 3
	if raw[tail] != SumTail {
		return Result{}, decodeError(spec, ErrUnrecognizedResponse, "tail 0x%02X, want 0x%02X", raw[tail], SumTail)
	}
	lo, hi := checksum.Sum16(raw[:tail+1])
	if raw[tail+1] != lo || raw[tail+2] != hi {
		return Result{}, decodeError(spec, ErrChecksumMismatch, "got %02X %02X, want %02X %02X", raw[tail+1], raw[tail+2], lo, hi)
	}
	if _, ok := spec.ResponseOffset(); spec.IsReport() && !ok {
		r := newResult(spec, ValueRaw)
		r.Raw = cloneBytes(raw[3:tail])
		return r, nil
	}
	return decodeSumValue(spec, raw, tail)
}

// decodeSumValue extracts the typed value once integrity has been checked.
// limit is the index of the tail byte; report offsets must fall before it.
func decodeSumValue(spec command.Spec, raw []byte, limit int) (Result, error) {
	if !spec.IsReport() {
		r := newResult(spec, ValueBoolean)
		r.Bool = true
		r.Raw = cloneBytes(raw)
		return r, nil
	}
	off, ok := spec.ResponseOffset()
	if !ok {
		return Result{}, decodeError(spec, ErrUnknownResponseShape, "no response offset configured")
	}
	if off >= limit {
		return Result{}, decodeError(spec, ErrUnknownResponseShape, "offset %d outside payload (limit %d)", off, limit)
	}
	r := newResult(spec, ValueInteger)
	r.Int = int64(raw[off])
	r.Raw = cloneBytes(raw)
	return r, nil
}

func paramByte(spec command.Spec, p Param) (byte, error) {
	v, set := p.Value()
	if !set {
		return 0x00, nil
	}
	if v < 0 || v > 0xFF {
		return 0, encodeError(spec, ErrInvalidParam, "%d does not fit one byte", v)
	}
	return byte(v), nil
}
