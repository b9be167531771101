package frame

// crc16 dialect: RTU-style fixed request with CRC-16.
//
// Request:  [addr(1)] [fc(1)] [register(2)] [data(2)] [crc(2)]
// Response: [addr(1)] [fc(1)] [...] [crc(2)]

import (
	"encoding/binary"

	"github.com/tturner/labctl/internal/checksum"
	"github.com/tturner/labctl/internal/command"
)

// RTU framing constants.
const (
	RTUFrameSize       = 8 // fixed request size
	RTUMinResponseSize = 5 // addr + fc + one byte + crc(2)
	rtuHeaderSize      = 3 // addr + fc + byte count
)

// Coil data words.
const (
	CoilOn  uint16 = 0xFF00
	CoilOff uint16 = 0x0000
)

// RTU is the crc16 dialect codec.
type RTU struct{}

// Dialect returns command.DialectCRC16.
func (RTU) Dialect() command.Dialect { return command.DialectCRC16 }

// Encode builds [addr][fc][register][data][crc]. The register is the
// command's base register plus req.Target.
func (RTU) Encode(spec command.Spec, req Request) (Frame, error) {
	reg := uint32(spec.Register) + uint32(req.Target)
	if reg > 0xFFFF {
		return Frame{}, encodeError(spec, ErrInvalidParam, "register 0x%X out of range", reg)
	}
	data, err := rtuDataWord(spec, req.Param)
	if err != nil {
		return Frame{}, err
	}

	buf := make([]byte, RTUFrameSize-checksum.CRC16Size, RTUFrameSize)
	buf[0] = req.Address
	buf[1] = spec.Function
	binary.BigEndian.PutUint16(buf[2:4], uint16(reg))
	binary.BigEndian.PutUint16(buf[4:6], data)
	return Frame{b: checksum.AppendCRC16(buf)}, nil
}

// rtuDataWord maps the parameter onto the data field.
//
// Single-coil writes map any non-zero parameter to 0xFF00 and zero or absent
// to 0x0000. Reads default to the command's quantity (or 1). Everything else
// passes the parameter through, defaulting to 0x0001.
func rtuDataWord(spec command.Spec, p Param) (uint16, error) {
	v, set := p.Value()
	fc := FunctionCode(spec.Function)

	if fc == FcWriteSingleCoil {
		if set && v != 0 {
			return CoilOn, nil
		}
		return CoilOff, nil
	}
	if !set {
		if fc.IsRead() {
			if spec.Quantity > 0 {
				return spec.Quantity, nil
			}
			return 1, nil
		}
		return 0x0001, nil
	}
	if v < 0 || v > 0xFFFF {
		return 0, encodeError(spec, ErrInvalidParam, "%d does not fit a 16-bit data word", v)
	}
	return uint16(v), nil
}

// Decode verifies the CRC and function code, then parses by function:
// bit reads yield Bits, register reads yield Integer (first register),
// writes yield Boolean, anything else Raw.
func (RTU) Decode(spec command.Spec, raw []byte) (Result, error) {
	if len(raw) < RTUMinResponseSize {
		return Result{}, errTooShort(spec, len(raw), RTUMinResponseSize)
	}
	if !checksum.ValidCRC16(raw) {
		got, _ := checksum.FrameCRC16(raw)
		want := checksum.CRC16(raw[:len(raw)-checksum.CRC16Size])
		return Result{}, decodeError(spec, ErrChecksumMismatch, "got 0x%04X, want 0x%04X", got, want)
	}

	fc := FunctionCode(raw[1])
	if fc == FunctionCode(spec.Function)|exceptionBit {
		exc := ExceptionCode(raw[2])
		return Result{}, &Error{
			Op:        "decode",
			Dialect:   spec.Dialect,
			Command:   spec.Name,
			Err:       ErrDeviceException,
			Detail:    exc.String(),
			Exception: exc,
		}
	}
	if fc != FunctionCode(spec.Function) {
		return Result{}, decodeError(spec, ErrUnrecognizedResponse, "function 0x%02X, want 0x%02X", byte(fc), spec.Function)
	}

	body := raw[2 : len(raw)-checksum.CRC16Size]
	switch {
	case fc.IsBitRead():
		payload, err := rtuCounted(spec, raw)
		if err != nil {
			return Result{}, err
		}
		r := newResult(spec, ValueBits)
		r.Bits = unpackBitsMSB(payload)
		r.Raw = cloneBytes(payload)
		return r, nil

	case fc.IsRegisterRead():
		payload, err := rtuCounted(spec, raw)
		if err != nil {
			return Result{}, err
		}
		if len(payload) == 0 || len(payload)%2 != 0 {
			return Result{}, decodeError(spec, ErrLengthMismatch, "register byte count %d", len(payload))
		}
		r := newResult(spec, ValueInteger)
		r.Int = int64(binary.BigEndian.Uint16(payload[0:2]))
		r.Raw = cloneBytes(payload)
		return r, nil

	case fc.IsWrite():
		if len(raw) != RTUFrameSize {
			return Result{}, decodeError(spec, ErrLengthMismatch, "write echo is %d bytes, want %d", len(raw), RTUFrameSize)
		}
		r := newResult(spec, ValueBoolean)
		r.Bool = true
		r.Raw = cloneBytes(body)
		return r, nil

	default:
		r := newResult(spec, ValueRaw)
		r.Raw = cloneBytes(body)
		return r, nil
	}
}

// rtuCounted strips the 3-byte header and CRC, checking the byte count.
func rtuCounted(spec command.Spec, raw []byte) ([]byte, error) {
	count := int(raw[2])
	payload := raw[rtuHeaderSize : len(raw)-checksum.CRC16Size]
	if count != len(payload) {
		return nil, decodeError(spec, ErrLengthMismatch, "byte count %d, payload %d", count, len(payload))
	}
	return payload, nil
}

// unpackBitsMSB expands bytes into bits, most-significant bit first within
// each byte, bytes in order.
func unpackBitsMSB(data []byte) []bool {
	bits := make([]bool, 0, len(data)*8)
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			bits = append(bits, b&(1<<uint(i)) != 0)
		}
	}
	return bits
}

// PackBitsMSB is the inverse of the status decoding: bits are packed most
// significant first and the last byte is zero-padded.
func PackBitsMSB(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, on := range bits {
		if on {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}
