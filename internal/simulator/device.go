// Package simulator emulates instruments for each dialect: RTU-style valve
// boards, CC…DD selector valves and temperature units, and ASCII syringe
// pumps. A Device answers one request frame at a time; Server exposes a
// device on TCP the way a serial-to-TCP bridge would.
package simulator

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/tturner/labctl/internal/checksum"
	"github.com/tturner/labctl/internal/command"
	"github.com/tturner/labctl/internal/frame"
)

// ErrNoReply means the device stays silent: bad integrity check, another
// address, or a frame it does not understand at all.
var ErrNoReply = errors.New("no reply")

// Bits is the number of coils an RTU valve board exposes.
const Bits = 32

// Device is an in-memory instrument. It is safe for concurrent use.
type Device struct {
	mu        sync.Mutex
	dialect   command.Dialect
	address   byte
	coils     [Bits]bool
	registers map[uint16]uint16
	position  int64 // selector port or pump plunger position
	pass      int64 // selector current pass
	temp      uint16
	requests  int
}

// NewDevice creates a device speaking dialect at address.
func NewDevice(dialect command.Dialect, address byte) (*Device, error) {
	if !dialect.Valid() {
		return nil, fmt.Errorf("%w: %q", frame.ErrUnknownDialect, dialect)
	}
	return &Device{
		dialect:   dialect,
		address:   address,
		registers: make(map[uint16]uint16),
		position:  1,
		temp:      250,
	}, nil
}

// Dialect returns the dialect the device speaks.
func (d *Device) Dialect() command.Dialect { return d.dialect }

// Coil returns the state of one coil.
func (d *Device) Coil(i int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= Bits {
		return false
	}
	return d.coils[i]
}

// Register returns a holding register value.
func (d *Device) Register(addr uint16) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registers[addr]
}

// Position returns the selector or plunger position.
func (d *Device) Position() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position
}

// SetPosition sets the selector or plunger position.
func (d *Device) SetPosition(p int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.position = p
}

// Requests returns how many frames the device has answered.
func (d *Device) Requests() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests
}

// Respond returns the reply to one request frame.
func (d *Device) Respond(req []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var (
		resp []byte
		err  error
	)
	switch d.dialect {
	case command.DialectCRC16:
		resp, err = d.respondRTU(req)
	case command.DialectSum:
		resp, err = d.respondSum(req)
	case command.DialectSum16:
		resp, err = d.respondSum16(req)
	case command.DialectASCII:
		resp, err = d.respondASCII(req)
	default:
		err = ErrNoReply
	}
	if err == nil {
		d.requests++
	}
	return resp, err
}

func (d *Device) respondRTU(req []byte) ([]byte, error) {
	if len(req) != frame.RTUFrameSize || !checksum.ValidCRC16(req) || req[0] != d.address {
		return nil, ErrNoReply
	}
	fc := frame.FunctionCode(req[1])
	reg := binary.BigEndian.Uint16(req[2:4])
	data := binary.BigEndian.Uint16(req[4:6])

	switch fc {
	case frame.FcWriteSingleCoil:
		if reg >= Bits {
			return rtuException(req[0], fc, frame.ExceptionIllegalDataAddress), nil
		}
		if data != frame.CoilOn && data != frame.CoilOff {
			return rtuException(req[0], fc, frame.ExceptionIllegalDataValue), nil
		}
		d.coils[reg] = data == frame.CoilOn
		return append([]byte(nil), req...), nil

	case frame.FcWriteSingleRegister:
		d.registers[reg] = data
		return append([]byte(nil), req...), nil

	case frame.FcReadCoils, frame.FcReadDiscreteInputs:
		if data == 0 || int(reg)+int(data) > Bits {
			return rtuException(req[0], fc, frame.ExceptionIllegalDataAddress), nil
		}
		payload := frame.PackBitsMSB(d.coils[reg : int(reg)+int(data)])
		resp := []byte{req[0], req[1], byte(len(payload))}
		resp = append(resp, payload...)
		return checksum.AppendCRC16(resp), nil

	case frame.FcReadHoldingRegisters, frame.FcReadInputRegisters:
		if data == 0 || data > 125 {
			return rtuException(req[0], fc, frame.ExceptionIllegalDataValue), nil
		}
		resp := []byte{req[0], req[1], byte(2 * data)}
		for i := uint16(0); i < data; i++ {
			resp = binary.BigEndian.AppendUint16(resp, d.registers[reg+i])
		}
		return checksum.AppendCRC16(resp), nil

	default:
		return rtuException(req[0], fc, frame.ExceptionIllegalFunction), nil
	}
}

func rtuException(addr byte, fc frame.FunctionCode, code frame.ExceptionCode) []byte {
	return checksum.AppendCRC16([]byte{addr, byte(fc) | 0x80, byte(code)})
}

// Selector valve function codes.
const (
	SumSwitch       byte = 0x44 // move to port param
	SumQueryPos     byte = 0x3E // report position at offset 2
	SumQueryPass    byte = 0x3F // report current pass at offset 3
	SumReset        byte = 0x45
	Sum16SetTemp    byte = 0x05
	Sum16ReadTemp   byte = 0xA0
	sumPositionSlot      = 2
	sumPassSlot          = 3
)

func (d *Device) respondSum(req []byte) ([]byte, error) {
	if len(req) != frame.SumFrameSize || req[0] != frame.SumHeader || req[5] != frame.SumTail {
		return nil, ErrNoReply
	}
	if checksum.Sum8(req[:6]) != req[6] || req[1] != d.address {
		return nil, ErrNoReply
	}

	switch req[2] {
	case SumQueryPos, SumQueryPass:
		resp := []byte{frame.SumHeader, d.address, 0, 0, 0x00, frame.SumTail}
		resp[sumPositionSlot] = byte(d.position)
		resp[sumPassSlot] = byte(d.pass)
		return append(resp, checksum.Sum8(resp), frame.SumTrailer), nil
	case SumSwitch:
		d.position = int64(req[3])
		d.pass++
	case SumReset:
		d.position = 1
		d.pass = 0
	}
	return append([]byte(nil), req...), nil
}

func (d *Device) respondSum16(req []byte) ([]byte, error) {
	n := len(req)
	if n < frame.Sum16MinFrameSize || req[0] != frame.SumHeader || req[n-3] != frame.SumTail {
		return nil, ErrNoReply
	}
	lo, hi := checksum.Sum16(req[:n-2])
	if req[n-2] != lo || req[n-1] != hi || req[1] != d.address {
		return nil, ErrNoReply
	}

	payload := req[3 : n-3]
	switch req[2] {
	case Sum16ReadTemp:
		resp := []byte{frame.SumHeader, d.address, req[2]}
		resp = binary.BigEndian.AppendUint16(resp, d.temp)
		resp = append(resp, frame.SumTail)
		lo, hi := checksum.Sum16(resp)
		return append(resp, lo, hi), nil
	case Sum16SetTemp:
		switch len(payload) {
		case 1:
			d.temp = uint16(payload[0])
		case 2:
			d.temp = binary.BigEndian.Uint16(payload)
		}
	}
	return append([]byte(nil), req...), nil
}

// ASCII pump commands: A absolute move, P pick up (relative +), D dispense
// (relative -), Z initialise, ? report position.
func (d *Device) respondASCII(req []byte) ([]byte, error) {
	line := strings.TrimRight(string(req), frame.ASCIILineEnding)
	if !strings.HasPrefix(line, frame.ASCIIRequestPrefix) || !strings.HasSuffix(line, frame.ASCIIRequestSuffix) {
		return nil, ErrNoReply
	}
	body := line[len(frame.ASCIIRequestPrefix) : len(line)-len(frame.ASCIIRequestSuffix)]
	code := strings.TrimRight(body, "0123456789")
	arg := body[len(code):]

	var n int64
	if arg != "" {
		v, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, ErrNoReply
		}
		n = v
	}

	switch code {
	case "?":
		return asciiReply(strconv.FormatInt(d.position, 10)), nil
	case "A":
		d.position = n
	case "P":
		d.position += n
	case "D":
		d.position -= n
	case "Z":
		d.position = 0
	default:
		// Unknown commands are acknowledged like the real pump firmware.
	}
	return asciiReply(""), nil
}

// asciiReply builds "/0`<value><ETX>"; the server adds CR LF.
func asciiReply(value string) []byte {
	return []byte(frame.ASCIIResponsePrefix + value + "\x03")
}
