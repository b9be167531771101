package capture

import (
	"strings"

	"github.com/tturner/labctl/internal/command"
	"github.com/tturner/labctl/internal/frame"
)

// Exchange pairs a recorded request with the reply that followed it.
type Exchange struct {
	Request  Packet
	Response *Packet
	Spec     command.Spec
	Known    bool // Spec was identified from the table
	Result   frame.Result
	Err      error // decode error, when the reply did not decode
}

// Pair walks packets in order and pairs each tx frame with the next rx
// frame. Unanswered requests have a nil Response; stray replies are skipped.
func Pair(packets []Packet) []Exchange {
	var out []Exchange
	for _, p := range packets {
		switch p.Direction {
		case DirectionTx:
			out = append(out, Exchange{Request: p})
		case DirectionRx:
			if n := len(out); n > 0 && out[n-1].Response == nil {
				resp := p
				out[n-1].Response = &resp
			}
		}
	}
	return out
}

// Annotate identifies each request's command in tbl and decodes the reply
// with it.
func Annotate(exchanges []Exchange, tbl *command.Table) {
	for i := range exchanges {
		ex := &exchanges[i]
		spec, ok := Identify(tbl, ex.Request.Payload)
		if !ok {
			continue
		}
		ex.Spec, ex.Known = spec, true
		if ex.Response == nil {
			continue
		}
		ex.Result, ex.Err = frame.Decode(spec, ex.Response.Payload)
	}
}

// Identify finds the table command that produced the request frame raw.
func Identify(tbl *command.Table, raw []byte) (command.Spec, bool) {
	var (
		best  command.Spec
		found bool
	)
	for _, s := range tbl.Specs() {
		switch s.Dialect {
		case command.DialectCRC16:
			if len(raw) != frame.RTUFrameSize || raw[1] != s.Function {
				continue
			}
			// Prefer the command whose base register is closest below the
			// requested one; actuator indices are added to the base.
			reg := uint16(raw[2])<<8 | uint16(raw[3])
			if s.Register > reg {
				continue
			}
			if !found || s.Register > best.Register {
				best, found = s, true
			}
		case command.DialectSum, command.DialectSum16:
			if len(raw) < frame.Sum16MinFrameSize || raw[0] != frame.SumHeader || raw[2] != s.Function {
				continue
			}
			if s.Dialect == command.DialectSum && len(raw) != frame.SumFrameSize {
				continue
			}
			return s, true
		case command.DialectASCII:
			line := strings.TrimRight(string(raw), frame.ASCIILineEnding)
			if !strings.HasPrefix(line, frame.ASCIIRequestPrefix) || !strings.HasSuffix(line, frame.ASCIIRequestSuffix) {
				continue
			}
			body := line[len(frame.ASCIIRequestPrefix) : len(line)-len(frame.ASCIIRequestSuffix)]
			if strings.TrimRight(body, "0123456789") == s.Code {
				return s, true
			}
		}
	}
	return best, found
}
