package frame

// ascii dialect: "/1" <code> [param] "R" requests, "/0`" <value> <term> replies.

import (
	"strconv"
	"strings"

	"github.com/tturner/labctl/internal/command"
)

// ASCII framing constants.
const (
	ASCIIRequestPrefix  = "/1"
	ASCIIRequestSuffix  = "R"
	ASCIIResponsePrefix = "/0`"
	ASCIIMinResponse    = len(ASCIIResponsePrefix) + 1 // prefix + terminator
	ASCIILineEnding     = "\r\n"
)

// ASCII is the ascii dialect codec.
type ASCII struct{}

// Dialect returns command.DialectASCII.
func (ASCII) Dialect() command.Dialect { return command.DialectASCII }

// Encode returns the bare request line; the transport adds CR LF.
func (ASCII) Encode(spec command.Spec, req Request) (Frame, error) {
	var sb strings.Builder
	sb.WriteString(ASCIIRequestPrefix)
	sb.WriteString(spec.Code)
	if v, ok := req.Param.Value(); ok {
		if v < 0 {
			return Frame{}, encodeError(spec, ErrInvalidParam, "negative parameter %d", v)
		}
		sb.WriteString(strconv.FormatInt(v, 10))
	}
	sb.WriteString(ASCIIRequestSuffix)
	return Frame{b: []byte(sb.String())}, nil
}

// Decode parses "/0`<digits><term>", the line as delivered by a line-mode
// transport without CR LF. The terminator must not be a digit or a line
// ending. An empty value acknowledges the command and decodes to
// Boolean(true).
func (ASCII) Decode(spec command.Spec, raw []byte) (Result, error) {
	line := string(raw)
	if len(line) < ASCIIMinResponse {
		return Result{}, errTooShort(spec, len(line), ASCIIMinResponse)
	}
	if !strings.HasPrefix(line, ASCIIResponsePrefix) {
		return Result{}, decodeError(spec, ErrUnrecognizedResponse, "prefix %q, want %q", line[:len(ASCIIResponsePrefix)], ASCIIResponsePrefix)
	}
	if term := line[len(line)-1]; !isASCIITerminator(term) {
		return Result{}, decodeError(spec, ErrUnknownResponseShape, "missing terminator, line ends with %q", term)
	}

	payload := line[len(ASCIIResponsePrefix) : len(line)-1]
	if payload == "" {
		r := newResult(spec, ValueBoolean)
		r.Bool = true
		return r, nil
	}
	v, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return Result{}, decodeError(spec, ErrUnknownResponseShape, "non-numeric value %q", payload)
	}
	r := newResult(spec, ValueInteger)
	r.Int = v
	return r, nil
}

// isASCIITerminator reports whether c can end a reply: anything but a
// digit or a line ending.
func isASCIITerminator(c byte) bool {
	return !(c >= '0' && c <= '9') && c != '\r' && c != '\n'
}
