package frame

import (
	"errors"
	"fmt"

	"github.com/tturner/labctl/internal/command"
)

// Error sentinels. Every codec failure wraps exactly one of these.
var (
	ErrChecksumMismatch     = errors.New("checksum mismatch")
	ErrTruncatedFrame       = errors.New("truncated frame")
	ErrUnknownResponseShape = errors.New("unknown response shape")
	ErrUnrecognizedResponse = errors.New("unrecognized response")
	ErrLengthMismatch       = errors.New("length mismatch")
	ErrDeviceException      = errors.New("device exception")
	ErrInvalidParam         = errors.New("invalid parameter")
	ErrUnknownDialect       = errors.New("unknown dialect")
)

// Error describes a failed encode or decode.
type Error struct {
	Op        string // "encode" or "decode"
	Dialect   command.Dialect
	Command   string
	Err       error // one of the package sentinels
	Detail    string
	Exception ExceptionCode // set for ErrDeviceException
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Dialect, e.Op)
	if e.Command != "" {
		msg += " " + e.Command
	}
	msg += ": " + e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func encodeError(spec command.Spec, sentinel error, format string, args ...any) error {
	return &Error{
		Op:      "encode",
		Dialect: spec.Dialect,
		Command: spec.Name,
		Err:     sentinel,
		Detail:  fmt.Sprintf(format, args...),
	}
}

func decodeError(spec command.Spec, sentinel error, format string, args ...any) error {
	return &Error{
		Op:      "decode",
		Dialect: spec.Dialect,
		Command: spec.Name,
		Err:     sentinel,
		Detail:  fmt.Sprintf(format, args...),
	}
}

// errTooShort returns a standardised truncation error for short buffers.
func errTooShort(spec command.Spec, got, need int) error {
	return decodeError(spec, ErrTruncatedFrame, "%d bytes (minimum %d)", got, need)
}
