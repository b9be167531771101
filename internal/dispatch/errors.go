package dispatch

import (
	"errors"
	"fmt"

	"github.com/tturner/labctl/internal/frame"
)

// FrameError wraps a codec failure for a command.
type FrameError struct {
	Command string
	Err     error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("command %s: %v", e.Command, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// TransportError wraps a transport failure unchanged.
type TransportError struct {
	Op      string // "send" or "receive"
	Command string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("command %s: %s: %v", e.Command, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// errorKind labels an exchange failure for metrics.
func errorKind(err error) string {
	var fe *frame.Error
	var te *TransportError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fe):
		return fe.Err.Error()
	case errors.As(err, &te):
		return "transport"
	default:
		return "other"
	}
}
