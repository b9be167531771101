package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/tturner/labctl/internal/command"
	"github.com/tturner/labctl/internal/frame"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapTransportError wraps link errors (TCP or serial) with user-friendly context
func WrapTransportError(err error, target string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to communicate with device at %s", target),
		Reason:  extractTransportReason(err),
		Hint:    "Check that the device (or serial bridge) is powered and the transport address is correct",
		Try:     "labctl simulate --listen :10123 to rule out the host side",
		Err:     err,
	}
}

// WrapFrameError wraps codec errors with user-friendly context
func WrapFrameError(err error, commandName string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Command %s failed", commandName),
		Reason:  extractFrameReason(err),
		Hint:    frameHint(err),
		Try:     "Re-run with --log-level debug to see the raw frames",
		Err:     err,
	}
}

// WrapCommandError wraps command-table lookup errors with user-friendly context
func WrapCommandError(err error, commandName, tablePath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Unknown command %q", commandName),
		Reason:  err.Error(),
		Hint:    "Command names are case-sensitive",
		Try:     fmt.Sprintf("labctl table list --table %s", tablePath),
		Err:     err,
	}
}

// WrapConfigError wraps configuration errors with user-friendly context
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "See configs/labctl.yaml for a complete example",
		Try:     "labctl config init --output labctl.yaml",
		Err:     err,
	}
}

// Wrap picks the wrapper matching err's kind.
func Wrap(err error, commandName, target, tablePath string) error {
	if err == nil {
		return nil
	}
	var ufe UserFriendlyError
	if stderrors.As(err, &ufe) {
		return err
	}
	var fe *frame.Error
	switch {
	case stderrors.Is(err, command.ErrCommandNotFound):
		return WrapCommandError(err, commandName, tablePath)
	case stderrors.As(err, &fe):
		return WrapFrameError(err, commandName)
	default:
		return WrapTransportError(err, target)
	}
}

func extractTransportReason(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Timeout - device did not answer within the turnaround window"
	}
	if strings.Contains(errStr, "connection refused") {
		return "Connection refused - nothing is listening on this port"
	}
	if strings.Contains(errStr, "no route to host") {
		return "No route to host - network routing issue or device unreachable"
	}
	if strings.Contains(errStr, "connection reset") || strings.Contains(errStr, "EOF") {
		return "Connection closed - device dropped the link unexpectedly"
	}
	if strings.Contains(errStr, "no such file") || strings.Contains(errStr, "permission denied") {
		return "Serial port unavailable - check the device path and permissions"
	}

	return "Link communication failed"
}

func extractFrameReason(err error) string {
	switch {
	case stderrors.Is(err, frame.ErrChecksumMismatch):
		return "Response failed its integrity check"
	case stderrors.Is(err, frame.ErrTruncatedFrame):
		return "Response was shorter than the smallest valid frame"
	case stderrors.Is(err, frame.ErrLengthMismatch):
		return "Response length does not match its declared size"
	case stderrors.Is(err, frame.ErrUnrecognizedResponse):
		return "Response does not belong to this command"
	case stderrors.Is(err, frame.ErrUnknownResponseShape):
		return "Response could not be interpreted for this command"
	case stderrors.Is(err, frame.ErrDeviceException):
		return "Device rejected the command"
	case stderrors.Is(err, frame.ErrInvalidParam):
		return "Parameter does not fit this command's frame"
	case stderrors.Is(err, frame.ErrUnknownDialect):
		return "Command table names a dialect labctl does not speak"
	}
	return "Frame error occurred"
}

func frameHint(err error) string {
	switch {
	case stderrors.Is(err, frame.ErrChecksumMismatch), stderrors.Is(err, frame.ErrTruncatedFrame):
		return "Line noise or a wrong baud rate; a longer turnaround may also help"
	case stderrors.Is(err, frame.ErrUnrecognizedResponse):
		return "Another device may share the address, or the table dialect is wrong"
	case stderrors.Is(err, frame.ErrInvalidParam):
		return "Check the parameter range for this command"
	}
	return "Check the command table entry for this command"
}
