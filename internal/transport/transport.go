// Package transport provides the byte links labctl talks to instruments
// over: TCP (including serial-to-TCP bridges) and local serial ports.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Transport is a connected, half-duplex byte link to one device.
type Transport interface {
	// Send writes one complete frame. In line mode CR LF is appended.
	Send(ctx context.Context, data []byte) error

	// Receive reads one response frame of at most maxLen bytes.
	// Binary frames end after Options.IdleGap of silence; line frames end at LF.
	Receive(ctx context.Context, maxLen int) ([]byte, error)

	// Close releases the link.
	Close() error

	// String returns a human-readable description of the transport.
	String() string
}

// Errors returned by Receive.
var (
	ErrTimeout = errors.New("receive timeout")
	ErrClosed  = errors.New("transport closed")
)

// DefaultMaxFrame bounds Receive when the caller passes maxLen <= 0.
const DefaultMaxFrame = 1024

// pollInterval bounds each blocking read so context cancellation is noticed.
const pollInterval = 100 * time.Millisecond

// LineEnding terminates line-mode requests.
const LineEnding = "\r\n"

// Options configures transport behavior.
type Options struct {
	Timeout     time.Duration // Receive limit when the context has no earlier deadline
	DialTimeout time.Duration // TCP connect timeout
	IdleGap     time.Duration // silence that ends a binary frame
	LineMode    bool          // CR LF framing for the ascii dialect
}

// DefaultOptions returns sensible default options.
func DefaultOptions() Options {
	return Options{
		Timeout:     time.Second,
		DialTimeout: 5 * time.Second,
		IdleGap:     20 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = d.DialTimeout
	}
	if o.IdleGap <= 0 {
		o.IdleGap = d.IdleGap
	}
	return o
}

// outgoing returns the bytes to write for one frame.
func (o Options) outgoing(data []byte) []byte {
	if !o.LineMode {
		return data
	}
	out := make([]byte, 0, len(data)+len(LineEnding))
	out = append(out, data...)
	return append(out, LineEnding...)
}

// readFunc performs one bounded read. timedOut reports that wait elapsed
// with no data.
type readFunc func(p []byte, wait time.Duration) (n int, timedOut bool, err error)

// receive assembles one frame from successive reads. In line mode the
// frame is the line without its CR LF.
func receive(ctx context.Context, read readFunc, opts Options, maxLen int) ([]byte, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxFrame
	}
	deadline := time.Now().Add(opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	buf := make([]byte, 0, maxLen)
	chunk := make([]byte, maxLen)
	for len(buf) < maxLen {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			break
		}
		if len(buf) > 0 && !opts.LineMode && opts.IdleGap < wait {
			wait = opts.IdleGap
		}
		if wait > pollInterval {
			wait = pollInterval
		}
		idle := len(buf) > 0 && !opts.LineMode

		n, timedOut, err := read(chunk[:maxLen-len(buf)], wait)
		buf = append(buf, chunk[:n]...)
		if opts.LineMode {
			if i := bytes.IndexByte(buf, '\n'); i >= 0 {
				return bytes.TrimRight(buf[:i], "\r"), nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(buf) > 0 && !opts.LineMode {
				return buf, nil
			}
			return nil, err
		}
		if timedOut && n == 0 && idle {
			return buf, nil
		}
	}

	if len(buf) == 0 {
		return nil, ErrTimeout
	}
	if opts.LineMode && len(buf) < maxLen {
		return nil, fmt.Errorf("%w: incomplete line after %d bytes", ErrTimeout, len(buf))
	}
	return buf, nil
}
