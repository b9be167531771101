package transport

// TCP link, also used for serial-to-TCP bridges.

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// TCP implements Transport over a TCP connection.
type TCP struct {
	conn   net.Conn
	addr   string
	opts   Options
	connMu sync.RWMutex
}

var _ Transport = (*TCP)(nil)

// DialTCP connects to addr ("host:port").
func DialTCP(ctx context.Context, addr string, opts Options) (*TCP, error) {
	opts = opts.withDefaults()

	dialer := net.Dialer{
		Timeout:   opts.DialTimeout,
		KeepAlive: 30 * time.Second,
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial TCP: %w", err)
	}
	return &TCP{conn: conn, addr: addr, opts: opts}, nil
}

// NewTCPConn wraps an established connection.
func NewTCPConn(conn net.Conn, opts Options) *TCP {
	return &TCP{conn: conn, addr: conn.RemoteAddr().String(), opts: opts.withDefaults()}
}

// Send writes data, honoring the context deadline.
func (t *TCP) Send(ctx context.Context, data []byte) error {
	t.connMu.RLock()
	defer t.connMu.RUnlock()

	if t.conn == nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if _, err := t.conn.Write(t.opts.outgoing(data)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Receive reads one frame.
func (t *TCP) Receive(ctx context.Context, maxLen int) ([]byte, error) {
	t.connMu.RLock()
	defer t.connMu.RUnlock()

	if t.conn == nil {
		return nil, ErrClosed
	}

	read := func(p []byte, wait time.Duration) (int, bool, error) {
		if err := t.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
			return 0, false, fmt.Errorf("set read deadline: %w", err)
		}
		n, err := t.conn.Read(p)
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return n, true, nil
		}
		if err != nil {
			return n, false, fmt.Errorf("read: %w", err)
		}
		return n, false, nil
	}
	return receive(ctx, read, t.opts, maxLen)
}

// Close closes the TCP connection
func (t *TCP) Close() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *TCP) String() string {
	return "tcp://" + t.addr
}
