package transport

// Local serial port link.

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialConfig describes the port settings. Zero values mean 9600 8N1.
type SerialConfig struct {
	Path     string
	BaudRate int
	DataBits int
	Parity   serial.Parity
	StopBits serial.StopBits
}

func (c SerialConfig) mode() *serial.Mode {
	m := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		Parity:   c.Parity,
		StopBits: c.StopBits,
	}
	if m.BaudRate == 0 {
		m.BaudRate = 9600
	}
	if m.DataBits == 0 {
		m.DataBits = 8
	}
	return m
}

// serialPort is the part of serial.Port the transport uses.
type serialPort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Serial implements Transport over a serial port.
type Serial struct {
	mu   sync.Mutex
	port serialPort
	cfg  SerialConfig
	opts Options
}

var _ Transport = (*Serial)(nil)

// OpenSerial opens and configures the port.
func OpenSerial(cfg SerialConfig, opts Options) (*Serial, error) {
	port, err := serial.Open(cfg.Path, cfg.mode())
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Path, err)
	}
	return newSerial(port, cfg, opts), nil
}

func newSerial(port serialPort, cfg SerialConfig, opts Options) *Serial {
	return &Serial{port: port, cfg: cfg, opts: opts.withDefaults()}
}

// Send discards stale input then writes data.
func (s *Serial) Send(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("reset input: %w", err)
	}
	if _, err := s.port.Write(s.opts.outgoing(data)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Receive reads one frame. A zero-byte read with no error is the port's
// read timeout.
func (s *Serial) Receive(ctx context.Context, maxLen int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil, ErrClosed
	}

	read := func(p []byte, wait time.Duration) (int, bool, error) {
		if err := s.port.SetReadTimeout(wait); err != nil {
			return 0, false, fmt.Errorf("set read timeout: %w", err)
		}
		n, err := s.port.Read(p)
		if err != nil {
			return n, false, fmt.Errorf("read: %w", err)
		}
		return n, n == 0, nil
	}
	return receive(ctx, read, s.opts, maxLen)
}

// Close closes the port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

func (s *Serial) String() string {
	return fmt.Sprintf("serial://%s?baud=%d", s.cfg.Path, s.cfg.mode().BaudRate)
}
