package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/tturner/labctl/internal/command"
	"github.com/tturner/labctl/internal/frame"
	"github.com/tturner/labctl/internal/logging"
)

// Faults configures misbehaviour injected into replies.
type Faults struct {
	Latency       time.Duration // added before every reply
	Jitter        time.Duration // random extra delay in [0, Jitter]
	DropEveryN    int           // swallow every Nth reply
	CorruptEveryN int           // flip the last byte of every Nth reply
	ChunkWrites   bool          // write replies one byte at a time
	Seed          int64
}

type faultPolicy struct {
	mu    sync.Mutex
	cfg   Faults
	rng   *rand.Rand
	count int
}

type faultAction struct {
	delay   time.Duration
	drop    bool
	corrupt bool
}

func newFaultPolicy(cfg Faults) *faultPolicy {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &faultPolicy{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

func (p *faultPolicy) next() faultAction {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.count++
	act := faultAction{delay: p.cfg.Latency}
	if p.cfg.Jitter > 0 {
		act.delay += time.Duration(p.rng.Int63n(int64(p.cfg.Jitter) + 1))
	}
	act.drop = p.cfg.DropEveryN > 0 && p.count%p.cfg.DropEveryN == 0
	act.corrupt = p.cfg.CorruptEveryN > 0 && p.count%p.cfg.CorruptEveryN == 0
	return act
}

// Server serves one Device over TCP. Every connection shares the device.
type Server struct {
	addr   string
	device *Device
	faults *faultPolicy
	logger *logging.Logger

	listener *net.TCPListener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithFaults enables fault injection.
func WithFaults(f Faults) ServerOption {
	return func(s *Server) { s.faults = newFaultPolicy(f) }
}

// WithServerLogger sets the logger.
func WithServerLogger(l *logging.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a server for device listening on addr ("127.0.0.1:0"
// picks a free port).
func NewServer(addr string, device *Device, opts ...ServerOption) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:   addr,
		device: device,
		faults: newFaultPolicy(Faults{}),
		logger: logging.Discard(),
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listener and begins accepting connections.
func (s *Server) Start() error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("resolve TCP address: %w", err)
	}
	s.listener, err = net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("listen TCP: %w", err)
	}
	s.logger.Info("Simulator (%s) listening on %s", s.device.Dialect(), s.listener.Addr())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound address after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Device returns the simulated device.
func (s *Server) Device() *Device { return s.device }

// Stop closes the listener and every open connection, then waits for the
// handlers to return.
func (s *Server) Stop() error {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.connsMu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.conns = make(map[net.Conn]struct{})
	s.connsMu.Unlock()

	s.wg.Wait()
	s.logger.Info("Simulator stopped")
	return nil
}

// Wait blocks until ctx is done, then stops the server.
func (s *Server) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-s.ctx.Done():
	}
	return s.Stop()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		s.listener.SetDeadline(time.Now().Add(1 * time.Second))
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("Accept error: %v", err)
			continue
		}

		s.connsMu.Lock()
		s.conns[conn] = struct{}{}
		s.connsMu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn *net.TCPConn) {
	defer s.wg.Done()
	defer func() {
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
		conn.Close()
	}()

	remote := conn.RemoteAddr().String()
	s.logger.Verbose("New connection from %s", remote)

	dialect := s.device.Dialect()
	buffer := make([]byte, 0, 256)
	readBuf := make([]byte, 256)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, err := conn.Read(readBuf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Verbose("Connection closed by client: %s", remote)
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if s.ctx.Err() == nil {
				s.logger.Error("Read error from %s: %v", remote, err)
			}
			return
		}

		buffer = append(buffer, readBuf[:n]...)
		frames, rest := splitFrames(dialect, buffer)
		buffer = append(buffer[:0], rest...)

		for _, req := range frames {
			s.logger.LogHex("sim rx", req)
			resp, err := s.device.Respond(req)
			if err != nil {
				s.logger.Debug("No reply to % X: %v", req, err)
				continue
			}
			if dialect == command.DialectASCII {
				resp = append(resp, frame.ASCIILineEnding...)
			}
			if err := s.writeResponse(conn, resp); err != nil {
				s.logger.Error("Write error to %s: %v", remote, err)
				return
			}
		}
	}
}

func (s *Server) writeResponse(conn net.Conn, resp []byte) error {
	act := s.faults.next()
	if act.delay > 0 {
		select {
		case <-time.After(act.delay):
		case <-s.ctx.Done():
			return s.ctx.Err()
		}
	}
	if act.drop {
		s.logger.Debug("Dropping reply (fault injection)")
		return nil
	}
	if act.corrupt && len(resp) > 0 {
		resp = append([]byte(nil), resp...)
		resp[len(resp)-1] ^= 0xFF
	}
	s.logger.LogHex("sim tx", resp)

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if !s.faults.cfg.ChunkWrites {
		_, err := conn.Write(resp)
		return err
	}
	for i := range resp {
		if _, err := conn.Write(resp[i : i+1]); err != nil {
			return err
		}
	}
	return nil
}
