package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Endpoint is a parsed transport specification.
type Endpoint struct {
	Scheme  string // "tcp" or "serial"
	Address string // host:port or device path
	Serial  SerialConfig
	Options Options
}

// Parse parses a transport specification string.
// Supported formats:
//   - "tcp://host:port"
//   - "host:port" (bare address) -> tcp
//   - "serial:///dev/ttyUSB0?baud=9600"
//   - "serial://COM3?baud=115200&parity=even"
//
// Query parameters common to both: timeout_ms, idle_ms, line=true.
func Parse(spec string) (Endpoint, error) {
	return ParseWithOptions(spec, DefaultOptions())
}

// ParseWithOptions parses a transport specification with custom base options.
func ParseWithOptions(spec string, opts Options) (Endpoint, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Endpoint{}, fmt.Errorf("empty transport spec")
	}
	if !strings.Contains(spec, "://") {
		return parseTCPHost(spec, opts)
	}
	return parseURL(spec, opts)
}

// parseURL parses a URL-style transport spec.
func parseURL(spec string, opts Options) (Endpoint, error) {
	u, err := url.Parse(spec)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse URL: %w", err)
	}

	if err := applyQuery(u.Query(), &opts); err != nil {
		return Endpoint{}, err
	}

	switch u.Scheme {
	case "tcp":
		if u.Path != "" && u.Path != "/" {
			return Endpoint{}, fmt.Errorf("tcp spec must not have a path: %s", spec)
		}
		return parseTCPHost(u.Host, opts)
	case "serial":
		return parseSerialURL(u, opts)
	default:
		return Endpoint{}, fmt.Errorf("unsupported transport scheme: %s", u.Scheme)
	}
}

func parseTCPHost(hostport string, opts Options) (Endpoint, error) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid TCP address %q: %w", hostport, err)
	}
	if host == "" {
		return Endpoint{}, fmt.Errorf("TCP host is required")
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return Endpoint{}, fmt.Errorf("invalid port %q", port)
	}
	return Endpoint{Scheme: "tcp", Address: net.JoinHostPort(host, port), Options: opts}, nil
}

// parseSerialURL parses a serial:// URL. The device is the path for
// "serial:///dev/tty..." and the host for "serial://COM3".
func parseSerialURL(u *url.URL, opts Options) (Endpoint, error) {
	path := u.Path
	if u.Host != "" {
		path = u.Host + u.Path
	}
	if path == "" {
		return Endpoint{}, fmt.Errorf("serial device path is required")
	}

	cfg := SerialConfig{Path: path}
	q := u.Query()

	if baud := q.Get("baud"); baud != "" {
		v, err := strconv.Atoi(baud)
		if err != nil || v <= 0 {
			return Endpoint{}, fmt.Errorf("invalid baud rate %q", baud)
		}
		cfg.BaudRate = v
	}
	if bits := q.Get("databits"); bits != "" {
		v, err := strconv.Atoi(bits)
		if err != nil || v < 5 || v > 8 {
			return Endpoint{}, fmt.Errorf("invalid data bits %q", bits)
		}
		cfg.DataBits = v
	}
	switch strings.ToLower(q.Get("parity")) {
	case "", "none", "n":
		cfg.Parity = serial.NoParity
	case "even", "e":
		cfg.Parity = serial.EvenParity
	case "odd", "o":
		cfg.Parity = serial.OddParity
	default:
		return Endpoint{}, fmt.Errorf("invalid parity %q", q.Get("parity"))
	}
	switch q.Get("stopbits") {
	case "", "1":
		cfg.StopBits = serial.OneStopBit
	case "2":
		cfg.StopBits = serial.TwoStopBits
	default:
		return Endpoint{}, fmt.Errorf("invalid stop bits %q", q.Get("stopbits"))
	}

	return Endpoint{Scheme: "serial", Address: path, Serial: cfg, Options: opts}, nil
}

func applyQuery(q url.Values, opts *Options) error {
	if v := q.Get("timeout_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return fmt.Errorf("invalid timeout_ms %q", v)
		}
		opts.Timeout = time.Duration(ms) * time.Millisecond
	}
	if v := q.Get("idle_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return fmt.Errorf("invalid idle_ms %q", v)
		}
		opts.IdleGap = time.Duration(ms) * time.Millisecond
	}
	if v := q.Get("line"); v == "true" || v == "1" {
		opts.LineMode = true
	}
	return nil
}

// Open connects the endpoint.
func (e Endpoint) Open(ctx context.Context) (Transport, error) {
	switch e.Scheme {
	case "tcp":
		return DialTCP(ctx, e.Address, e.Options)
	case "serial":
		return OpenSerial(e.Serial, e.Options)
	default:
		return nil, fmt.Errorf("unsupported transport scheme: %s", e.Scheme)
	}
}

func (e Endpoint) String() string {
	if e.Scheme == "serial" {
		return fmt.Sprintf("serial://%s", e.Address)
	}
	return e.Scheme + "://" + e.Address
}

// Open parses spec and connects it.
func Open(ctx context.Context, spec string, opts Options) (Transport, error) {
	ep, err := ParseWithOptions(spec, opts)
	if err != nil {
		return nil, err
	}
	return ep.Open(ctx)
}

// IsSerial returns true if the spec refers to a serial port.
func IsSerial(spec string) bool {
	return strings.HasPrefix(strings.TrimSpace(spec), "serial://")
}
