package dispatch

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/tturner/labctl/internal/command"
	"github.com/tturner/labctl/internal/frame"
	"github.com/tturner/labctl/internal/logging"
	"github.com/tturner/labctl/internal/metrics"
)

// tracerName is the instrumentation scope name for dispatch tracing.
const tracerName = "github.com/tturner/labctl/internal/dispatch"

// Defaults.
const (
	DefaultTurnaround  = 50 * time.Millisecond
	DefaultMaxResponse = 1024
)

// Transport is the byte link the dispatcher drives.
type Transport interface {
	Send(ctx context.Context, data []byte) error
	Receive(ctx context.Context, maxLen int) ([]byte, error)
}

// FrameRecorder receives a copy of every frame on the wire.
type FrameRecorder interface {
	RecordTx(data []byte)
	RecordRx(data []byte)
}

// Outcome is the result of one target in a batch.
type Outcome struct {
	Target  uint16
	Request frame.Frame
	Result  frame.Result
	Err     error
}

// Dispatcher executes commands from one table against one device.
type Dispatcher struct {
	table       *command.Table
	transport   Transport
	device      string
	address     byte
	turnaround  time.Duration
	maxResponse int

	log      *logging.Logger
	observer metrics.Recorder
	recorder FrameRecorder
	tracer   trace.Tracer

	// mu serializes send/receive pairs on the transport.
	mu sync.Mutex
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithAddress sets the device/slave address placed in binary frames.
func WithAddress(addr byte) Option {
	return func(d *Dispatcher) { d.address = addr }
}

// WithDevice names the device in logs, metrics and spans.
func WithDevice(name string) Option {
	return func(d *Dispatcher) { d.device = name }
}

// WithTurnaround sets the quiet time between a reply and the next send in
// a batch. Zero disables pacing.
func WithTurnaround(dur time.Duration) Option {
	return func(d *Dispatcher) { d.turnaround = dur }
}

// WithMaxResponse bounds the bytes read for one reply.
func WithMaxResponse(n int) Option {
	return func(d *Dispatcher) { d.maxResponse = n }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithObserver receives one metric per exchange.
func WithObserver(r metrics.Recorder) Option {
	return func(d *Dispatcher) { d.observer = r }
}

// WithRecorder receives every transmitted and received frame.
func WithRecorder(r FrameRecorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithTracer sets the tracer; the default is the global provider's.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// New creates a dispatcher over table and transport.
func New(table *command.Table, tr Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		table:       table,
		transport:   tr,
		device:      table.Name(),
		address:     0x01,
		turnaround:  DefaultTurnaround,
		maxResponse: DefaultMaxResponse,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logging.Discard()
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer(tracerName)
	}
	if d.maxResponse <= 0 {
		d.maxResponse = DefaultMaxResponse
	}
	return d
}

// Table returns the dispatcher's command table.
func (d *Dispatcher) Table() *command.Table {
	return d.table
}

// Device returns the device name.
func (d *Dispatcher) Device() string {
	return d.device
}

// Address returns the default device address.
func (d *Dispatcher) Address() byte {
	return d.address
}

// Encode builds the request frame for a command without any I/O.
func (d *Dispatcher) Encode(name string, req frame.Request) (frame.Frame, error) {
	spec, err := d.table.Lookup(name)
	if err != nil {
		return frame.Frame{}, err
	}
	f, err := frame.Encode(spec, req)
	if err != nil {
		return frame.Frame{}, &FrameError{Command: name, Err: err}
	}
	return f, nil
}

// Execute runs one command at the default address and target 0.
func (d *Dispatcher) Execute(ctx context.Context, name string, param frame.Param) (frame.Result, error) {
	return d.ExecuteRequest(ctx, name, frame.Request{Address: d.address, Param: param})
}

// ExecuteRequest runs one command with explicit request fields.
func (d *Dispatcher) ExecuteRequest(ctx context.Context, name string, req frame.Request) (frame.Result, error) {
	spec, err := d.table.Lookup(name)
	if err != nil {
		return frame.Result{}, err
	}
	_, res, err := d.exchange(ctx, spec, req)
	return res, err
}

// ExecuteMany runs one command once per target, in order. Each send after
// the first waits one turnaround from the previous reply. Per-target failures are reported in the outcomes; the
// returned error is set only for lookup failure or cancellation, in which
// case the outcomes completed so far are still returned.
func (d *Dispatcher) ExecuteMany(ctx context.Context, name string, targets []uint16, param frame.Param) ([]Outcome, error) {
	spec, err := d.table.Lookup(name)
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, 0, len(targets))
	var pace *rate.Limiter
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		if pace != nil {
			if err := pace.Wait(ctx); err != nil {
				return outcomes, err
			}
		}
		req := frame.Request{Address: d.address, Target: target, Param: param}
		f, res, err := d.exchange(ctx, spec, req)
		outcomes = append(outcomes, Outcome{Target: target, Request: f, Result: res, Err: err})
		pace = d.turnaroundFrom(time.Now())
	}
	return outcomes, nil
}

// turnaroundFrom returns a limiter with its only token spent at t, so the
// next Wait returns one turnaround after t. Nil when pacing is disabled.
func (d *Dispatcher) turnaroundFrom(t time.Time) *rate.Limiter {
	if d.turnaround <= 0 {
		return nil
	}
	l := rate.NewLimiter(rate.Every(d.turnaround), 1)
	l.AllowN(t, 1)
	return l
}

// exchange encodes, performs one exclusive round trip and decodes.
func (d *Dispatcher) exchange(ctx context.Context, spec command.Spec, req frame.Request) (frame.Frame, frame.Result, error) {
	ctx, span := d.tracer.Start(ctx, "labctl.command.execute",
		trace.WithAttributes(
			attribute.String("labctl.device", d.device),
			attribute.String("labctl.command", spec.Name),
			attribute.String("labctl.dialect", string(spec.Dialect)),
			attribute.String("labctl.kind", string(spec.Kind)),
			attribute.Int("labctl.address", int(req.Address)),
			attribute.Int("labctl.target", int(req.Target)),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	m := metrics.Metric{
		Timestamp: time.Now(),
		Device:    d.device,
		Dialect:   string(spec.Dialect),
		Command:   spec.Name,
		Operation: metrics.OperationWrite,
		Target:    req.Target,
	}
	if spec.IsReport() {
		m.Operation = metrics.OperationReport
	}

	f, res, err := d.roundTrip(ctx, spec, req, &m)

	m.Success = err == nil
	if err != nil {
		m.Error = err.Error()
		m.ErrorKind = errorKind(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.String("labctl.result_type", res.Type.String()))
		span.SetStatus(codes.Ok, "")
	}
	if d.observer != nil {
		d.observer.Record(m)
	}
	d.log.LogOperation(spec.Name, d.device, string(spec.Dialect), m.Success, m.RTTMs, err)
	return f, res, err
}

func (d *Dispatcher) roundTrip(ctx context.Context, spec command.Spec, req frame.Request, m *metrics.Metric) (frame.Frame, frame.Result, error) {
	f, err := frame.Encode(spec, req)
	if err != nil {
		return frame.Frame{}, frame.Result{}, &FrameError{Command: spec.Name, Err: err}
	}
	tx := f.Bytes()
	m.TxBytes = len(tx)

	d.mu.Lock()
	start := time.Now()
	d.log.LogHex("tx "+spec.Name, tx)
	if d.recorder != nil {
		d.recorder.RecordTx(tx)
	}
	if err := d.transport.Send(ctx, tx); err != nil {
		d.mu.Unlock()
		return f, frame.Result{}, &TransportError{Op: "send", Command: spec.Name, Err: err}
	}
	raw, err := d.transport.Receive(ctx, d.maxResponse)
	m.RTTMs = float64(time.Since(start).Microseconds()) / 1000
	if err == nil && d.recorder != nil {
		d.recorder.RecordRx(raw)
	}
	d.mu.Unlock()

	if err != nil {
		return f, frame.Result{}, &TransportError{Op: "receive", Command: spec.Name, Err: err}
	}
	m.RxBytes = len(raw)
	d.log.LogHex("rx "+spec.Name, raw)

	res, err := frame.Decode(spec, raw)
	if err != nil {
		return f, frame.Result{}, &FrameError{Command: spec.Name, Err: err}
	}
	return f, res, nil
}
