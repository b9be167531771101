package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tturner/labctl/internal/capture"
	"github.com/tturner/labctl/internal/command"
	"github.com/tturner/labctl/internal/config"
	"github.com/tturner/labctl/internal/dispatch"
	labctlerrors "github.com/tturner/labctl/internal/errors"
	"github.com/tturner/labctl/internal/frame"
	"github.com/tturner/labctl/internal/logging"
	"github.com/tturner/labctl/internal/metrics"
	"github.com/tturner/labctl/internal/publish"
	"github.com/tturner/labctl/internal/transport"
)

// sessionFlags are shared by every command that talks to a configured device.
type sessionFlags struct {
	configPath  string
	device      string
	address     int
	logLevel    string
	logFile     string
	capturePath string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configPath, "config", "labctl.yaml", "Session config file")
	cmd.Flags().StringVar(&f.device, "device", "", "Device name from the config (optional with one device)")
	cmd.Flags().IntVar(&f.address, "address", -1, "Override the device address (0-255)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level: silent, error, info, verbose, debug")
	cmd.Flags().StringVar(&f.logFile, "log-file", "", "Also log to this file")
	cmd.Flags().StringVar(&f.capturePath, "capture", "", "Record every frame to this pcap file")
}

// sessionOptions selects the optional outputs a command wants.
type sessionOptions struct {
	metricsEndpoint bool
	metricsFile     string
	publish         bool
}

// session is one open device: config, table, transport and dispatcher plus
// every configured sink.
type session struct {
	cfg       *config.Config
	device    config.DeviceConfig
	table     *command.Table
	tablePath string
	endpoint  transport.Endpoint
	transport transport.Transport

	dispatcher *dispatch.Dispatcher
	logger     *logging.Logger
	sink       *metrics.Sink
	writer     *metrics.Writer
	recorder   *capture.Recorder
	publisher  *publish.Publisher
	registry   *prometheus.Registry
	metricsSrv *http.Server
	tracer     *sdktrace.TracerProvider
}

func openSession(ctx context.Context, flags *sessionFlags, opts sessionOptions) (*session, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	dev, err := cfg.Device(flags.device)
	if err != nil {
		return nil, labctlerrors.WrapConfigError(err, flags.configPath)
	}

	s := &session{cfg: cfg, device: dev, tablePath: cfg.TablePath(dev), sink: metrics.NewSink()}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	if s.logger, err = newLogger(cfg.Log, flags.logLevel, flags.logFile); err != nil {
		return nil, err
	}
	if s.table, err = cfg.LoadTable(dev); err != nil {
		return nil, err
	}

	if s.endpoint, err = dev.Endpoint(isLineTable(s.table)); err != nil {
		return nil, labctlerrors.WrapConfigError(err, flags.configPath)
	}

	address := dev.AddressByte()
	if flags.address >= 0 {
		if flags.address > 0xFF {
			return nil, fmt.Errorf("--address must be 0-255, got %d", flags.address)
		}
		address = byte(flags.address)
	}
	s.logger.LogStartup(dev.Name, s.endpoint.String(), s.tablePath, address, flags.configPath)

	recorders := []metrics.Recorder{s.sink}
	if opts.metricsEndpoint && cfg.Metrics.Listen != "" {
		s.registry = prometheus.NewRegistry()
		collectors, err := metrics.NewCollectors(s.registry)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		recorders = append(recorders, collectors)
		if err := s.startMetricsListener(cfg.Metrics.Listen, cfg.Metrics.Path); err != nil {
			return nil, err
		}
	}

	metricsFile := opts.metricsFile
	if metricsFile == "" {
		metricsFile = cfg.Metrics.File
	}
	if metricsFile != "" {
		csvPath, jsonPath := metricsPaths(metricsFile)
		if s.writer, err = metrics.NewWriter(csvPath, jsonPath); err != nil {
			return nil, err
		}
		recorders = append(recorders, s.writer)
	}

	capturePath := flags.capturePath
	if capturePath == "" {
		capturePath = cfg.Capture.Path
	}
	dopts := []dispatch.Option{
		dispatch.WithAddress(address),
		dispatch.WithDevice(dev.Name),
		dispatch.WithTurnaround(dev.Turnaround()),
		dispatch.WithLogger(s.logger),
		dispatch.WithObserver(metrics.Multi(recorders...)),
	}
	if s.logger.GetLevel() >= logging.LogLevelDebug {
		s.tracer = dispatch.NewLoggingTracerProvider(s.logger)
		dopts = append(dopts, dispatch.WithTracer(dispatch.Tracer(s.tracer)))
	}
	if capturePath != "" {
		if s.recorder, err = capture.Create(capturePath, capture.Endpoints{}); err != nil {
			return nil, err
		}
		dopts = append(dopts, dispatch.WithRecorder(s.recorder))
	}

	if opts.publish && cfg.Redis.Enabled() {
		s.publisher, err = publish.Dial(ctx, publish.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		}, s.logger)
		if err != nil {
			return nil, labctlerrors.WrapTransportError(err, cfg.Redis.Addr)
		}
	}

	if s.transport, err = s.endpoint.Open(ctx); err != nil {
		return nil, labctlerrors.WrapTransportError(err, s.endpoint.String())
	}
	s.dispatcher = dispatch.New(s.table, s.transport, dopts...)

	ok = true
	return s, nil
}

func (s *session) startMetricsListener(listen, path string) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listen metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler(s.registry))
	s.metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.logger.Info("Metrics listening on %s%s", ln.Addr(), path)
	go func() {
		if err := s.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server: %v", err)
		}
	}()
	return nil
}

// wrap turns a dispatch error into a user-facing one.
func (s *session) wrap(err error, commandName string) error {
	return labctlerrors.Wrap(err, commandName, s.endpoint.String(), s.tablePath)
}

// Close releases everything the session opened, in reverse order.
func (s *session) Close() error {
	var errs []error
	if s.transport != nil {
		errs = append(errs, s.transport.Close())
	}
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	if s.recorder != nil {
		errs = append(errs, s.recorder.Close())
	}
	if s.writer != nil {
		errs = append(errs, s.writer.Close())
	}
	if s.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errs = append(errs, s.metricsSrv.Shutdown(ctx))
		cancel()
	}
	if s.tracer != nil {
		errs = append(errs, s.tracer.Shutdown(context.Background()))
	}
	if s.logger != nil {
		errs = append(errs, s.logger.Close())
	}
	return errors.Join(errs...)
}

func newLogger(cfg config.LogConfig, levelOverride, fileOverride string) (*logging.Logger, error) {
	levelName := cfg.Level
	if levelOverride != "" {
		levelName = levelOverride
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	file := cfg.File
	if fileOverride != "" {
		file = fileOverride
	}
	return logging.NewLoggerWithOptions(level, file, cfg.Format, cfg.LogEveryN)
}

// isLineTable reports whether the table drives a line-terminated device.
func isLineTable(tbl *command.Table) bool {
	for _, s := range tbl.Specs() {
		if s.Dialect == command.DialectASCII {
			return true
		}
	}
	return false
}

// metricsPaths picks the CSV or JSON writer from the file extension.
func metricsPaths(path string) (csvPath, jsonPath string) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return "", path
	}
	return path, ""
}

// loadTableFlag loads a table given on the command line.
func loadTableFlag(path, dialect string) (*command.Table, error) {
	var d command.Dialect
	if dialect != "" {
		var err error
		if d, err = command.ParseDialect(dialect); err != nil {
			return nil, err
		}
	}
	tbl, err := command.LoadTable(path, d)
	if err != nil {
		return nil, labctlerrors.WrapConfigError(err, path)
	}
	return tbl, nil
}

// execute runs one exchange and publishes its result.
func (s *session) execute(ctx context.Context, name string, target uint16, param frame.Param) (frame.Result, error) {
	start := time.Now()
	res, err := s.dispatcher.ExecuteRequest(ctx, name, frame.Request{
		Address: s.dispatcher.Address(),
		Target:  target,
		Param:   param,
	})
	s.publishOutcome(ctx, target, res, time.Since(start), err)
	return res, err
}

func (s *session) publishOutcome(ctx context.Context, target uint16, res frame.Result, rtt time.Duration, err error) {
	if s.publisher == nil {
		return
	}
	msg := publish.NewMessage(s.device.Name, target, res, rtt, err)
	if perr := s.publisher.Publish(ctx, msg); perr != nil {
		s.logger.Error("Publish failed: %v", perr)
	}
}
