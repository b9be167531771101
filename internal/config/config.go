package config

// Session configuration for labctl: devices, their transports and command
// tables, plus logging, metrics, publishing and capture settings.

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tturner/labctl/internal/command"
	"github.com/tturner/labctl/internal/errors"
	"github.com/tturner/labctl/internal/logging"
	"github.com/tturner/labctl/internal/transport"
)

// Defaults applied by Load.
const (
	DefaultAddress      = 1
	DefaultTurnaroundMs = 50
	DefaultTimeoutMs    = 1000
	DefaultIdleGapMs    = 20
	DefaultRedisChannel = "labctl:results"
	DefaultMetricsPath  = "/metrics"
)

// Config is the top-level session configuration.
type Config struct {
	Log     LogConfig      `yaml:"log"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Redis   RedisConfig    `yaml:"redis"`
	Capture CaptureConfig  `yaml:"capture"`
	Devices []DeviceConfig `yaml:"devices"`

	// dir is the directory of the loaded file; relative table paths
	// resolve against it.
	dir string
}

// LogConfig configures logging.
type LogConfig struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file,omitempty"`
	Format    string `yaml:"format,omitempty"` // "text" or "json"
	LogEveryN int    `yaml:"log_every_n,omitempty"`
}

// MetricsConfig configures the prometheus endpoint and the metrics file.
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty"` // empty disables the endpoint
	Path   string `yaml:"path,omitempty"`
	File   string `yaml:"file,omitempty"` // .csv or .json, empty disables
}

// RedisConfig configures result publishing.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"` // empty disables publishing
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
}

// Enabled reports whether publishing is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// CaptureConfig configures pcap recording of every exchange.
type CaptureConfig struct {
	Path string `yaml:"path,omitempty"` // empty disables capture
}

// DeviceConfig describes one instrument.
type DeviceConfig struct {
	Name         string `yaml:"name"`
	Transport    string `yaml:"transport"`
	Table        string `yaml:"table"`
	Dialect      string `yaml:"dialect,omitempty"` // required for XML tables
	Address      *int   `yaml:"address,omitempty"`
	TurnaroundMs int    `yaml:"turnaround_ms,omitempty"`
	TimeoutMs    int    `yaml:"timeout_ms,omitempty"`
	IdleGapMs    int    `yaml:"idle_ms,omitempty"`
}

// AddressByte returns the configured device address.
func (d DeviceConfig) AddressByte() byte {
	if d.Address == nil {
		return DefaultAddress
	}
	return byte(*d.Address)
}

// Turnaround returns the pause between consecutive commands.
func (d DeviceConfig) Turnaround() time.Duration {
	return time.Duration(d.TurnaroundMs) * time.Millisecond
}

// Timeout returns the response timeout.
func (d DeviceConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

// TableDialect returns the dialect hint for the command table.
func (d DeviceConfig) TableDialect() command.Dialect {
	return command.Dialect(strings.ToLower(d.Dialect))
}

// Endpoint parses the transport with the device's timeouts applied.
// ascii tables switch the transport to line mode.
func (d DeviceConfig) Endpoint(lineMode bool) (transport.Endpoint, error) {
	opts := transport.DefaultOptions()
	if d.TimeoutMs > 0 {
		opts.Timeout = d.Timeout()
	}
	if d.IdleGapMs > 0 {
		opts.IdleGap = time.Duration(d.IdleGapMs) * time.Millisecond
	}
	opts.LineMode = lineMode
	return transport.ParseWithOptions(d.Transport, opts)
}

// Default returns a configuration with one example device per dialect.
func Default() *Config {
	addr1, addr0 := 1, 0
	return &Config{
		Log:     LogConfig{Level: "info", Format: "text", LogEveryN: 1},
		Metrics: MetricsConfig{Listen: ":9108", Path: DefaultMetricsPath},
		Redis:   RedisConfig{Channel: DefaultRedisChannel},
		Devices: []DeviceConfig{
			{
				Name:         "valves",
				Transport:    "tcp://192.168.0.80:10123",
				Table:        "tables/valves.yaml",
				Address:      &addr1,
				TurnaroundMs: DefaultTurnaroundMs,
				TimeoutMs:    DefaultTimeoutMs,
			},
			{
				Name:         "selector",
				Transport:    "serial:///dev/ttyUSB0?baud=9600",
				Table:        "tables/selector.yaml",
				Address:      &addr0,
				TurnaroundMs: DefaultTurnaroundMs,
				TimeoutMs:    DefaultTimeoutMs,
			},
			{
				Name:         "syringe",
				Transport:    "serial:///dev/ttyUSB1?baud=9600",
				Table:        "tables/syringe.yaml",
				TurnaroundMs: DefaultTurnaroundMs,
				TimeoutMs:    DefaultTimeoutMs,
			},
		},
	}
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapConfigError(fmt.Errorf("config file not found: %s", path), path)
		}
		return nil, errors.WrapConfigError(fmt.Errorf("read config file: %w", err), path)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.WrapConfigError(err, path)
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// Parse decodes, defaults and validates YAML configuration text.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.LogEveryN == 0 {
		cfg.Log.LogEveryN = 1
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = DefaultRedisChannel
	}
	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.TurnaroundMs == 0 {
			d.TurnaroundMs = DefaultTurnaroundMs
		}
		if d.TimeoutMs == 0 {
			d.TimeoutMs = DefaultTimeoutMs
		}
		if d.IdleGapMs == 0 {
			d.IdleGapMs = DefaultIdleGapMs
		}
	}
}

// Validate checks a configuration. Devices are optional so a config can
// carry only logging and metrics settings.
func Validate(cfg *Config) error {
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format: must be text or json, got %q", cfg.Log.Format)
	}
	if cfg.Log.LogEveryN < 0 {
		return fmt.Errorf("log.log_every_n: must be >= 0")
	}
	if f := cfg.Metrics.File; f != "" {
		ext := strings.ToLower(filepath.Ext(f))
		if ext != ".csv" && ext != ".json" {
			return fmt.Errorf("metrics.file: extension must be .csv or .json, got %q", ext)
		}
	}
	if cfg.Redis.DB < 0 {
		return fmt.Errorf("redis.db: must be >= 0")
	}

	seen := make(map[string]bool, len(cfg.Devices))
	for i, d := range cfg.Devices {
		if err := validateDevice(d, i); err != nil {
			return err
		}
		if seen[d.Name] {
			return fmt.Errorf("devices[%d]: duplicate name %q", i, d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

func validateDevice(d DeviceConfig, index int) error {
	if d.Name == "" {
		return fmt.Errorf("devices[%d]: name is required", index)
	}
	if d.Transport == "" {
		return fmt.Errorf("devices[%d] (%s): transport is required", index, d.Name)
	}
	if _, err := transport.Parse(d.Transport); err != nil {
		return fmt.Errorf("devices[%d] (%s): transport: %w", index, d.Name, err)
	}
	if d.Table == "" {
		return fmt.Errorf("devices[%d] (%s): table is required", index, d.Name)
	}
	if d.Dialect != "" {
		if _, err := command.ParseDialect(d.Dialect); err != nil {
			return fmt.Errorf("devices[%d] (%s): %w", index, d.Name, err)
		}
	}
	if strings.EqualFold(filepath.Ext(d.Table), ".xml") && d.Dialect == "" {
		return fmt.Errorf("devices[%d] (%s): dialect is required for XML tables", index, d.Name)
	}
	if d.Address != nil && (*d.Address < 0 || *d.Address > 0xFF) {
		return fmt.Errorf("devices[%d] (%s): address must be 0-255, got %d", index, d.Name, *d.Address)
	}
	if d.TurnaroundMs < 0 || d.TimeoutMs < 0 || d.IdleGapMs < 0 {
		return fmt.Errorf("devices[%d] (%s): durations must be >= 0", index, d.Name)
	}
	return nil
}

// Device returns the named device. An empty name selects the only device
// when exactly one is configured.
func (c *Config) Device(name string) (DeviceConfig, error) {
	if name == "" {
		if len(c.Devices) == 1 {
			return c.Devices[0], nil
		}
		return DeviceConfig{}, fmt.Errorf("%d devices configured; choose one with --device", len(c.Devices))
	}
	for _, d := range c.Devices {
		if d.Name == name {
			return d, nil
		}
	}
	return DeviceConfig{}, fmt.Errorf("device %q not found (have %s)", name, strings.Join(c.DeviceNames(), ", "))
}

// DeviceNames lists configured device names in file order.
func (c *Config) DeviceNames() []string {
	names := make([]string, 0, len(c.Devices))
	for _, d := range c.Devices {
		names = append(names, d.Name)
	}
	return names
}

// TablePath resolves a device's table path against the config directory.
func (c *Config) TablePath(d DeviceConfig) string {
	if filepath.IsAbs(d.Table) || c.dir == "" {
		return d.Table
	}
	return filepath.Join(c.dir, d.Table)
}

// LoadTable loads the device's command table.
func (c *Config) LoadTable(d DeviceConfig) (*command.Table, error) {
	path := c.TablePath(d)
	tbl, err := command.LoadTable(path, d.TableDialect())
	if err != nil {
		return nil, errors.WrapConfigError(fmt.Errorf("device %s: %w", d.Name, err), path)
	}
	return tbl, nil
}
