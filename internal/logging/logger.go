package logging

// Leveled logging for labctl, backed by logrus.

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelVerbose
	LogLevelDebug
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelSilent:
		return "silent"
	case LogLevelError:
		return "error"
	case LogLevelInfo:
		return "info"
	case LogLevelVerbose:
		return "verbose"
	case LogLevelDebug:
		return "debug"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel maps a config/flag value onto a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "silent", "quiet", "none":
		return LogLevelSilent, nil
	case "error":
		return LogLevelError, nil
	case "", "info":
		return LogLevelInfo, nil
	case "verbose":
		return LogLevelVerbose, nil
	case "debug", "trace":
		return LogLevelDebug, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q (want silent, error, info, verbose or debug)", s)
	}
}

// logrus levels used for each of ours. Verbose has no logrus equivalent and
// rides on DebugLevel; Debug uses TraceLevel.
func (l LogLevel) logrus() logrus.Level {
	switch l {
	case LogLevelError:
		return logrus.ErrorLevel
	case LogLevelInfo:
		return logrus.InfoLevel
	case LogLevelVerbose:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// Fields are structured key/value pairs attached to a log line.
type Fields = logrus.Fields

// Logger provides leveled, structured logging
type Logger struct {
	mu       sync.Mutex
	level    LogLevel
	format   string
	logEvery int
	counter  int
	file     *os.File
	fileLog  *logrus.Logger
	stdout   *logrus.Logger
	stderr   *logrus.Logger
}

// NewLogger creates a new text logger
func NewLogger(level LogLevel, logFile string) (*Logger, error) {
	return NewLoggerWithOptions(level, logFile, "text", 1)
}

// NewLoggerWithOptions creates a logger with an output format ("text" or
// "json") and a console sampling rate: with logEvery > 1 only every Nth
// non-error console line is printed. The log file always gets every line.
func NewLoggerWithOptions(level LogLevel, logFile, format string, logEvery int) (*Logger, error) {
	if format == "" {
		format = "text"
	}
	if format != "text" && format != "json" {
		return nil, fmt.Errorf("unknown log format %q (want text or json)", format)
	}
	if logEvery < 1 {
		logEvery = 1
	}

	l := &Logger{
		level:    level,
		format:   format,
		logEvery: logEvery,
		stdout:   newLogrus(os.Stdout, format, false),
		stderr:   newLogrus(os.Stderr, format, false),
	}

	if logFile != "" {
		file, err := os.Create(logFile)
		if err != nil {
			return nil, fmt.Errorf("create log file: %w", err)
		}
		l.file = file
		l.fileLog = newLogrus(file, format, true)
	}

	return l, nil
}

// Discard returns a silent logger with no outputs.
func Discard() *Logger {
	return &Logger{
		level:    LogLevelSilent,
		format:   "text",
		logEvery: 1,
		stdout:   newLogrus(io.Discard, "text", false),
		stderr:   newLogrus(io.Discard, "text", false),
	}
}

func newLogrus(w io.Writer, format string, timestamps bool) *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(w)
	lg.SetLevel(logrus.TraceLevel)
	if format == "json" {
		lg.SetFormatter(&logrus.JSONFormatter{
			DisableTimestamp: !timestamps,
			FieldMap:         logrus.FieldMap{logrus.FieldKeyMsg: "message"},
		})
	} else {
		lg.SetFormatter(&logrus.TextFormatter{
			DisableColors:    true,
			DisableTimestamp: !timestamps,
			FullTimestamp:    timestamps,
		})
	}
	return lg
}

// Close closes the logger and flushes all data
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.fileLog = nil
		return err
	}
	return nil
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.log(LogLevelError, nil, format, v...)
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.log(LogLevelInfo, nil, format, v...)
}

// Verbose logs a verbose message
func (l *Logger) Verbose(format string, v ...interface{}) {
	l.log(LogLevelVerbose, nil, format, v...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.log(LogLevelDebug, nil, format, v...)
}

func (l *Logger) log(at LogLevel, fields Fields, format string, v ...interface{}) {
	if l == nil || l.GetLevel() < at {
		return
	}
	l.write(at, fields, fmt.Sprintf(format, v...))
}

// write sends a message to the file and the console. Errors go to stderr;
// other levels reach stdout only at verbose or debug.
func (l *Logger) write(at LogLevel, fields Fields, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fileLog != nil {
		l.fileLog.WithFields(fields).Log(at.logrus(), msg)
	}

	if at == LogLevelError {
		l.stderr.WithFields(fields).Log(at.logrus(), msg)
		return
	}
	if l.level < LogLevelVerbose {
		return
	}
	l.counter++
	if l.counter%l.logEvery != 0 {
		return
	}
	l.stdout.WithFields(fields).Log(at.logrus(), msg)
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// LogOperation logs one command exchange with a device. Successes are
// verbose, failures info.
func (l *Logger) LogOperation(command, device, dialect string, success bool, rttMs float64, err error) {
	statusStr := "SUCCESS"
	at := LogLevelVerbose
	if !success {
		statusStr = "FAILED"
		at = LogLevelInfo
	}

	fields := Fields{
		"command": command,
		"device":  device,
		"dialect": dialect,
		"rtt_ms":  fmt.Sprintf("%.3f", rttMs),
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.log(at, fields, "%s %s on %s (RTT: %.3fms)", statusStr, command, device, rttMs)
}

// LogStartup logs the session parameters
func (l *Logger) LogStartup(device, transport, table string, address byte, configPath string) {
	l.Info("Starting labctl session")
	l.Verbose("  Device: %s", device)
	l.Verbose("  Transport: %s", transport)
	l.Verbose("  Table: %s", table)
	l.Verbose("  Address: %d", address)
	l.Verbose("  Config: %s", configPath)
}

// LogHex logs hex data (for debug level)
func (l *Logger) LogHex(label string, data []byte) {
	if l == nil || l.GetLevel() < LogLevelDebug {
		return
	}
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02x", b)
	}
	l.Debug("%s: %s", label, sb.String())
}
