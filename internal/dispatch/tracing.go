package dispatch

import (
	"context"
	"strings"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/tturner/labctl/internal/logging"
)

// SpanLogger is a span exporter that writes each finished span to a
// Logger at debug level.
type SpanLogger struct {
	log *logging.Logger
}

// NewSpanLogger creates a SpanLogger.
func NewSpanLogger(l *logging.Logger) *SpanLogger {
	return &SpanLogger{log: l}
}

// ExportSpans logs spans in the order they finished.
func (e *SpanLogger) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		dur := s.EndTime().Sub(s.StartTime())
		e.log.Debug("span %s trace=%s dur=%s status=%s %s",
			s.Name(), s.SpanContext().TraceID(), dur, s.Status().Code, formatAttributes(s))
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *SpanLogger) Shutdown(context.Context) error { return nil }

func formatAttributes(s sdktrace.ReadOnlySpan) string {
	attrs := s.Attributes()
	parts := make([]string, 0, len(attrs))
	for _, kv := range attrs {
		parts = append(parts, string(kv.Key)+"="+kv.Value.Emit())
	}
	return strings.Join(parts, " ")
}

// NewLoggingTracerProvider returns a provider whose spans go to l
// synchronously. Callers shut it down when the session ends.
func NewLoggingTracerProvider(l *logging.Logger) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(sdktrace.WithSyncer(NewSpanLogger(l)))
}

// Tracer returns the dispatcher tracer from provider p.
func Tracer(p trace.TracerProvider) trace.Tracer {
	return p.Tracer(tracerName)
}
