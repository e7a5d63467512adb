package observability

import (
	"context"
	"fmt"
	"time"

	"guild-intake/internal/common/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Trace exporters selectable through tracing.exporter.
const (
	ExporterNone   = "none"
	ExporterLog    = "log"
	ExporterStdout = "stdout"
)

// Observability owns the otel meter and tracer of one process role. The
// meter is exported through the default Prometheus registry, so its
// instruments appear on the same /metrics endpoint as the promauto ones.
type Observability struct {
	meterProvider      *metric.MeterProvider
	tracerProvider     *sdktrace.TracerProvider
	meter              otelmetric.Meter
	tracer             trace.Tracer
	submissionCounter  otelmetric.Int64Counter
	submissionDuration otelmetric.Float64Histogram
}

// New wires the Prometheus meter and a tracer whose finished spans are
// batched to the exporter named by traceExporter. Setup failures are logged
// and leave the affected half disabled.
func New(serviceName, traceExporter string, log logger.Logger) *Observability {
	var reader metric.Reader
	if exporter, err := prometheus.New(); err != nil {
		log.Warn("Failed to create Prometheus exporter", map[string]interface{}{"error": err})
	} else {
		reader = exporter
	}

	spans, err := NewSpanExporter(traceExporter, log)
	if err != nil {
		log.Warn("Tracing disabled", map[string]interface{}{"error": err})
	}

	o := newObservability(serviceName, reader, spans)
	otel.SetTracerProvider(o.tracerProvider)
	if o.meterProvider != nil {
		otel.SetMeterProvider(o.meterProvider)
	}
	return o
}

func newObservability(serviceName string, reader metric.Reader, spans sdktrace.SpanExporter) *Observability {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithSampler(sdktrace.AlwaysSample())}
	if spans != nil {
		opts = append(opts, sdktrace.WithBatcher(spans))
	}
	tracerProvider := sdktrace.NewTracerProvider(opts...)

	o := &Observability{
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(serviceName),
	}
	if reader == nil {
		return o
	}

	o.meterProvider = metric.NewMeterProvider(metric.WithReader(reader))
	o.meter = o.meterProvider.Meter(serviceName)

	o.submissionCounter, _ = o.meter.Int64Counter(
		"submissions.processed",
		otelmetric.WithDescription("Number of submissions processed"),
	)
	o.submissionDuration, _ = o.meter.Float64Histogram(
		"submissions.duration",
		otelmetric.WithDescription("Submission processing duration"),
		otelmetric.WithUnit("ms"),
	)
	return o
}

// NewSpanExporter returns nil for "" and "none".
func NewSpanExporter(kind string, log logger.Logger) (sdktrace.SpanExporter, error) {
	switch kind {
	case "", ExporterNone:
		return nil, nil
	case ExporterLog:
		return &logExporter{log: log.WithFields(map[string]interface{}{"component": "tracing"})}, nil
	case ExporterStdout:
		exporter, err := stdouttrace.New()
		if err != nil {
			return nil, fmt.Errorf("stdout trace exporter: %w", err)
		}
		return exporter, nil
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", kind)
	}
}

// logExporter writes each finished span as one structured log line.
type logExporter struct {
	log logger.Logger
}

func (e *logExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		fields := map[string]interface{}{
			"span":       s.Name(),
			"traceId":    s.SpanContext().TraceID().String(),
			"spanId":     s.SpanContext().SpanID().String(),
			"durationMs": s.EndTime().Sub(s.StartTime()).Milliseconds(),
			"status":     s.Status().Code.String(),
		}
		for _, kv := range s.Attributes() {
			fields[string(kv.Key)] = kv.Value.Emit()
		}
		e.log.Info("Span finished", fields)
	}
	return nil
}

func (e *logExporter) Shutdown(context.Context) error {
	return nil
}

// NewNoop is used by tests and by callers that do not export anything.
func NewNoop() *Observability {
	return &Observability{tracer: noop.NewTracerProvider().Tracer("noop")}
}

// StartSpan starts a span named after a pipeline stage.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o == nil || o.tracer == nil {
		return noop.NewTracerProvider().Tracer("noop").Start(ctx, name)
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordJobProcessed(ctx context.Context, command, status string) {
	if o != nil && o.submissionCounter != nil {
		o.submissionCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("command", command),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, command string, duration time.Duration, status string) {
	if o != nil && o.submissionDuration != nil {
		o.submissionDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("command", command),
			attribute.String("status", status),
		))
	}
}

// Shutdown flushes batched spans before returning.
func (o *Observability) Shutdown() {
	if o == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
