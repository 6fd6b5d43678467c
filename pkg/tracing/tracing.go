// Package tracing sets up OpenTelemetry tracing for the service. Spans are
// exported over OTLP/HTTP when an endpoint is configured and printed to
// stdout otherwise.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/qaidahub/rewards-core/pkg/logger"
)

// Config holds tracer provider settings.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	// SampleRatio is the share of root traces kept, 0..1.
	SampleRatio float64

	// Endpoint is the OTLP/HTTP collector (host:port). Empty exports to Stdout.
	Endpoint string
	Insecure bool
	Headers  map[string]string

	// Stdout receives spans when no endpoint is set. Default: os.Stdout
	Stdout io.Writer
}

// Shutdown flushes pending spans.
type Shutdown func(ctx context.Context) error

// Init installs the global tracer provider and W3C propagators.
func Init(ctx context.Context, log *logger.Logger, cfg Config) (Shutdown, error) {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "rewards-core"
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return nil, fmt.Errorf("tracing: sample ratio %v is outside 0..1", cfg.SampleRatio)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		// Partial resources are still usable.
		log.Warn("tracing resource incomplete", logger.Err(err))
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "stdout"
	}
	log.Info("tracing initialized",
		logger.String("service", cfg.ServiceName),
		logger.String("endpoint", endpoint),
	)
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	if cfg.Endpoint != "" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(strings.TrimSpace(cfg.Endpoint))}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		return otlptracehttp.New(ctx, opts...)
	}

	out := cfg.Stdout
	if out == nil {
		out = os.Stdout
	}
	return stdouttrace.New(stdouttrace.WithWriter(out))
}

// Tracer returns a named tracer from the global provider. Before Init it is
// a no-op tracer.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// TraceID returns the trace ID carried by ctx, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
