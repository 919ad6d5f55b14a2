// Package telemetry sets up OpenTelemetry tracing for a run.
package telemetry

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "git-bob"

// TelemetryConfig holds the configuration for telemetry
type TelemetryConfig struct {
	Enabled bool
	// OTLP/HTTP endpoint, e.g. "localhost:4318". Empty uses the exporter's environment defaults.
	Endpoint string
	Version  string
}

// Provider manages the telemetry system
type Provider struct {
	tp     trace.TracerProvider
	sdk    *sdktrace.TracerProvider // nil when disabled
	tracer trace.Tracer
}

// NewProvider creates a new telemetry provider. A disabled provider hands out no-op spans.
func NewProvider(ctx context.Context, config TelemetryConfig) (*Provider, error) {
	if !config.Enabled {
		clog.FromContext(ctx).Debug("Telemetry disabled")
		return newProvider(noop.NewTracerProvider(), nil), nil
	}

	var opts []otlptracehttp.Option
	if config.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(config.Endpoint), otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", config.Version),
	)
	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(sdk)
	clog.FromContext(ctx).Info("Telemetry enabled")
	return newProvider(sdk, sdk), nil
}

// NewProviderFrom wraps an existing tracer provider, e.g. an in-memory one in tests.
func NewProviderFrom(tp trace.TracerProvider) *Provider {
	return newProvider(tp, nil)
}

func newProvider(tp trace.TracerProvider, sdk *sdktrace.TracerProvider) *Provider {
	return &Provider{tp: tp, sdk: sdk, tracer: tp.Tracer(serviceName)}
}

// Shutdown flushes pending spans
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}

// Start starts a span. A nil provider starts no-op spans.
func (p *Provider) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if p == nil {
		return noop.NewTracerProvider().Tracer(serviceName).Start(ctx, name)
	}
	return p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on the span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// NewRunID generates a new run UUID
func NewRunID() string {
	return uuid.New().String()
}
