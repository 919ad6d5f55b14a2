package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartAndEnd(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	p := NewProviderFrom(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	_, span := p.Start(context.Background(), "action", attribute.String("file", "a.py"))
	End(span, errors.New("boom"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "action", spans[0].Name())
	require.Equal(t, codes.Error, spans[0].Status().Code)
	require.Contains(t, spans[0].Attributes(), attribute.String("file", "a.py"))
}

func TestDisabledProvider(t *testing.T) {
	p, err := NewProvider(context.Background(), TelemetryConfig{})
	require.NoError(t, err)
	_, span := p.Start(context.Background(), "noop")
	End(span, nil)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNilProvider(t *testing.T) {
	var p *Provider
	_, span := p.Start(context.Background(), "noop")
	End(span, nil)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewRunID(t *testing.T) {
	require.NotEqual(t, NewRunID(), NewRunID())
}
