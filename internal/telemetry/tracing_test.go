package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{Enabled: false}, "test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitTracingRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TracingConfig
	}{
		{"sample rate above one", config.TracingConfig{Enabled: true, Exporter: "none", SampleRate: 1.5}},
		{"negative sample rate", config.TracingConfig{Enabled: true, Exporter: "none", SampleRate: -0.1}},
		{"unknown exporter", config.TracingConfig{Enabled: true, Exporter: "zipkin", SampleRate: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := InitTracing(context.Background(), tt.cfg, "test")
			require.Error(t, err)
		})
	}
}

func TestInitTracingNoneExporter(t *testing.T) {
	cfg := config.TracingConfig{Enabled: true, Exporter: "none", ServiceName: "rsvp-test", SampleRate: 0.5}
	shutdown, err := InitTracing(context.Background(), cfg, "test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestEndSpanRecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer(InstrumentationName).Start(context.Background(), "events.Register")
	EndSpan(span, errors.New("event is full"))

	_, clean := tp.Tracer(InstrumentationName).Start(context.Background(), "events.Cancel")
	EndSpan(clean, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, codes.Error, spans[0].Status().Code)
	require.Equal(t, "event is full", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
	require.Equal(t, codes.Unset, spans[1].Status().Code)
}
