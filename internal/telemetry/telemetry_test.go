package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/PipeOpsHQ/airos/internal/config"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TelemetryConfig{Enabled: true})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	shutdown, err = Init(context.Background(), config.TelemetryConfig{OTLPEndpoint: "localhost:4317"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInstall_RegistersGlobalProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	exporter := tracetest.NewInMemoryExporter()
	shutdown, err := install(context.Background(), config.TelemetryConfig{ServiceName: "airos-test"}, sdktrace.WithSyncer(exporter))
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "probe")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "probe", spans[0].Name)

	var service string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	assert.Equal(t, "airos-test", service)
	require.NoError(t, shutdown(context.Background()))
}
