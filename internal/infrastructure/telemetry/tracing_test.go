package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetup_ExportsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp, shutdown, err := Setup(context.Background(), Config{
		ServiceName: "arena-test",
		SampleRatio: 1,
		Exporter:    exp,
	})
	require.NoError(t, err)
	require.NotNil(t, tp)

	_, span := otel.Tracer("test").Start(context.Background(), "arena.submit_session")
	span.End()

	require.NoError(t, tp.ForceFlush(context.Background()))
	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "arena.submit_session", spans[0].Name)

	require.NoError(t, shutdown(context.Background()))
}

func TestSetup_ZeroRatioDropsRootSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp, shutdown, err := Setup(context.Background(), Config{
		ServiceName: "arena-test",
		Exporter:    exp,
	})
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	_, span := otel.Tracer("test").Start(context.Background(), "dropped")
	span.End()

	require.NoError(t, tp.ForceFlush(context.Background()))
	assert.Empty(t, exp.GetSpans())
}

func TestSetup_RequiresServiceName(t *testing.T) {
	_, _, err := Setup(context.Background(), Config{})
	assert.Error(t, err)
}
