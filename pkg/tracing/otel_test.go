package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitialize_Disabled(t *testing.T) {
	cfg := DefaultConfig("pick-floor-test")
	cfg.Enabled = false

	tp, err := Initialize(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, tp.Tracer())
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestTracedOperation_RecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	_, err := TracedOperation(context.Background(), tracer, "claim", func(ctx context.Context) (string, error) {
		assert.NotEmpty(t, TraceID(ctx))
		return "", errors.New("conflict")
	})

	require.Error(t, err)
	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "claim", spans[0].Name())
	assert.Len(t, spans[0].Events(), 1)
}

func TestMapCarrier_RoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	provider := sdktrace.NewTracerProvider()
	ctx, span := provider.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	carrier := MapCarrier{}
	InjectTraceContext(ctx, carrier)
	assert.Contains(t, carrier.Keys(), "traceparent")

	extracted := ExtractTraceContext(context.Background(), carrier)
	assert.Equal(t, TraceID(ctx), extractedTraceID(extracted))
}

func extractedTraceID(ctx context.Context) string {
	_, span := sdktrace.NewTracerProvider().Tracer("child").Start(ctx, "consume")
	defer span.End()
	return span.SpanContext().TraceID().String()
}
