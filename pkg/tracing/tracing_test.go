package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInit_StdoutExporter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var out bytes.Buffer
	shutdown, err := Init(context.Background(), nil, Config{
		ServiceName: "rewards-test",
		SampleRatio: 1,
		Stdout:      &out,
	})
	require.NoError(t, err)

	ctx, span := Tracer("test").Start(context.Background(), "coin_ledger.apply")
	assert.NotEmpty(t, TraceID(ctx))
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, out.String(), "coin_ledger.apply")
	assert.Contains(t, out.String(), "rewards-test")
}

func TestInit_RejectsBadRatio(t *testing.T) {
	_, err := Init(context.Background(), nil, Config{SampleRatio: 1.5})
	assert.Error(t, err)
}

func TestEnd_RecordsError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	_, span := tp.Tracer("test").Start(context.Background(), "failing")
	End(span, errors.New("insufficient funds"))

	_, ok := tp.Tracer("test").Start(context.Background(), "ok")
	End(ok, nil)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "insufficient funds", spans[0].Status().Description)
	assert.Len(t, spans[0].Events(), 1)
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
}

func TestTraceID_EmptyWithoutSpan(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))
}
