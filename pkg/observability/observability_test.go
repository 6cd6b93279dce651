package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ajitpratap0/nebula-bulk/pkg/config"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	SetTracer(tp.Tracer("test"))
	t.Cleanup(func() { SetTracer(nil) })
	return rec
}

func TestSpanEndRecordsAttributesAndStatus(t *testing.T) {
	rec := withRecorder(t)

	_, span := StartSpan(context.Background(), "download", attribute.String("scheme", "https"))
	span.SetAttribute("bytes", int64(128))
	span.SetAttribute("encoding", "utf-8")
	span.End(nil)

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "download", ended[0].Name())
	assert.Equal(t, codes.Ok, ended[0].Status().Code)
	assert.Contains(t, ended[0].Attributes(), attribute.Int64("bytes", 128))
	assert.Contains(t, ended[0].Attributes(), attribute.String("scheme", "https"))
}

func TestSpanEndRecordsError(t *testing.T) {
	rec := withRecorder(t)

	_, span := StartSpan(context.Background(), "read")
	span.AddEvent("chunk")
	span.End(errors.New("boom"))

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "boom", ended[0].Status().Description)
	require.NotEmpty(t, ended[0].Events())
}

func TestInitDisabledIsNoop(t *testing.T) {
	cfg := config.NewConfig("test").Observability
	cfg.EnableTracing = false

	shutdown, err := Init(cfg, "dev", &bytes.Buffer{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.NotNil(t, Tracer())
}

func TestInitExportsSpans(t *testing.T) {
	cfg := config.NewConfig("test").Observability
	cfg.EnableTracing = true
	cfg.TracingSampleRate = 1.0

	var out bytes.Buffer
	shutdown, err := Init(cfg, "dev", &out)
	require.NoError(t, err)
	t.Cleanup(func() { SetTracer(nil) })

	_, span := StartSpan(context.Background(), "fetch")
	span.End(nil)

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, out.String(), `"Name":"fetch"`)
}

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, sdktrace.NeverSample().Description(), samplerFor(0).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(1).Description())
	assert.Contains(t, samplerFor(0.5).Description(), "TraceIDRatioBased")
}
