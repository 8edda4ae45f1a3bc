package otelhelper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpanAndSetError(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	_, span := StartSpan(context.Background(), tracer, "workflow.step", attribute.String(StepIDKey, "s1"))
	SetError(span, errors.New("tool failed"), attribute.String(StepTypeKey, "tool"))
	span.End()

	ended := recorder.Ended()
	assert.Len(t, ended, 1)
	assert.Equal(t, "workflow.step", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "tool failed", ended[0].Status().Description)
	assert.Contains(t, ended[0].Attributes(), attribute.String(StepIDKey, "s1"))
}

func TestNoopTracer(t *testing.T) {
	t.Parallel()

	_, span := StartSpan(context.Background(), NoopTracer(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}
