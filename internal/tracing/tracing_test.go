package tracing

import (
	"context"
	"errors"
	"testing"

	"issuesmap/internal/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func attr(attrs []attribute.KeyValue, key string) string {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

func TestActionSpan(t *testing.T) {
	rec := recordSpans(t)

	_, span := ActionSpan(context.Background(), "add_issue", "anonymous")
	EndWithError(span, nil)
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "action.add_issue", spans[0].Name())
	assert.Equal(t, "add_issue", attr(spans[0].Attributes(), "action.name"))
	assert.Equal(t, "anonymous", attr(spans[0].Attributes(), "identity.kind"))
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestEndWithError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     string
		wantCode codes.Code
		events   int
	}{
		{"validation", errs.Validation("Missing title."), "validation", codes.Unset, 0},
		{"authorization", errs.Authorization("Not allowed."), "authorization", codes.Unset, 0},
		{"dependency", errs.Dependency("Unable to send the email.", errors.New("smtp down")), "dependency_failure", codes.Error, 1},
		{"unclassified", errors.New("boom"), "internal", codes.Error, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := recordSpans(t)
			_, span := ActionSpan(context.Background(), "send_report", "registered")
			EndWithError(span, tt.err)
			span.End()

			s := rec.Ended()[0]
			assert.Equal(t, tt.kind, attr(s.Attributes(), "error.kind"))
			assert.Equal(t, tt.wantCode, s.Status().Code)
			assert.Len(t, s.Events(), tt.events)
		})
	}
}
