// Package tracing sets up OpenTelemetry export and the spans wrapped around
// workflow actions.
package tracing

import (
	"context"

	"issuesmap/internal/errs"

	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "issuesmap"

// tracer must be looked up per call; the global provider is replaced by Init.
func tracer() trace.Tracer {
	return otel.Tracer(serviceName)
}

// Config selects the collector and how much to sample.
type Config struct {
	// Endpoint is the OTLP HTTP collector host:port. Default localhost:4318.
	Endpoint string
	// SampleRatio is the fraction of new traces recorded. Zero or above one
	// records everything.
	SampleRatio float64
	Version     string
}

// Init registers a tracer provider exporting over OTLP HTTP. The caller
// shuts the returned provider down to flush pending spans.
func Init(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	otel.SetLogger(zerologr.New(&log.Logger))

	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4318"
	}
	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(cfg.Version),
		)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info().Str("endpoint", cfg.Endpoint).Float64("sample_ratio", cfg.SampleRatio).Msg("tracing: exporter configured")
	return tp, nil
}

// ActionSpan starts the span of one workflow action.
func ActionSpan(ctx context.Context, action, identityKind string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "action."+action,
		trace.WithAttributes(
			attribute.String("action.name", action),
			attribute.String("identity.kind", identityKind),
		),
	)
}

// EndWithError tags the span with the error kind. Rejections caused by the
// caller (validation, permission, missing records) leave the span status
// unset; only dependency and internal failures mark it as an error.
func EndWithError(span trace.Span, err error) {
	if err == nil {
		return
	}
	kind := errs.KindOf(err)
	span.SetAttributes(attribute.String("error.kind", string(kind)))
	switch kind {
	case errs.KindDependency, errs.KindInternal:
		span.RecordError(err)
		span.SetStatus(codes.Error, errs.Message(err))
	}
}
