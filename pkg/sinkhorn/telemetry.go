package sinkhorn

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "k3l.io/go-sinkhorn/pkg/sinkhorn"

var (
	tracer     = otel.Tracer(instrumentationName)
	iterations metric.Int64Counter
	deviations metric.Float64Histogram
)

func init() {
	meter := otel.Meter(instrumentationName)
	var err error
	iterations, err = meter.Int64Counter("sinkhorn.iterations",
		metric.WithDescription("Sinkhorn-Knopp iterations run"),
		metric.WithUnit("{iteration}"))
	if err != nil {
		iterations = noop.Int64Counter{}
	}
	deviations, err = meter.Float64Histogram("sinkhorn.error",
		metric.WithDescription("doubly stochastic error of normalized matrices"))
	if err != nil {
		deviations = noop.Float64Histogram{}
	}
}

func startSpan(
	ctx context.Context, name string, attrs ...attribute.KeyValue,
) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func recordRun(ctx context.Context, res *Result) {
	attrs := metric.WithAttributes(attribute.Bool("converged", res.Converged))
	iterations.Add(ctx, int64(res.Iterations), attrs)
	deviations.Record(ctx, res.Error, attrs)
}
