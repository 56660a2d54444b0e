package forum

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/rbaliyan/forum"
)

// otelInstrumentation holds OpenTelemetry instrumentation for the forum service.
type otelInstrumentation struct {
	enabled bool

	// Tracing
	tracingEnabled bool
	tracer         trace.Tracer

	// Metrics
	metricsEnabled bool

	// Facade operations, partitioned by the "op" attribute
	opLatency metric.Float64Histogram
	opCount   metric.Int64Counter
	opErrors  metric.Int64Counter

	// Listing cache
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter

	// Counter repair
	repairFixed metric.Int64Counter
}

// newOtelInstrumentation creates new OTel instrumentation from options.
func newOtelInstrumentation(opts *options) (*otelInstrumentation, error) {
	o := &otelInstrumentation{
		enabled:        opts.tracingEnabled || opts.metricsEnabled,
		tracingEnabled: opts.tracingEnabled,
		metricsEnabled: opts.metricsEnabled,
	}

	if !o.enabled {
		return o, nil
	}

	if opts.tracingEnabled {
		tp := opts.tracerProvider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		o.tracer = tp.Tracer(instrumentationName)
	}

	if opts.metricsEnabled {
		mp := opts.meterProvider
		if mp == nil {
			mp = otel.GetMeterProvider()
		}
		if err := o.initMetrics(mp); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// initMetrics initializes all metric instruments.
func (o *otelInstrumentation) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)

	var err error

	o.opLatency, err = meter.Float64Histogram(
		"forum.operation.duration",
		metric.WithDescription("Duration of forum operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.opCount, err = meter.Int64Counter(
		"forum.operation.count",
		metric.WithDescription("Number of forum operations"),
	)
	if err != nil {
		return err
	}

	o.opErrors, err = meter.Int64Counter(
		"forum.operation.errors",
		metric.WithDescription("Number of failed forum operations"),
	)
	if err != nil {
		return err
	}

	o.cacheHits, err = meter.Int64Counter(
		"forum.cache.hits",
		metric.WithDescription("Number of listing cache hits"),
	)
	if err != nil {
		return err
	}

	o.cacheMisses, err = meter.Int64Counter(
		"forum.cache.misses",
		metric.WithDescription("Number of listing cache misses"),
	)
	if err != nil {
		return err
	}

	o.repairFixed, err = meter.Int64Counter(
		"forum.repair.fixed",
		metric.WithDescription("Number of topics and boards whose counters were repaired"),
	)
	if err != nil {
		return err
	}

	return nil
}

// startSpan starts a new span if tracing is enabled.
// The returned function ends the span and records err on it.
func (o *otelInstrumentation) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if !o.tracingEnabled || o.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := o.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// recordOp records operation metrics.
func (o *otelInstrumentation) recordOp(ctx context.Context, op string, duration time.Duration, err error) {
	if !o.metricsEnabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("op", op),
	)

	o.opLatency.Record(ctx, duration.Seconds(), attrs)
	o.opCount.Add(ctx, 1, attrs)
	if err != nil {
		o.opErrors.Add(ctx, 1, attrs)
	}
}

// recordCache records a cache lookup.
func (o *otelInstrumentation) recordCache(ctx context.Context, hit bool) {
	if !o.metricsEnabled {
		return
	}
	if hit {
		o.cacheHits.Add(ctx, 1)
	} else {
		o.cacheMisses.Add(ctx, 1)
	}
}

// recordRepair records the entities fixed by a repair pass.
func (o *otelInstrumentation) recordRepair(ctx context.Context, topics, boards int) {
	if !o.metricsEnabled {
		return
	}
	o.repairFixed.Add(ctx, int64(topics), metric.WithAttributes(attribute.String("entity", "topic")))
	o.repairFixed.Add(ctx, int64(boards), metric.WithAttributes(attribute.String("entity", "board")))
}
