// Package telemetry wires the construct orchestrator's ambient observability
// (structured logging, metrics, tracing) as explicit dependencies rather than
// global singletons: a *Provider is a value a caller builds and holds, and
// tests can substitute a no-op one deterministically. No constructor in the
// state machine, stage runners, or executor adapter takes a *Provider.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Provider bundles the logger, meter, and tracer a construct run is built
// against. The CLI entry point does not construct one; New and Noop are the
// only ways to obtain a Provider.
type Provider struct {
	Logger *slog.Logger
	Tracer trace.Tracer
	Meter  metric.Meter

	iterationCounter metric.Int64Counter
	costHistogram    metric.Float64Histogram
	tokenCounter     metric.Int64Counter
}

// New constructs a Provider backed by real otel tracer/meter instances and
// the given structured logger.
func New(logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) *Provider {
	p := &Provider{Logger: logger, Tracer: tracer, Meter: meter}
	if meter != nil {
		p.iterationCounter, _ = meter.Int64Counter("construct.iterations")
		p.costHistogram, _ = meter.Float64Histogram("construct.stage.cost_usd")
		p.tokenCounter, _ = meter.Int64Counter("construct.stage.tokens")
	}
	return p
}

// Noop returns a Provider whose logger discards everything, whose tracer is
// otel's no-op tracer, and whose meter is nil, so RecordIteration records no
// metrics. Used in tests and whenever the caller has not configured
// telemetry.
func Noop() *Provider {
	return &Provider{
		Logger: slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1})),
		Tracer: trace.NewNoopTracerProvider().Tracer("construct"),
		Meter:  nil,
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// StartStage opens a span for running one stage and returns the derived
// context and a finish function that records status/duration.
func (p *Provider) StartStage(ctx context.Context, stage string) (context.Context, func(err error)) {
	if p == nil || p.Tracer == nil {
		return ctx, func(error) {}
	}
	start := time.Now()
	ctx, span := p.Tracer.Start(ctx, "construct.stage."+stage)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.AddEvent("stage.duration", trace.WithAttributes(attribute.Float64("duration_s", time.Since(start).Seconds())))
		span.End()
	}
}

// RecordIteration increments the iteration counter and records cost/token
// usage for one stage invocation.
func (p *Provider) RecordIteration(ctx context.Context, stage string, cost float64, tokensIn, tokensOut int64) {
	if p == nil {
		return
	}
	if p.iterationCounter != nil {
		p.iterationCounter.Add(ctx, 1)
	}
	if p.costHistogram != nil && cost > 0 {
		p.costHistogram.Record(ctx, cost)
	}
	if p.tokenCounter != nil {
		p.tokenCounter.Add(ctx, tokensIn+tokensOut)
	}
}

// Log returns the logger, or a discarding logger if the Provider is nil.
func (p *Provider) Log() *slog.Logger {
	if p == nil || p.Logger == nil {
		return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	}
	return p.Logger
}
