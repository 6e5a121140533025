// Package telemetry wraps OpenTelemetry counters and spans around the
// governance fabric's guarded operations. No OTLP exporter is wired by
// default — the core must never force a collector dependency onto a caller
// who only wants the library — so the trace and meter providers here use
// the SDK's default, collector-less implementations. A caller that wants
// OTLP export configures it themselves.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Provider exposes counters for appends, confirmations issued/consumed,
// duplicate blocks, and transmit attempts, plus spans around the two
// blocking external calls (Truth-Engine submit, adapter submit).
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	appends          metric.Int64Counter
	confirmsIssued   metric.Int64Counter
	confirmsConsumed metric.Int64Counter
	duplicateBlocks  metric.Int64Counter
	transmitAttempts metric.Int64Counter
}

// New builds a Provider backed by the SDK's in-process trace/metric
// providers (no OTLP exporter registered — see package doc).
func New() (*Provider, error) {
	p := &Provider{
		tracerProvider: sdktrace.NewTracerProvider(),
		meterProvider:  sdkmetric.NewMeterProvider(),
	}
	p.tracer = p.tracerProvider.Tracer("huntfabric.corehunt")
	p.meter = p.meterProvider.Meter("huntfabric.corehunt")

	var err error
	if p.appends, err = p.meter.Int64Counter("audit.appends",
		metric.WithDescription("audit chain entries appended")); err != nil {
		return nil, err
	}
	if p.confirmsIssued, err = p.meter.Int64Counter("confirmations.issued",
		metric.WithDescription("submission confirmations issued")); err != nil {
		return nil, err
	}
	if p.confirmsConsumed, err = p.meter.Int64Counter("confirmations.consumed",
		metric.WithDescription("submission confirmations consumed")); err != nil {
		return nil, err
	}
	if p.duplicateBlocks, err = p.meter.Int64Counter("duplicate.blocked",
		metric.WithDescription("submission attempts blocked as duplicates")); err != nil {
		return nil, err
	}
	if p.transmitAttempts, err = p.meter.Int64Counter("transmit.attempts",
		metric.WithDescription("platform adapter submit() invocations")); err != nil {
		return nil, err
	}
	return p, nil
}

// Noop returns a Provider whose instruments discard everything, for tests
// and callers who do not want telemetry wired at all.
func Noop() *Provider {
	p, err := New()
	if err != nil {
		// Instrument creation on a freshly constructed meter cannot fail;
		// a panic here would indicate a broken SDK version pin.
		panic(err)
	}
	return p
}

// RecordAppend increments the audit-append counter.
func (p *Provider) RecordAppend(ctx context.Context, kind string) {
	if p == nil || p.appends == nil {
		return
	}
	p.appends.Add(ctx, 1, metric.WithAttributes(attribute.String("event_kind", kind)))
}

// RecordConfirmationIssued increments the confirmation-issued counter.
func (p *Provider) RecordConfirmationIssued(ctx context.Context) {
	if p == nil || p.confirmsIssued == nil {
		return
	}
	p.confirmsIssued.Add(ctx, 1)
}

// RecordConfirmationConsumed increments the confirmation-consumed counter.
func (p *Provider) RecordConfirmationConsumed(ctx context.Context) {
	if p == nil || p.confirmsConsumed == nil {
		return
	}
	p.confirmsConsumed.Add(ctx, 1)
}

// RecordDuplicateBlocked increments the duplicate-block counter.
func (p *Provider) RecordDuplicateBlocked(ctx context.Context, platform string) {
	if p == nil || p.duplicateBlocks == nil {
		return
	}
	p.duplicateBlocks.Add(ctx, 1, metric.WithAttributes(attribute.String("platform", platform)))
}

// RecordTransmitAttempt increments the transmit-attempt counter.
func (p *Provider) RecordTransmitAttempt(ctx context.Context, platform string, ok bool) {
	if p == nil || p.transmitAttempts == nil {
		return
	}
	p.transmitAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.Bool("ok", ok),
	))
}

// StartSpan starts a span for one of the two blocking external suspension
// points: Truth-Engine submit or platform adapter submit.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if p == nil || p.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return p.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
}

// Shutdown flushes and releases the underlying SDK providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
	}
	if p.meterProvider != nil {
		return p.meterProvider.Shutdown(ctx)
	}
	return nil
}

// SetGlobal installs this provider's tracer as the process-wide
// OpenTelemetry default.
func (p *Provider) SetGlobal() {
	if p == nil {
		return
	}
	otel.SetTracerProvider(p.tracerProvider)
}
