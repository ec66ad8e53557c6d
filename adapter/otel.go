// Package adapter provides adapters for mutexchan integration with external systems.
package adapter

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/srediag/mutexchan"

// OTel records channel activity as OpenTelemetry spans and counters.
type OTel struct {
	tracer trace.Tracer
	bits   metric.Int64Counter
	bytes  metric.Int64Counter
}

// NewOTel builds an adapter from a meter and a tracer. Nil arguments fall
// back to no-op implementations.
func NewOTel(meter metric.Meter, tracer trace.Tracer) (*OTel, error) {
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	bits, err := meter.Int64Counter("mutexchan.bits",
		metric.WithDescription("Bits set or sampled on the primitive."),
		metric.WithUnit("{bit}"))
	if err != nil {
		return nil, err
	}
	bytes, err := meter.Int64Counter("mutexchan.bytes",
		metric.WithDescription("Bytes transmitted or decoded."),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}
	return &OTel{tracer: tracer, bits: bits, bytes: bytes}, nil
}

// NopOTel returns an adapter that records nothing.
func NopOTel() *OTel {
	a, _ := NewOTel(nil, nil)
	return a
}

// StartSpan starts a span for one protocol phase of role.
func (a *OTel) StartSpan(ctx context.Context, name, role string) (context.Context, trace.Span) {
	return a.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("mutexchan.role", role)))
}

// RecordBit counts one bit for role.
func (a *OTel) RecordBit(ctx context.Context, role string, bit bool) {
	a.bits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mutexchan.role", role),
		attribute.Bool("mutexchan.bit", bit)))
}

// RecordByte counts one byte for role.
func (a *OTel) RecordByte(ctx context.Context, role string) {
	a.bytes.Add(ctx, 1, metric.WithAttributes(attribute.String("mutexchan.role", role)))
}
