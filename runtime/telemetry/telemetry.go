// Package telemetry wires the engine into goa.design/clue logging and OTEL
// metrics/tracing. It uses the global OTEL providers; configure them (for
// example via clue.ConfigureOpenTelemetry or OTEL_EXPORTER_OTLP_ENDPOINT)
// before constructing engine components, otherwise the no-op providers apply.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

// scope is the instrumentation scope name for all engine instruments.
const scope = "github.com/fableforge/fableforge/runtime"

type (
	// RunMetrics records run-engine counters. All methods are nil-safe so
	// components can be constructed without telemetry in tests.
	RunMetrics struct {
		runsCreated      metric.Int64Counter
		runsAutoVivified metric.Int64Counter
		runsEvicted      metric.Int64Counter
		eventsPublished  metric.Int64Counter
		framesDropped    metric.Int64Counter
	}
)

// NewRunMetrics constructs the run-engine counters from the global
// MeterProvider. Instrument creation failures are logged and the affected
// counter is left nil (recording becomes a no-op).
func NewRunMetrics(ctx context.Context) *RunMetrics {
	meter := otel.Meter(scope)
	m := &RunMetrics{}
	m.runsCreated = counter(ctx, meter, "fableforge.runs.created")
	m.runsAutoVivified = counter(ctx, meter, "fableforge.runs.auto_vivified")
	m.runsEvicted = counter(ctx, meter, "fableforge.runs.evicted")
	m.eventsPublished = counter(ctx, meter, "fableforge.events.published")
	m.framesDropped = counter(ctx, meter, "fableforge.frames.dropped")
	return m
}

func counter(ctx context.Context, meter metric.Meter, name string) metric.Int64Counter {
	c, err := meter.Int64Counter(name)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "instrument", V: name})
		return nil
	}
	return c
}

// RunCreated records an explicit run allocation.
func (m *RunMetrics) RunCreated(ctx context.Context) { m.add(ctx, m.runsCreated) }

// RunAutoVivified records a placeholder run created on behalf of a publish,
// subscribe or mailbox call addressed to an unknown run id.
func (m *RunMetrics) RunAutoVivified(ctx context.Context) { m.add(ctx, m.runsAutoVivified) }

// RunsEvicted records runs removed by a janitor sweep.
func (m *RunMetrics) RunsEvicted(ctx context.Context, n int) {
	if m == nil || m.runsEvicted == nil {
		return
	}
	m.runsEvicted.Add(ctx, int64(n))
}

// EventPublished records one published event with its type attribute.
func (m *RunMetrics) EventPublished(ctx context.Context, eventType string) {
	if m == nil || m.eventsPublished == nil {
		return
	}
	m.eventsPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", eventType)))
}

// FrameDropped records a frame discarded because a subscriber queue was full.
func (m *RunMetrics) FrameDropped(ctx context.Context) { m.add(ctx, m.framesDropped) }

func (m *RunMetrics) add(ctx context.Context, c metric.Int64Counter) {
	if m == nil || c == nil {
		return
	}
	c.Add(ctx, 1)
}

// Tracer returns the engine tracer from the global TracerProvider.
func Tracer() trace.Tracer {
	return otel.Tracer(scope)
}
