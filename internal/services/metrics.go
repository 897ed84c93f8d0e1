package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/gemvault/api/internal/services"

const (
	metricReassignGaps  = "catalog.subcategory.reassign_gaps"
	metricOrderLinkGaps = "orders.link_gaps"
)

// gapCounter counts two-step writes that stopped after the first step.
type gapCounter struct {
	counter metric.Int64Counter
}

func newGapCounter(meter metric.Meter, name, description string) gapCounter {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	counter, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit("{gap}"))
	if err != nil {
		otel.Handle(err)
		return gapCounter{}
	}
	return gapCounter{counter: counter}
}

func (g gapCounter) record(ctx context.Context, attrs ...attribute.KeyValue) {
	if g.counter == nil {
		return
	}
	g.counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func noopLogger(context.Context, string, map[string]any) {}
