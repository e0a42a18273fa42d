package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/Cogwheel-Validator/spectra-dexgraph/indexer/engine"

type metrics struct {
	pairsCached  metric.Int64Gauge
	initDuration metric.Float64Histogram
	initFailures metric.Int64Counter
}

// newMetrics registers the engine instruments on the global meter provider.
// Instruments created before the provider is installed are forwarded to it once it is set.
func newMetrics() *metrics {
	meter := otel.Meter(instrumentationName)
	m := &metrics{}

	var err error
	m.pairsCached, err = meter.Int64Gauge(
		"dexgraph.pairs.cached",
		metric.WithDescription("Number of pairs cached by a dex after its last initialization"),
		metric.WithUnit("{pair}"),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create pairs cached gauge")
	}

	m.initDuration, err = meter.Float64Histogram(
		"dexgraph.dex.init.duration",
		metric.WithDescription("Time spent initializing a dex"),
		metric.WithUnit("s"),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create init duration histogram")
	}

	m.initFailures, err = meter.Int64Counter(
		"dexgraph.dex.init.failures",
		metric.WithDescription("Number of failed dex initializations"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create init failures counter")
	}
	return m
}

func (m *metrics) recordInit(ctx context.Context, dexName, chainName string, cached int, took time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("dex", dexName),
		attribute.String("chain", chainName),
	)
	if m.initDuration != nil {
		m.initDuration.Record(ctx, took.Seconds(), attrs)
	}
	if err != nil {
		if m.initFailures != nil {
			m.initFailures.Add(ctx, 1, attrs)
		}
		return
	}
	if m.pairsCached != nil {
		m.pairsCached.Record(ctx, int64(cached), attrs)
	}
}
