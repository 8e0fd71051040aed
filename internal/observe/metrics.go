// Package observe provides the OpenTelemetry metric instruments for the
// monitor. A Prometheus exporter bridge is available via InitProvider so
// metrics can be scraped from the /metrics endpoint.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all noisewatch metrics.
const meterName = "github.com/audexa/noisewatch"

// cycleBuckets defines histogram bucket boundaries in seconds, sized for
// the sub-millisecond monitoring cycles and 10ms audio intervals.
var cycleBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// Metrics holds all metric instruments. The underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// FrameForwardDuration tracks the time spent forwarding one audio
	// frame within its connection interval.
	FrameForwardDuration metric.Float64Histogram

	// MonitorCycleDuration tracks the execution time of one complete
	// noise monitoring cycle.
	MonitorCycleDuration metric.Float64Histogram

	// FramesForwarded counts audio frames moved across the transport
	// boundary.
	FramesForwarded metric.Int64Counter

	// Dropouts counts audio intervals where no frame was ready.
	Dropouts metric.Int64Counter

	// CyclesSkipped counts monitoring cycles skipped on acquisition
	// underrun.
	CyclesSkipped metric.Int64Counter

	// AlertTransitions counts alert transitions. Use with attribute
	// transition=raised|cleared.
	AlertTransitions metric.Int64Counter

	// BudgetOverruns counts monitoring cycles that exceeded the
	// configured execution budget.
	BudgetOverruns metric.Int64Counter
}

// NewMetrics creates all instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FrameForwardDuration, err = m.Float64Histogram("noisewatch.audio.forward.duration",
		metric.WithDescription("Time spent forwarding one audio frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(cycleBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MonitorCycleDuration, err = m.Float64Histogram("noisewatch.monitor.cycle.duration",
		metric.WithDescription("Execution time of one noise monitoring cycle."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(cycleBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FramesForwarded, err = m.Int64Counter("noisewatch.audio.frames",
		metric.WithDescription("Audio frames forwarded across the transport boundary."),
	); err != nil {
		return nil, err
	}
	if met.Dropouts, err = m.Int64Counter("noisewatch.audio.dropouts",
		metric.WithDescription("Audio intervals with no frame ready."),
	); err != nil {
		return nil, err
	}
	if met.CyclesSkipped, err = m.Int64Counter("noisewatch.monitor.cycles_skipped",
		metric.WithDescription("Monitoring cycles skipped on acquisition underrun."),
	); err != nil {
		return nil, err
	}
	if met.AlertTransitions, err = m.Int64Counter("noisewatch.alert.transitions",
		metric.WithDescription("Noise alert transitions."),
	); err != nil {
		return nil, err
	}
	if met.BudgetOverruns, err = m.Int64Counter("noisewatch.monitor.budget_overruns",
		metric.WithDescription("Monitoring cycles exceeding their execution budget."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordTransition increments the alert transition counter with the
// given transition name attribute.
func (m *Metrics) RecordTransition(ctx context.Context, name string) {
	m.AlertTransitions.Add(ctx, 1, metric.WithAttributes(transitionAttr(name)))
}
