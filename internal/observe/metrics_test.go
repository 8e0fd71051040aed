package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.Dropouts.Add(ctx, 3)
	m.CyclesSkipped.Add(ctx, 1)
	m.FramesForwarded.Add(ctx, 100)

	rm := collect(t, reader)

	tests := []struct {
		name string
		want int64
	}{
		{"noisewatch.audio.dropouts", 3},
		{"noisewatch.monitor.cycles_skipped", 1},
		{"noisewatch.audio.frames", 100},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			metric := findMetric(rm, tc.name)
			if metric == nil {
				t.Fatalf("metric %s not found", tc.name)
			}
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is not an int64 sum", tc.name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			if total != tc.want {
				t.Errorf("%s = %d, want %d", tc.name, total, tc.want)
			}
		})
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.MonitorCycleDuration.Record(ctx, 0.0002)
	m.FrameForwardDuration.Record(ctx, 0.001)

	rm := collect(t, reader)
	for _, name := range []string{
		"noisewatch.monitor.cycle.duration",
		"noisewatch.audio.forward.duration",
	} {
		metric := findMetric(rm, name)
		if metric == nil {
			t.Fatalf("metric %s not found", name)
		}
		hist, ok := metric.Data.(metricdata.Histogram[float64])
		if !ok {
			t.Fatalf("metric %s is not a float64 histogram", name)
		}
		var count uint64
		for _, dp := range hist.DataPoints {
			count += dp.Count
		}
		if count != 1 {
			t.Errorf("%s observation count = %d, want 1", name, count)
		}
	}
}

func TestRecordTransitionAttribute(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordTransition(context.Background(), "raised")
	m.RecordTransition(context.Background(), "raised")
	m.RecordTransition(context.Background(), "cleared")

	rm := collect(t, reader)
	metric := findMetric(rm, "noisewatch.alert.transitions")
	if metric == nil {
		t.Fatal("alert transitions metric not found")
	}
	sum, ok := metric.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("alert transitions metric is not an int64 sum")
	}

	byTransition := map[string]int64{}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value("transition"); ok {
			byTransition[v.AsString()] += dp.Value
		}
	}
	if byTransition["raised"] != 2 || byTransition["cleared"] != 1 {
		t.Errorf("transitions = %v, want raised=2 cleared=1", byTransition)
	}
}
