package dsp

import (
	"math"
	"testing"
)

func uniformBlock(n int, v int16) SampleBlock {
	block := make(SampleBlock, n)
	for i := range block {
		block[i] = v
	}
	return block
}

func TestRMSUniformBlock(t *testing.T) {
	tests := []struct {
		name string
		v    int16
		want float64
	}{
		{"zero", 0, 0},
		{"positive", 500, 500},
		{"negative", -500, 500},
		{"one", 1, 1},
		{"full scale", 32767, 32767},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := RMS(uniformBlock(DefaultBlockSize, tc.v))
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("RMS(uniform %d) = %v, want %v", tc.v, got, tc.want)
			}
		})
	}
}

func TestRMSEmptyBlock(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
}

func TestRMSNeverNegativeOrNaN(t *testing.T) {
	blocks := []SampleBlock{
		{-32768, 32767, -32768, 32767},
		{-1},
		uniformBlock(DefaultBlockSize, -32768),
		{100, -200, 300, -400, 500, -600, 700, -800},
	}

	for _, block := range blocks {
		got := RMS(block)
		if got < 0 || math.IsNaN(got) {
			t.Errorf("RMS(%v) = %v, want non-negative finite value", block, got)
		}
	}
}

func TestRMSMixedBlock(t *testing.T) {
	// 3-4-5 triangle: sqrt((9+16)/2) is not round, use known values.
	block := SampleBlock{3, 4}
	want := math.Sqrt((9.0 + 16.0) / 2.0)
	if got := RMS(block); math.Abs(got-want) > 1e-12 {
		t.Errorf("RMS({3,4}) = %v, want %v", got, want)
	}
}

func TestDBFS(t *testing.T) {
	if got := DBFS(MaxSampleValue); math.Abs(got) > 1e-9 {
		t.Errorf("DBFS(full scale) = %v, want 0", got)
	}
	if got := DBFS(0); got != MinDB {
		t.Errorf("DBFS(0) = %v, want %v", got, MinDB)
	}
	// Half scale is about -6.02 dB.
	got := DBFS(MaxSampleValue / 2)
	if math.Abs(got-(-6.0206)) > 0.001 {
		t.Errorf("DBFS(half scale) = %v, want about -6.02", got)
	}
}

func TestPeak(t *testing.T) {
	if got := Peak(SampleBlock{10, -300, 200}); got != 300 {
		t.Errorf("Peak = %v, want 300", got)
	}
	if got := Peak(nil); got != 0 {
		t.Errorf("Peak(nil) = %v, want 0", got)
	}
}

func TestLevelMeterSmoothing(t *testing.T) {
	m := NewLevelMeter(0) // no smoothing: level follows input exactly

	m.Observe(400, 500)
	if got := m.Level(); got != 400 {
		t.Errorf("Level = %v, want 400", got)
	}

	m.Observe(100, 200)
	if got := m.Level(); got != 100 {
		t.Errorf("Level = %v, want 100", got)
	}
}

func TestLevelMeterEMAConverges(t *testing.T) {
	m := NewLevelMeter(DefaultSmoothIntervals)

	for range 100 {
		m.Observe(250, 0)
	}
	if got := m.Level(); math.Abs(got-250) > 0.01 {
		t.Errorf("Level after repeated 250 readings = %v, want ~250", got)
	}
}

func TestLevelMeterPeakHold(t *testing.T) {
	m := NewLevelMeter(0)
	m.Observe(0, 700)
	m.Observe(0, 300)

	if got := m.TakePeak(); got != 700 {
		t.Errorf("TakePeak = %v, want 700", got)
	}
	if got := m.TakePeak(); got != 0 {
		t.Errorf("TakePeak after reset = %v, want 0", got)
	}
}
