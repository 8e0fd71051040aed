package dsp

import "go.uber.org/atomic"

// DefaultSmoothIntervals is the default window for level smoothing.
const DefaultSmoothIntervals = 4

// LevelMeter tracks an exponentially smoothed RMS level for the live
// status feed. Observe must be called from a single goroutine; Level is
// safe to call from any goroutine.
type LevelMeter struct {
	smoothFactor float64
	peak         atomic.Float64
	smoothed     atomic.Float64
}

// NewLevelMeter returns a meter smoothing over the given number of
// observation intervals. Zero or negative disables smoothing.
func NewLevelMeter(smoothIntervals int) *LevelMeter {
	factor := 1.0
	if smoothIntervals > 0 {
		// EMA with the same center of mass as a simple moving average.
		factor = 2 / (float64(smoothIntervals) + 1)
	}
	return &LevelMeter{smoothFactor: factor}
}

// Observe feeds one RMS reading and its block peak into the meter.
func (m *LevelMeter) Observe(rms, peak float64) {
	smoothed := m.smoothed.Load()
	smoothed += (rms - smoothed) * m.smoothFactor
	m.smoothed.Store(smoothed)

	if peak > m.peak.Load() {
		m.peak.Store(peak)
	}
}

// Level returns the current smoothed RMS level.
func (m *LevelMeter) Level() float64 {
	return m.smoothed.Load()
}

// TakePeak returns the held peak and resets it.
func (m *LevelMeter) TakePeak() float64 {
	return m.peak.Swap(0)
}

// Reset clears the smoothed level and held peak.
func (m *LevelMeter) Reset() {
	m.smoothed.Store(0)
	m.peak.Store(0)
}
