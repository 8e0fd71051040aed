// Package dsp provides the signal processing for the noise monitor:
// sample blocks, RMS energy estimation and level conversion.
package dsp

import "math"

const (
	// DefaultBlockSize is the number of samples per acquisition block.
	DefaultBlockSize = 64
	// MinDB is the minimum dBFS level (silence).
	MinDB = -60.0
	// MaxSampleValue is the maximum absolute value for 16-bit signed audio.
	MaxSampleValue = 32768.0
)

// SampleBlock is one fixed-size window of consecutive raw signed 16-bit
// samples. A block is immutable once handed to RMS; the consuming task
// owns it for the duration of processing and discards it afterwards.
type SampleBlock []int16

// RMS computes the root-mean-square energy of the block.
//
// The sum of squares is accumulated in an int64: a single squared sample
// is at most 2^30, so blocks of up to 2^33 samples cannot overflow. The
// result is always >= 0; an empty block yields 0.
func RMS(block SampleBlock) float64 {
	if len(block) == 0 {
		return 0
	}

	var sum int64
	for _, s := range block {
		v := int64(s)
		sum += v * v
	}

	return math.Sqrt(float64(sum) / float64(len(block)))
}

// DBFS converts a linear RMS value to decibels relative to full scale,
// clamped to MinDB.
func DBFS(rms float64) float64 {
	if rms <= 0 {
		return MinDB
	}
	return max(20*math.Log10(rms/MaxSampleValue), MinDB)
}

// Peak returns the largest absolute sample value in the block.
func Peak(block SampleBlock) float64 {
	var peak float64
	for _, s := range block {
		if abs := math.Abs(float64(s)); abs > peak {
			peak = abs
		}
	}
	return peak
}
