// Package source provides the hand-off structures between the sample
// acquisition driver and the noise monitor: a lossy latest-wins slot and
// a pre-roll ring buffer.
package source

import "github.com/audexa/noisewatch/internal/dsp"

// BlockSource delivers acquired sample blocks to the monitor. Poll must
// never block: it returns false immediately when no new block is ready.
type BlockSource interface {
	Poll() (dsp.SampleBlock, bool)
}

// PollFunc adapts a function to the BlockSource interface.
type PollFunc func() (dsp.SampleBlock, bool)

// Poll calls f.
func (f PollFunc) Poll() (dsp.SampleBlock, bool) {
	return f()
}
