package engine

import (
	"github.com/audexa/noisewatch/internal/dsp"
	"github.com/audexa/noisewatch/internal/source"
	"github.com/audexa/noisewatch/internal/stream"
)

// tapSource splits the forward audio path: every captured frame is also
// appended to the pre-roll ring and chunked into acquisition blocks for
// the monitor's sample slot. ReadFrame is called only from the
// streaming goroutine, so the carry buffer needs no locking.
type tapSource struct {
	inner     stream.FrameSource
	slot      *source.Slot
	ring      *source.Ring
	blockSize int
	carry     dsp.SampleBlock
}

func (t *tapSource) ReadFrame() (stream.Frame, bool) {
	frame, ok := t.inner.ReadFrame()
	if !ok {
		return nil, false
	}

	samples := stream.DecodeFrame(frame)
	t.ring.Write(samples)

	t.carry = append(t.carry, samples...)
	for len(t.carry) >= t.blockSize {
		block := make(dsp.SampleBlock, t.blockSize)
		copy(block, t.carry[:t.blockSize])
		t.slot.Offer(block)
		t.carry = append(t.carry[:0], t.carry[t.blockSize:]...)
	}

	return frame, ok
}
