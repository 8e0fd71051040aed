package source

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/audexa/noisewatch/internal/dsp"
)

// Slot is a single-producer/single-consumer hand-off for sample blocks.
// The producer never waits for the consumer: offering a block while an
// unconsumed one is pending overwrites it. Only the most recent ambient
// noise window is diagnostically meaningful, so the loss is accepted and
// counted.
type Slot struct {
	mu          sync.Mutex
	pending     dsp.SampleBlock
	hasPending  bool
	overwritten atomic.Uint64
}

// NewSlot creates an empty slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Offer stores a block for the consumer, replacing any unconsumed one.
func (s *Slot) Offer(block dsp.SampleBlock) {
	s.mu.Lock()
	if s.hasPending {
		s.overwritten.Inc()
	}
	s.pending = block
	s.hasPending = true
	s.mu.Unlock()
}

// Poll removes and returns the pending block. It never blocks; the
// second return value is false when no new block has arrived since the
// last call.
func (s *Slot) Poll() (dsp.SampleBlock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasPending {
		return nil, false
	}
	block := s.pending
	s.pending = nil
	s.hasPending = false
	return block, true
}

// Overwritten returns the number of blocks lost to overwrites.
func (s *Slot) Overwritten() uint64 {
	return s.overwritten.Load()
}
