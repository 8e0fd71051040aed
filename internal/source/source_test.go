package source

import (
	"slices"
	"testing"

	"github.com/audexa/noisewatch/internal/dsp"
)

func TestSlotPollEmpty(t *testing.T) {
	s := NewSlot()

	if _, ok := s.Poll(); ok {
		t.Error("Poll on empty slot returned ok")
	}
}

func TestSlotOfferPoll(t *testing.T) {
	s := NewSlot()
	s.Offer(dsp.SampleBlock{1, 2, 3})

	block, ok := s.Poll()
	if !ok {
		t.Fatal("Poll returned not ok after Offer")
	}
	if !slices.Equal(block, dsp.SampleBlock{1, 2, 3}) {
		t.Errorf("Poll = %v, want [1 2 3]", block)
	}

	// Block is consumed exactly once.
	if _, ok := s.Poll(); ok {
		t.Error("second Poll returned ok, block should be consumed")
	}
}

func TestSlotOverwriteKeepsNewest(t *testing.T) {
	s := NewSlot()
	s.Offer(dsp.SampleBlock{1})
	s.Offer(dsp.SampleBlock{2})
	s.Offer(dsp.SampleBlock{3})

	block, ok := s.Poll()
	if !ok || block[0] != 3 {
		t.Errorf("Poll = %v/%v, want newest block [3]", block, ok)
	}
	if got := s.Overwritten(); got != 2 {
		t.Errorf("Overwritten = %d, want 2", got)
	}
}

func TestRingPartialFill(t *testing.T) {
	r := NewRing(8)
	r.Write([]int16{1, 2, 3})

	if got := r.Snapshot(); !slices.Equal(got, []int16{1, 2, 3}) {
		t.Errorf("Snapshot = %v, want [1 2 3]", got)
	}
	if r.Size() != 3 {
		t.Errorf("Size = %d, want 3", r.Size())
	}
}

func TestRingWrapAround(t *testing.T) {
	r := NewRing(4)
	r.Write([]int16{1, 2, 3})
	r.Write([]int16{4, 5, 6})

	if got := r.Snapshot(); !slices.Equal(got, []int16{3, 4, 5, 6}) {
		t.Errorf("Snapshot = %v, want [3 4 5 6]", got)
	}
}

func TestRingOversizedWrite(t *testing.T) {
	r := NewRing(3)
	r.Write([]int16{1, 2, 3, 4, 5})

	if got := r.Snapshot(); !slices.Equal(got, []int16{3, 4, 5}) {
		t.Errorf("Snapshot = %v, want [3 4 5]", got)
	}
}

func TestRingClear(t *testing.T) {
	r := NewRing(4)
	r.Write([]int16{1, 2})
	r.Clear()

	if got := r.Snapshot(); got != nil {
		t.Errorf("Snapshot after Clear = %v, want nil", got)
	}
}

func TestRingSnapshotDoesNotConsume(t *testing.T) {
	r := NewRing(4)
	r.Write([]int16{7, 8})

	first := r.Snapshot()
	second := r.Snapshot()
	if !slices.Equal(first, second) {
		t.Errorf("repeated snapshots differ: %v vs %v", first, second)
	}
}
