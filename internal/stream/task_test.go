package stream

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/audexa/noisewatch/internal/dsp"
	"github.com/audexa/noisewatch/internal/sched"
)

// collectingSink records every frame it receives.
type collectingSink struct {
	mu     sync.Mutex
	frames []Frame
}

func (s *collectingSink) WriteFrame(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(Frame, len(f))
	copy(cp, f)
	s.frames = append(s.frames, cp)
	return nil
}

func (s *collectingSink) snapshot() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestForwardsAvailableFrames(t *testing.T) {
	want := EncodeBlock(dsp.SampleBlock{100, -100, 100, -100})
	source := SourceFunc(func() (Frame, bool) { return want, true })
	sink := &collectingSink{}

	task, err := NewTask(source, sink, sched.New(), WithInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = task.Run(ctx)
	}()

	waitFor(t, time.Second, func() bool { return len(sink.snapshot()) >= 3 })
	cancel()
	<-done

	for i, got := range sink.snapshot() {
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d = %v, want %v", i, got, want)
		}
	}
	if task.Stats().Dropouts != 0 {
		t.Errorf("dropouts = %d, want 0", task.Stats().Dropouts)
	}
}

func TestDropoutSubstitutesSilence(t *testing.T) {
	source := SourceFunc(func() (Frame, bool) { return nil, false })
	sink := &collectingSink{}

	task, err := NewTask(source, sink, sched.New(), WithInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = task.Run(ctx)
	}()

	waitFor(t, time.Second, func() bool { return len(sink.snapshot()) >= 3 })
	cancel()
	<-done

	silence := make(Frame, FrameBytes)
	for i, got := range sink.snapshot() {
		if !bytes.Equal(got, silence) {
			t.Fatalf("frame %d is not silence", i)
		}
	}
	stats := task.Stats()
	if stats.Dropouts < 3 {
		t.Errorf("dropouts = %d, want >= 3", stats.Dropouts)
	}
}

func TestReversePath(t *testing.T) {
	fwd := EncodeBlock(dsp.SampleBlock{1, 2, 3, 4})
	rev := EncodeBlock(dsp.SampleBlock{-4, -3, -2, -1})

	sink := &collectingSink{}
	revSink := &collectingSink{}

	task, err := NewTask(
		SourceFunc(func() (Frame, bool) { return fwd, true }),
		sink,
		sched.New(),
		WithInterval(time.Millisecond),
		WithReversePath(SourceFunc(func() (Frame, bool) { return rev, true }), revSink),
	)
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = task.Run(ctx)
	}()

	waitFor(t, time.Second, func() bool {
		return len(sink.snapshot()) >= 2 && len(revSink.snapshot()) >= 2
	})
	cancel()
	<-done

	if got := revSink.snapshot()[0]; !bytes.Equal(got, rev) {
		t.Errorf("reverse frame = %v, want %v", got, rev)
	}
}

func TestRunStopsOnSchedulerClose(t *testing.T) {
	scheduler := sched.New()
	task, err := NewTask(
		SourceFunc(func() (Frame, bool) { return nil, false }),
		&collectingSink{},
		scheduler,
		WithInterval(time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}

	scheduler.Close()
	done := make(chan error, 1)
	go func() {
		done <- task.Run(context.Background())
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v after scheduler close, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after scheduler close")
	}
}

func TestNewTaskValidation(t *testing.T) {
	if _, err := NewTask(nil, &collectingSink{}, sched.New()); err == nil {
		t.Error("NewTask without source succeeded, want error")
	}
	if _, err := NewTask(SourceFunc(func() (Frame, bool) { return nil, false }), nil, sched.New()); err == nil {
		t.Error("NewTask without sink succeeded, want error")
	}
	if _, err := NewTask(
		SourceFunc(func() (Frame, bool) { return nil, false }),
		&collectingSink{},
		sched.New(),
		WithInterval(0),
	); err == nil {
		t.Error("NewTask with zero interval succeeded, want error")
	}
}

func TestFrameCodecRoundTrip(t *testing.T) {
	block := dsp.SampleBlock{0, 1, -1, 32767, -32768, 500}
	got := DecodeFrame(EncodeBlock(block))
	if len(got) != len(block) {
		t.Fatalf("decoded length = %d, want %d", len(got), len(block))
	}
	for i := range block {
		if got[i] != block[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], block[i])
		}
	}
}

func TestFrameBytesMatchesInterval(t *testing.T) {
	// 10ms of 16kHz mono s16 audio is 160 samples, 320 bytes.
	if FrameBytes != 320 {
		t.Errorf("FrameBytes = %d, want 320", FrameBytes)
	}
}
