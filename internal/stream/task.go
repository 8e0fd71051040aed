// Package stream moves audio frames between the capture transport and
// the playback device on the connection-interval clock.
package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"go.uber.org/atomic"

	"github.com/audexa/noisewatch/internal/dsp"
	"github.com/audexa/noisewatch/internal/observe"
	"github.com/audexa/noisewatch/internal/sched"
)

const (
	// SampleRate is the fixed capture rate in Hz.
	SampleRate = 16000

	// DefaultInterval is the transport connection interval.
	DefaultInterval = 10 * time.Millisecond

	// FrameBytes is the size of one interval's worth of mono s16le
	// audio: 10ms at 16kHz, two bytes per sample.
	FrameBytes = SampleRate / 100 * 2
)

// Frame is one connection interval of mono s16 little-endian audio.
type Frame []byte

// FrameSource produces frames for forwarding. ReadFrame must never
// block: it returns false immediately when no frame is ready for the
// current interval.
type FrameSource interface {
	ReadFrame() (Frame, bool)
}

// FrameSink accepts forwarded frames. WriteFrame is expected to return
// well within one connection interval.
type FrameSink interface {
	WriteFrame(Frame) error
}

// SourceFunc adapts a function to the FrameSource interface.
type SourceFunc func() (Frame, bool)

// ReadFrame calls f.
func (f SourceFunc) ReadFrame() (Frame, bool) {
	return f()
}

// SinkFunc adapts a function to the FrameSink interface.
type SinkFunc func(Frame) error

// WriteFrame calls f.
func (f SinkFunc) WriteFrame(frame Frame) error {
	return f(frame)
}

// Stats is a snapshot of forwarding counters for status reporting.
type Stats struct {
	Forwarded uint64 `json:"forwarded"`
	Dropouts  uint64 `json:"dropouts"`
}

// Task forwards one frame per connection interval from source to sink.
// When the source has no frame ready the interval is a dropout: a
// silence frame is substituted so the sink's playback clock never
// starves, and the dropout is counted. The task itself never blocks on
// the source.
//
// An optional reverse path carries frames the other way within the same
// interval, for transports that are bidirectional.
type Task struct {
	source   FrameSource
	sink     FrameSink
	revSrc   FrameSource
	revSink  FrameSink
	interval time.Duration
	sched    *sched.Scheduler
	metrics  *observe.Metrics
	meter    *dsp.LevelMeter
	silence  Frame

	forwarded atomic.Uint64
	dropouts  atomic.Uint64
}

// Option configures a Task.
type Option func(*Task)

// WithInterval overrides the connection interval.
func WithInterval(d time.Duration) Option {
	return func(t *Task) { t.interval = d }
}

// WithMetrics attaches metric instruments to the task.
func WithMetrics(m *observe.Metrics) Option {
	return func(t *Task) { t.metrics = m }
}

// WithLevelMeter attaches a level meter fed from forwarded frames.
func WithLevelMeter(meter *dsp.LevelMeter) Option {
	return func(t *Task) { t.meter = meter }
}

// WithReversePath adds a return path serviced in the same interval.
func WithReversePath(src FrameSource, sink FrameSink) Option {
	return func(t *Task) {
		t.revSrc = src
		t.revSink = sink
	}
}

// NewTask creates an audio forwarding task between source and sink.
func NewTask(source FrameSource, sink FrameSink, scheduler *sched.Scheduler, opts ...Option) (*Task, error) {
	if source == nil || sink == nil {
		return nil, errors.New("frame source and sink are required")
	}
	t := &Task{
		source:   source,
		sink:     sink,
		interval: DefaultInterval,
		sched:    scheduler,
		silence:  make(Frame, FrameBytes),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.interval <= 0 {
		return nil, errors.New("connection interval must be positive")
	}
	return t, nil
}

// Stats returns the current forwarding counters.
func (t *Task) Stats() Stats {
	return Stats{
		Forwarded: t.forwarded.Load(),
		Dropouts:  t.dropouts.Load(),
	}
}

// Run forwards frames until the context is cancelled or the scheduler
// closes. Each interval's work runs inside one critical-tier permit, so
// the audio path is never delayed by monitoring or indicator work.
func (t *Task) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := t.sched.Acquire(sched.TierCritical); err != nil {
				if errors.Is(err, sched.ErrClosed) {
					return nil
				}
				return err
			}
			t.safeCycle(ctx)
			t.sched.Release()
		}
	}
}

// safeCycle isolates a cycle fault to the interval that raised it so a
// fault in the forwarding path cannot take the whole task down.
func (t *Task) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("audio cycle panicked", "panic", r)
		}
	}()
	t.cycle(ctx)
}

// cycle performs one interval's forwarding work.
func (t *Task) cycle(ctx context.Context) {
	start := time.Now()

	frame, ok := t.source.ReadFrame()
	if !ok {
		frame = t.silence
		t.dropouts.Inc()
		if t.metrics != nil {
			t.metrics.Dropouts.Add(ctx, 1)
		}
	}

	if err := t.sink.WriteFrame(frame); err != nil {
		slog.Error("audio frame write failed", "error", err)
	} else {
		t.forwarded.Inc()
		if t.metrics != nil {
			t.metrics.FramesForwarded.Add(ctx, 1)
		}
	}

	if t.meter != nil && ok {
		t.observeLevels(frame)
	}

	if t.revSrc != nil && t.revSink != nil {
		if rev, ok := t.revSrc.ReadFrame(); ok {
			if err := t.revSink.WriteFrame(rev); err != nil {
				slog.Error("reverse frame write failed", "error", err)
			}
		}
	}

	if t.metrics != nil {
		t.metrics.FrameForwardDuration.Record(ctx, time.Since(start).Seconds())
	}
}

// observeLevels decodes the frame and feeds the level meter.
func (t *Task) observeLevels(frame Frame) {
	block := DecodeFrame(frame)
	if len(block) == 0 {
		return
	}
	t.meter.Observe(dsp.RMS(block), dsp.Peak(block))
}

// DecodeFrame converts a mono s16le frame into a sample block. A
// trailing odd byte is ignored.
func DecodeFrame(frame Frame) dsp.SampleBlock {
	n := len(frame) / 2
	block := make(dsp.SampleBlock, n)
	for i := range n {
		block[i] = int16(binary.LittleEndian.Uint16(frame[2*i:]))
	}
	return block
}

// EncodeBlock converts a sample block into a mono s16le frame.
func EncodeBlock(block dsp.SampleBlock) Frame {
	frame := make(Frame, len(block)*2)
	for i, s := range block {
		binary.LittleEndian.PutUint16(frame[2*i:], uint16(s))
	}
	return frame
}
