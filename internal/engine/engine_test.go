package engine

import (
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/atomic"

	"github.com/audexa/noisewatch/internal/config"
	"github.com/audexa/noisewatch/internal/dsp"
	"github.com/audexa/noisewatch/internal/events"
	"github.com/audexa/noisewatch/internal/stream"
	"github.com/audexa/noisewatch/internal/types"
)

// fakeTransport produces frames filled with a controllable amplitude
// and counts frames written to the sink.
type fakeTransport struct {
	amplitude atomic.Int64
	writes    atomic.Uint64
	openErr   error
}

func (f *fakeTransport) open(config.Snapshot) (stream.FrameSource, stream.FrameSink, io.Closer, error) {
	if f.openErr != nil {
		return nil, nil, nil, f.openErr
	}
	src := stream.SourceFunc(func() (stream.Frame, bool) {
		amp := int16(f.amplitude.Load())
		block := make(dsp.SampleBlock, stream.FrameBytes/2)
		for i := range block {
			block[i] = amp
		}
		return stream.EncodeBlock(block), true
	})
	sink := stream.SinkFunc(func(stream.Frame) error {
		f.writes.Inc()
		return nil
	})
	return src, sink, nil, nil
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	if err := cfg.Load(); err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.SetRMSThreshold(100); err != nil {
		t.Fatalf("set threshold: %v", err)
	}
	if err := cfg.SetMonitorPeriodMs(20); err != nil {
		t.Fatalf("set period: %v", err)
	}
	return cfg
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStartStopLifecycle(t *testing.T) {
	tr := &fakeTransport{}
	e := New(newTestConfig(t), tr.open)

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := e.State(); got != types.StateRunning {
		t.Errorf("state after Start = %q, want %q", got, types.StateRunning)
	}
	if err := e.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}

	waitFor(t, func() bool { return tr.writes.Load() > 0 }, "no frames forwarded")
	waitFor(t, func() bool { return e.Counters().Monitor.Cycles > 0 }, "no monitoring cycles ran")

	if err := e.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := e.State(); got != types.StateStopped {
		t.Errorf("state after Stop = %q, want %q", got, types.StateStopped)
	}
	if err := e.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Stop = %v, want ErrNotRunning", err)
	}
}

func TestAlertRaisedAndCleared(t *testing.T) {
	eventPath := filepath.Join(t.TempDir(), "events.jsonl")
	tr := &fakeTransport{}
	tr.amplitude.Store(1000)
	e := New(newTestConfig(t), tr.open, WithEventLog(eventPath))

	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = e.Stop() }()

	waitFor(t, func() bool { return e.Status().AlertState == "loud" }, "alert never raised")
	waitFor(t, func() bool { return e.AudioLevels().Loud }, "levels never reported loud")

	tr.amplitude.Store(0)
	waitFor(t, func() bool { return e.Status().AlertState == "quiet" }, "alert never cleared")

	if err := e.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	recorded, err := events.ReadLast(eventPath, 20)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	seen := make(map[events.EventType]bool)
	for _, ev := range recorded {
		seen[ev.Event] = true
	}
	for _, want := range []events.EventType{
		events.EventStarted, events.EventRaised, events.EventCleared, events.EventStopped,
	} {
		if !seen[want] {
			t.Errorf("event journal missing %q (got %v)", want, recorded)
		}
	}
}

func TestStartFailsWhenTransportUnavailable(t *testing.T) {
	tr := &fakeTransport{openErr: errors.New("device busy")}
	e := New(newTestConfig(t), tr.open)

	if err := e.Start(); err == nil {
		t.Fatal("Start succeeded with unavailable transport")
	}
	if got := e.State(); got != types.StateStopped {
		t.Errorf("state after failed Start = %q, want %q", got, types.StateStopped)
	}
	if e.Status().LastError == "" {
		t.Error("LastError not recorded after failed Start")
	}
}

func TestAudioLevelsWhenStopped(t *testing.T) {
	e := New(newTestConfig(t), (&fakeTransport{}).open)

	levels := e.AudioLevels()
	if levels.RMSDB != dsp.MinDB || levels.PeakDB != dsp.MinDB {
		t.Errorf("stopped levels = %+v, want silence floor", levels)
	}
	if levels.Loud {
		t.Error("stopped engine reports loud")
	}
}
