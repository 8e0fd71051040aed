package led

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/audexa/noisewatch/internal/sched"
)

// recordingActuator records every intent it receives.
type recordingActuator struct {
	mu     sync.Mutex
	states []bool
}

func (a *recordingActuator) Set(on bool) {
	a.mu.Lock()
	a.states = append(a.states, on)
	a.mu.Unlock()
}

func (a *recordingActuator) snapshot() []bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]bool, len(a.states))
	copy(out, a.states)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestServiceForwardsIntents(t *testing.T) {
	act := &recordingActuator{}
	scheduler := sched.New()
	svc := NewService(act, scheduler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(ctx)
	}()

	svc.Offer(true)
	waitFor(t, time.Second, func() bool { return len(act.snapshot()) == 1 })

	svc.Offer(false)
	waitFor(t, time.Second, func() bool { return len(act.snapshot()) == 2 })

	got := act.snapshot()
	if !got[0] || got[1] {
		t.Errorf("actuations = %v, want [true false]", got)
	}

	cancel()
	<-done
}

func TestOfferNeverBlocks(t *testing.T) {
	svc := NewService(&recordingActuator{}, sched.New())

	// No consumer running; flooding intents must not deadlock.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 100 {
			svc.Offer(i%2 == 0)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Offer blocked with no consumer")
	}
}

func TestRunStopsOnSchedulerClose(t *testing.T) {
	scheduler := sched.New()
	svc := NewService(&recordingActuator{}, scheduler)

	done := make(chan error, 1)
	go func() {
		done <- svc.Run(context.Background())
	}()

	scheduler.Close()
	svc.Offer(true)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v after scheduler close, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after scheduler close")
	}
}

func TestSysfsActuator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "value")

	act, err := NewSysfsActuator(path)
	if err != nil {
		t.Fatalf("NewSysfsActuator: %v", err)
	}

	act.Set(true)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read value file: %v", err)
	}
	if string(data) != "1" {
		t.Errorf("value file = %q after Set(true), want \"1\"", data)
	}

	act.Set(false)
	data, _ = os.ReadFile(path)
	if string(data) != "0" {
		t.Errorf("value file = %q after Set(false), want \"0\"", data)
	}
}

func TestNewSysfsActuatorRequiresPath(t *testing.T) {
	if _, err := NewSysfsActuator(""); err == nil {
		t.Error("NewSysfsActuator(\"\") succeeded, want error")
	}
}
