// Package monitor runs the periodic ambient noise evaluation cycle:
// poll one sample block, estimate its RMS energy, update the alert
// state and drive the indicator.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.uber.org/atomic"

	"github.com/audexa/noisewatch/internal/alert"
	"github.com/audexa/noisewatch/internal/dsp"
	"github.com/audexa/noisewatch/internal/observe"
	"github.com/audexa/noisewatch/internal/sched"
	"github.com/audexa/noisewatch/internal/source"
)

const (
	// DefaultPeriod is the monitoring cycle period.
	DefaultPeriod = time.Second

	// DefaultBudget is the per-cycle execution budget. Cycles that run
	// longer are counted as overruns; they are never aborted.
	DefaultBudget = time.Millisecond
)

// Indicator receives alert-state intents without blocking.
type Indicator interface {
	Offer(on bool)
}

// TransitionHandler is notified of every alert transition together with
// the RMS reading that caused it. It runs on the monitoring goroutine
// inside the cycle budget, so it must hand off promptly.
type TransitionHandler func(tr alert.Transition, rms float64)

// Stats is a snapshot of monitoring counters for status reporting.
type Stats struct {
	Cycles  uint64  `json:"cycles"`
	Skipped uint64  `json:"skipped"`
	LastRMS float64 `json:"last_rms"`
}

// Task is the periodic noise monitoring loop. Each cycle runs inside
// one standard-tier permit so the audio path always goes first, and the
// whole cycle is budgeted well below the audio interval.
type Task struct {
	source    source.BlockSource
	detector  *alert.Detector
	indicator Indicator
	period    time.Duration
	budget    time.Duration
	sched     *sched.Scheduler
	metrics   *observe.Metrics
	meter     *dsp.LevelMeter
	handler   TransitionHandler

	cycles  atomic.Uint64
	skipped atomic.Uint64
	lastRMS atomic.Float64
}

// Option configures a Task.
type Option func(*Task)

// WithPeriod overrides the monitoring cycle period.
func WithPeriod(d time.Duration) Option {
	return func(t *Task) { t.period = d }
}

// WithBudget overrides the per-cycle execution budget.
func WithBudget(d time.Duration) Option {
	return func(t *Task) { t.budget = d }
}

// WithIndicator attaches an alert indicator.
func WithIndicator(ind Indicator) Option {
	return func(t *Task) { t.indicator = ind }
}

// WithMetrics attaches metric instruments to the task.
func WithMetrics(m *observe.Metrics) Option {
	return func(t *Task) { t.metrics = m }
}

// WithLevelMeter attaches a level meter fed from evaluated blocks.
func WithLevelMeter(meter *dsp.LevelMeter) Option {
	return func(t *Task) { t.meter = meter }
}

// WithTransitionHandler registers a transition callback.
func WithTransitionHandler(h TransitionHandler) Option {
	return func(t *Task) { t.handler = h }
}

// NewTask creates a monitoring task polling src each period.
func NewTask(src source.BlockSource, detector *alert.Detector, scheduler *sched.Scheduler, opts ...Option) (*Task, error) {
	if src == nil || detector == nil {
		return nil, errors.New("block source and detector are required")
	}
	t := &Task{
		source:   src,
		detector: detector,
		period:   DefaultPeriod,
		budget:   DefaultBudget,
		sched:    scheduler,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.period <= 0 {
		return nil, errors.New("monitoring period must be positive")
	}
	return t, nil
}

// Stats returns the current monitoring counters.
func (t *Task) Stats() Stats {
	return Stats{
		Cycles:  t.cycles.Load(),
		Skipped: t.skipped.Load(),
		LastRMS: t.lastRMS.Load(),
	}
}

// State returns the current alert state.
func (t *Task) State() alert.State {
	return t.detector.State()
}

// Run executes monitoring cycles until the context is cancelled or the
// scheduler closes.
func (t *Task) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := t.sched.Acquire(sched.TierStandard); err != nil {
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

// safeCycle isolates a cycle fault to the cycle that raised it: the
// permit is still released and the loop keeps its period, so a
// monitoring fault can never halt the audio path.
func (t *Task) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("monitoring cycle panicked", "panic", r)
		}
	}()
	t.cycle(ctx)
}

// cycle evaluates one monitoring period. When acquisition underruns and
// no block is ready, the cycle is skipped outright: the alert state and
// the indicator are left untouched until fresh samples arrive.
func (t *Task) cycle(ctx context.Context) {
	start := time.Now()

	block, ok := t.source.Poll()
	if !ok {
		t.skipped.Inc()
		if t.metrics != nil {
			t.metrics.CyclesSkipped.Add(ctx, 1)
		}
		return
	}

	rms := dsp.RMS(block)
	t.lastRMS.Store(rms)
	t.cycles.Inc()

	if t.meter != nil {
		t.meter.Observe(rms, dsp.Peak(block))
	}

	if tr := t.detector.Update(rms); tr != alert.TransitionNone {
		slog.Info("noise alert transition",
			"transition", tr.String(),
			"rms", rms,
			"threshold", t.detector.Threshold())
		if t.indicator != nil {
			t.indicator.Offer(tr == alert.TransitionRaised)
		}
		if t.metrics != nil {
			t.metrics.RecordTransition(ctx, tr.String())
		}
		if t.handler != nil {
			t.handler(tr, rms)
		}
	}

	elapsed := time.Since(start)
	if t.metrics != nil {
		t.metrics.MonitorCycleDuration.Record(ctx, elapsed.Seconds())
	}
	if t.budget > 0 && elapsed > t.budget {
		slog.Warn("monitoring cycle exceeded budget",
			"elapsed", elapsed,
			"budget", t.budget)
		if t.metrics != nil {
			t.metrics.BudgetOverruns.Add(ctx, 1)
		}
	}
}
