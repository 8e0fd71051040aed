// Package engine orchestrates the monitoring pipeline: it owns the
// run-permit scheduler and the three tasks sharing it, fans alert
// transitions out to notifications and dump capture, and exposes the
// lifecycle and status surface the control server builds on.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/audexa/noisewatch/internal/alert"
	"github.com/audexa/noisewatch/internal/alertdump"
	"github.com/audexa/noisewatch/internal/config"
	"github.com/audexa/noisewatch/internal/dsp"
	"github.com/audexa/noisewatch/internal/events"
	"github.com/audexa/noisewatch/internal/led"
	"github.com/audexa/noisewatch/internal/monitor"
	"github.com/audexa/noisewatch/internal/notify"
	"github.com/audexa/noisewatch/internal/observe"
	"github.com/audexa/noisewatch/internal/sched"
	"github.com/audexa/noisewatch/internal/source"
	"github.com/audexa/noisewatch/internal/stream"
	"github.com/audexa/noisewatch/internal/types"
	"github.com/audexa/noisewatch/internal/util"
)

// Sentinel errors for engine operations.
var (
	ErrAlreadyRunning = errors.New("monitor is already running")
	ErrNotRunning     = errors.New("monitor is not running")
)

// preRollSeconds is how much recent audio the dump ring retains.
const preRollSeconds = 5

// stableUptime is how long a run must survive before the restart
// backoff resets.
const stableUptime = time.Minute

// OpenTransport opens the capture and playback endpoints for one engine
// run. The closer releases both when the run ends.
type OpenTransport func(snap config.Snapshot) (stream.FrameSource, stream.FrameSink, io.Closer, error)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// FileTransport opens the configured capture device as a raw mono s16le
// sample stream and discards playback frames. Used where the transport
// is exposed as a character device or FIFO.
func FileTransport(snap config.Snapshot) (stream.FrameSource, stream.FrameSink, io.Closer, error) {
	if snap.AudioDevice == "" {
		return nil, nil, nil, errors.New("audio device is not configured")
	}

	f, err := os.Open(snap.AudioDevice)
	if err != nil {
		return nil, nil, nil, util.WrapError("open capture device", err)
	}

	src := stream.NewReaderSource(f)
	closer := closerFunc(func() error {
		src.Close()
		return f.Close()
	})
	return src, stream.NewWriterSink(io.Discard), closer, nil
}

// Counters is a snapshot of the task counters for status reporting.
type Counters struct {
	Monitor    monitor.Stats `json:"monitor"`
	Stream     stream.Stats  `json:"stream"`
	Overwrites uint64        `json:"overwrites"`
}

// Engine manages the monitoring pipeline lifecycle. All methods are
// safe for concurrent use.
type Engine struct {
	cfg       *config.Config
	transport OpenTransport
	metrics   *observe.Metrics
	notifier  *notify.AlertNotifier
	backoff   *util.Backoff
	eventPath string

	// mu protects the state fields and the live components below
	mu           sync.RWMutex
	state        types.EngineState
	lastError    error
	startTime    time.Time
	stopChan     chan struct{}
	doneChan     chan struct{}
	restartTimer *time.Timer

	// Live components, rebuilt on every Start
	scheduler *sched.Scheduler
	slot      *source.Slot
	ring      *source.Ring
	detector  *alert.Detector
	meter     *dsp.LevelMeter
	monitor   *monitor.Task
	stream    *stream.Task
	indicator *led.Service
	dumper    *alertdump.Dumper
	eventLog  *events.Logger

	lastKnownLevels types.AudioLevels
}

// Option configures an Engine.
type Option func(*Engine)

// WithEventLog enables the JSONL event journal at the given path.
func WithEventLog(path string) Option {
	return func(e *Engine) { e.eventPath = path }
}

// WithMetrics attaches metric instruments to the engine's tasks.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an engine using the given transport opener.
func New(cfg *config.Config, transport OpenTransport, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg,
		transport: transport,
		notifier:  notify.NewAlertNotifier(cfg),
		backoff:   util.NewBackoff(types.InitialRetryDelay, types.MaxRetryDelay),
		state:     types.StateStopped,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start brings the monitoring pipeline up. It opens the transport,
// builds the tasks around a fresh scheduler and launches them.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.state != types.StateStopped {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.state = types.StateStarting
	e.mu.Unlock()

	snap := e.cfg.Snapshot()

	src, sink, closer, err := e.transport(snap)
	if err != nil {
		e.failStart(err)
		return util.WrapError("open audio transport", err)
	}

	if err := e.buildPipeline(snap, src, sink); err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		e.failStart(err)
		return err
	}

	e.notifier.Reset()
	e.openEventLog()
	if e.dumper != nil {
		e.dumper.Start()
	}

	e.mu.Lock()
	e.state = types.StateRunning
	e.startTime = time.Now()
	e.lastError = nil
	e.stopChan = make(chan struct{})
	e.doneChan = make(chan struct{})
	scheduler := e.scheduler
	stopChan := e.stopChan
	e.mu.Unlock()

	e.logEvent(&events.AlertEvent{
		Event:     events.EventStarted,
		Threshold: snap.RMSThreshold,
	})

	go e.run(scheduler, stopChan, closer)

	slog.Info("noise monitor started",
		"threshold", snap.RMSThreshold,
		"period_ms", snap.MonitorPeriodMs,
		"interval_ms", snap.AudioIntervalMs)
	return nil
}

// failStart records a startup failure and returns to the stopped state.
func (e *Engine) failStart(err error) {
	e.mu.Lock()
	e.state = types.StateStopped
	e.lastError = err
	e.mu.Unlock()
	slog.Error("monitor start failed", "error", err)
}

// buildPipeline constructs the tasks for one run. Caller is in the
// starting state, so no run goroutine touches the component fields.
func (e *Engine) buildPipeline(snap config.Snapshot, src stream.FrameSource, sink stream.FrameSink) error {
	detector, err := alert.NewDetector(snap.RMSThreshold)
	if err != nil {
		return util.WrapError("configure detector", err)
	}

	scheduler := sched.New()
	slot := source.NewSlot()
	ring := source.NewRing(types.SampleRate * preRollSeconds)
	meter := dsp.NewLevelMeter(snap.SmoothIntervals)

	var actuator led.Actuator = led.LogActuator{}
	if snap.GPIOPath != "" {
		sysfs, err := led.NewSysfsActuator(snap.GPIOPath)
		if err != nil {
			return util.WrapError("open indicator GPIO", err)
		}
		actuator = sysfs
	}
	indicator := led.NewService(actuator, scheduler)

	monitorTask, err := monitor.NewTask(slot, detector, scheduler,
		monitor.WithPeriod(time.Duration(snap.MonitorPeriodMs)*time.Millisecond),
		monitor.WithBudget(time.Duration(snap.CycleBudgetMs)*time.Millisecond),
		monitor.WithIndicator(indicator),
		monitor.WithMetrics(e.metrics),
		monitor.WithLevelMeter(meter),
		monitor.WithTransitionHandler(e.handleTransition),
	)
	if err != nil {
		return util.WrapError("configure monitor task", err)
	}

	tap := &tapSource{inner: src, slot: slot, ring: ring, blockSize: snap.BlockSize}
	streamTask, err := stream.NewTask(tap, sink, scheduler,
		stream.WithInterval(time.Duration(snap.AudioIntervalMs)*time.Millisecond),
		stream.WithMetrics(e.metrics),
	)
	if err != nil {
		return util.WrapError("configure stream task", err)
	}

	dumper, err := alertdump.NewDumper(snap.Dump, ring, types.SampleRate, e.uploadAbandoned)
	if err != nil {
		// Dumps are best-effort; the monitor still runs without them.
		slog.Warn("alert dumps disabled", "error", err)
		dumper = nil
	}

	e.mu.Lock()
	e.scheduler = scheduler
	e.slot = slot
	e.ring = ring
	e.detector = detector
	e.meter = meter
	e.monitor = monitorTask
	e.stream = streamTask
	e.indicator = indicator
	e.dumper = dumper
	e.mu.Unlock()
	return nil
}

// run supervises the tasks of one engine run and tears the run down
// when they exit, whether by Stop or by failure.
func (e *Engine) run(scheduler *sched.Scheduler, stopChan chan struct{}, closer io.Closer) {
	e.mu.RLock()
	doneChan := e.doneChan
	streamTask, monitorTask, indicator, dumper := e.stream, e.monitor, e.indicator, e.dumper
	e.mu.RUnlock()

	defer close(doneChan)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stopChan:
		case <-doneChan:
		}
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(e.runTask(gctx, scheduler, "audio", streamTask.Run))
	g.Go(e.runTask(gctx, scheduler, "monitor", monitorTask.Run))
	g.Go(e.runTask(gctx, scheduler, "indicator", indicator.Run))
	err := g.Wait()

	indicator.Off()
	if dumper != nil {
		dumper.Stop()
	}
	if closer != nil {
		_ = closer.Close()
	}

	e.mu.Lock()
	stopping := e.state == types.StateStopping
	uptime := time.Since(e.startTime)
	if err != nil {
		e.lastError = err
	}
	e.state = types.StateStopped
	e.mu.Unlock()

	if uptime >= stableUptime {
		e.backoff.Reset()
	}

	if err != nil {
		slog.Error("monitor stopped after task failure", "error", err, "uptime", uptime)
		e.logEvent(&events.AlertEvent{Event: events.EventError, Error: err.Error()})
	}
	e.logEvent(&events.AlertEvent{Event: events.EventStopped})
	e.closeEventLog()

	if err != nil && !stopping {
		e.scheduleRestart()
		return
	}
	slog.Info("noise monitor stopped", "uptime", uptime)
}

// runTask wraps a task loop with panic isolation. A panicked task holds
// the run permit forever, so the scheduler is closed to release its
// peers before the failure is reported.
func (e *Engine) runTask(ctx context.Context, scheduler *sched.Scheduler, name string, fn func(context.Context) error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("task panicked", "task", name, "panic", r)
				scheduler.Close()
				err = fmt.Errorf("%s task panicked: %v", name, r)
			}
		}()
		if err := fn(ctx); err != nil {
			return fmt.Errorf("%s task: %w", name, err)
		}
		return nil
	}
}

// scheduleRestart retries Start after a crashed run, backing off
// exponentially between attempts.
func (e *Engine) scheduleRestart() {
	delay := e.backoff.Next()
	slog.Info("restarting monitor after failure", "delay", delay)

	timer := time.AfterFunc(delay, func() {
		if err := e.Start(); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			slog.Error("monitor restart failed", "error", err)
		}
	})

	e.mu.Lock()
	e.restartTimer = timer
	e.mu.Unlock()
}

// Stop shuts the pipeline down and waits for the tasks to exit.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.restartTimer != nil {
		e.restartTimer.Stop()
		e.restartTimer = nil
	}
	if e.state != types.StateRunning {
		e.mu.Unlock()
		return ErrNotRunning
	}
	e.state = types.StateStopping
	stopChan := e.stopChan
	doneChan := e.doneChan
	scheduler := e.scheduler
	e.mu.Unlock()

	slog.Info("stopping noise monitor")
	close(stopChan)
	scheduler.Close()

	select {
	case <-doneChan:
	case <-time.After(types.ShutdownTimeout):
		slog.Warn("monitor tasks did not stop within timeout")
	}
	return nil
}

// Restart performs a full stop/start cycle, picking up configuration
// changes that only apply at pipeline construction.
func (e *Engine) Restart() error {
	if err := e.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return e.Start()
}

// handleTransition runs on the monitoring goroutine inside the cycle
// budget, so all notification and dump work is handed off immediately.
func (e *Engine) handleTransition(tr alert.Transition, rms float64) {
	go e.dispatchTransition(tr, rms)
}

// dispatchTransition fans one alert transition out to dump capture, the
// notification channels and the event journal.
func (e *Engine) dispatchTransition(tr alert.Transition, rms float64) {
	threshold := e.cfg.Snapshot().RMSThreshold

	switch tr {
	case alert.TransitionRaised:
		var dump *notify.DumpInfo
		e.mu.RLock()
		dumper := e.dumper
		e.mu.RUnlock()
		if dumper != nil {
			dump = dumper.Capture()
		}

		e.notifier.AlertRaised(rms, dump)

		ev := &events.AlertEvent{Event: events.EventRaised, RMS: rms, Threshold: threshold}
		if dump != nil {
			if dump.Err != nil {
				ev.Error = dump.Err.Error()
			} else {
				ev.DumpFile = dump.Filename
			}
		}
		e.logEvent(ev)

	case alert.TransitionCleared:
		e.notifier.AlertCleared(rms)
		e.logEvent(&events.AlertEvent{Event: events.EventCleared, RMS: rms, Threshold: threshold})
	}
}

// uploadAbandoned reports a permanently failed dump upload by email.
func (e *Engine) uploadAbandoned(p notify.UploadAbandonedParams) {
	gc := e.cfg.GraphConfig()
	util.LogNotifyResult(
		func() error { return notify.SendUploadAbandonedEmail(&gc, p) },
		"Upload abandoned email",
	)
}

// openEventLog opens the event journal when a path is configured.
func (e *Engine) openEventLog() {
	if e.eventPath == "" {
		return
	}
	logger, err := events.NewLogger(e.eventPath)
	if err != nil {
		slog.Warn("event journal disabled", "path", e.eventPath, "error", err)
		return
	}
	e.mu.Lock()
	e.eventLog = logger
	e.mu.Unlock()
}

// logEvent writes to the event journal when it is open.
func (e *Engine) logEvent(ev *events.AlertEvent) {
	e.mu.RLock()
	logger := e.eventLog
	e.mu.RUnlock()
	if logger == nil {
		return
	}
	if err := logger.Log(ev); err != nil {
		slog.Warn("event journal write failed", "error", err)
	}
}

// closeEventLog closes the event journal at the end of a run.
func (e *Engine) closeEventLog() {
	e.mu.Lock()
	logger := e.eventLog
	e.eventLog = nil
	e.mu.Unlock()
	if logger != nil {
		if err := logger.Close(); err != nil {
			slog.Warn("event journal close failed", "error", err)
		}
	}
}

// EventLogPath returns the event journal path, empty when disabled.
func (e *Engine) EventLogPath() string {
	return e.eventPath
}

// State returns the current engine state.
func (e *Engine) State() types.EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Status returns a summary of the engine's operational state.
func (e *Engine) Status() types.EngineStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	status := types.EngineStatus{
		State:      e.state,
		AlertState: string(alert.StateQuiet),
	}
	if e.detector != nil {
		status.AlertState = string(e.detector.State())
	}
	if e.state == types.StateRunning {
		status.Uptime = time.Since(e.startTime).Round(time.Second).String()
	}
	if e.lastError != nil {
		status.LastError = e.lastError.Error()
	}
	return status
}

// Counters returns the current task counters.
func (e *Engine) Counters() Counters {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var c Counters
	if e.monitor != nil {
		c.Monitor = e.monitor.Stats()
	}
	if e.stream != nil {
		c.Stream = e.stream.Stats()
	}
	if e.slot != nil {
		c.Overwrites = e.slot.Overwritten()
	}
	return c
}

// AudioLevels returns the current audio levels for the live feed. When
// the engine lock is contended the last known levels are returned so
// the feed never stalls behind a state change.
func (e *Engine) AudioLevels() types.AudioLevels {
	if !e.mu.TryRLock() {
		return e.lastKnownLevels
	}
	running := e.state == types.StateRunning
	meter := e.meter
	detector := e.detector
	streamTask := e.stream
	slot := e.slot
	e.mu.RUnlock()

	if !running || meter == nil {
		return types.AudioLevels{RMSDB: dsp.MinDB, PeakDB: dsp.MinDB}
	}

	rms := meter.Level()
	peak := meter.TakePeak()
	levels := types.AudioLevels{
		RMS:        rms,
		RMSDB:      dsp.DBFS(rms),
		Peak:       peak,
		PeakDB:     dsp.DBFS(peak),
		Loud:       detector.State() == alert.StateLoud,
		Threshold:  detector.Threshold(),
		Dropouts:   streamTask.Stats().Dropouts,
		Overwrites: slot.Overwritten(),
	}

	e.mu.Lock()
	e.lastKnownLevels = levels
	e.mu.Unlock()
	return levels
}

// InvalidateGraphClient drops the cached Graph client so the next email
// uses fresh credentials. Call after the email settings change.
func (e *Engine) InvalidateGraphClient() {
	e.notifier.InvalidateGraphClient()
}

// TriggerTestWebhook sends a test webhook notification.
func (e *Engine) TriggerTestWebhook() error {
	snap := e.cfg.Snapshot()
	if !snap.HasWebhook() {
		return errors.New("no webhook URL configured")
	}
	return notify.SendTestWebhook(snap.WebhookURL)
}

// TriggerTestEmail sends a test email via Microsoft Graph.
func (e *Engine) TriggerTestEmail() error {
	gc := e.cfg.GraphConfig()
	return notify.SendTestEmail(&gc)
}

// TriggerTestLog writes a test entry to the alert log.
func (e *Engine) TriggerTestLog() error {
	snap := e.cfg.Snapshot()
	if !snap.HasLogPath() {
		return errors.New("no log path configured")
	}
	return notify.WriteTestLog(snap.LogPath)
}

// TriggerTestZabbix sends a test trapper value to the Zabbix server.
func (e *Engine) TriggerTestZabbix() error {
	snap := e.cfg.Snapshot()
	if !snap.HasZabbix() {
		return errors.New("zabbix trapper is not configured")
	}
	return notify.SendTestZabbix(snap.ZabbixServer, snap.ZabbixPort, snap.ZabbixHost, snap.ZabbixKey)
}

// TriggerTestS3 verifies the dump storage S3 connection.
func (e *Engine) TriggerTestS3() error {
	cfg := e.cfg.DumpConfig()
	return alertdump.TestS3Connection(&cfg)
}
