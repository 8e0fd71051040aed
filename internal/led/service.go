package led

import (
	"context"
	"errors"
	"log/slog"

	"github.com/audexa/noisewatch/internal/sched"
)

// intentBuffer bounds queued intents; the newest intent always wins.
const intentBuffer = 4

// Service consumes alert-state intents at background priority and
// forwards them to the actuator. The monitor never waits on the
// indicator hardware: Offer is non-blocking and coalesces to the most
// recent intent.
type Service struct {
	actuator Actuator
	sched    *sched.Scheduler
	intents  chan bool
}

// NewService creates an indicator service around the given actuator.
func NewService(actuator Actuator, scheduler *sched.Scheduler) *Service {
	return &Service{
		actuator: actuator,
		sched:    scheduler,
		intents:  make(chan bool, intentBuffer),
	}
}

// Offer queues an intent without blocking. When the queue is full the
// oldest intent is discarded; only the latest state matters.
func (s *Service) Offer(on bool) {
	for {
		select {
		case s.intents <- on:
			return
		default:
			select {
			case <-s.intents:
			default:
			}
		}
	}
}

// Run services intents until the context is cancelled. Each actuation
// runs within one background-tier permit so indicator work can never
// displace audio or monitoring cycles.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case on := <-s.intents:
			if err := s.sched.Acquire(sched.TierBackground); err != nil {
				if errors.Is(err, sched.ErrClosed) {
					return nil
				}
				return err
			}
			s.actuate(on)
			s.sched.Release()
		}
	}
}

// actuate drives the hardware, isolating actuator faults so they can
// never take the service loop down or leak a held permit.
func (s *Service) actuate(on bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("indicator actuation panicked", "panic", r)
		}
	}()
	s.actuator.Set(on)
}

// Off turns the indicator off directly, bypassing the scheduler. Used
// during shutdown so the hardware is left in a known state.
func (s *Service) Off() {
	slog.Debug("clearing alert indicator")
	s.actuator.Set(false)
}
