// Package sched arbitrates the single execution core shared by the
// audio, monitoring and indicator tasks.
//
// Priorities are fixed at design time: the audio path always runs
// before noise monitoring, which always runs before indicator service
// work. Go's runtime offers no thread priorities, so the guarantee is
// expressed as cycle-granular run permits: each task acquires a permit
// for one bounded cycle of work, and whenever permits are contended the
// highest waiting tier is granted first. Because every cycle is bounded
// far below the audio interval, this run-order guarantee is equivalent
// to preemption at the granularity the design needs.
package sched

import (
	"errors"
	"sync"
)

// Tier is a fixed scheduling priority.
type Tier int

const (
	// TierCritical is the audio streaming path.
	TierCritical Tier = iota
	// TierStandard is the noise monitoring path.
	TierStandard
	// TierBackground is the indicator service path.
	TierBackground

	numTiers
)

// String returns the tier name for logging.
func (t Tier) String() string {
	switch t {
	case TierCritical:
		return "critical"
	case TierStandard:
		return "standard"
	case TierBackground:
		return "background"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by Acquire after the scheduler shuts down.
var ErrClosed = errors.New("scheduler closed")

// Scheduler grants one run permit at a time, highest tier first.
type Scheduler struct {
	mu      sync.Mutex
	cond    *sync.Cond
	waiting [numTiers]int
	held    bool
	closed  bool
}

// New creates a scheduler with no permit held.
func New() *Scheduler {
	s := &Scheduler{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Acquire blocks until the caller may run one cycle at the given tier.
// A waiter is granted the permit only when it is free and no higher
// tier is waiting for it. Returns ErrClosed once Close has been called.
func (s *Scheduler) Acquire(tier Tier) error {
	if tier < 0 || tier >= numTiers {
		return errors.New("invalid scheduling tier")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.waiting[tier]++
	for !s.closed && (s.held || s.higherWaiting(tier)) {
		s.cond.Wait()
	}
	s.waiting[tier]--

	if s.closed {
		s.cond.Broadcast()
		return ErrClosed
	}

	s.held = true
	return nil
}

// Release returns the permit and wakes waiters.
func (s *Scheduler) Release() {
	s.mu.Lock()
	s.held = false
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Close unblocks all waiters; subsequent Acquire calls fail.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// higherWaiting reports whether any tier above the given one is
// waiting. Caller must hold s.mu.
func (s *Scheduler) higherWaiting(tier Tier) bool {
	for t := TierCritical; t < tier; t++ {
		if s.waiting[t] > 0 {
			return true
		}
	}
	return false
}
