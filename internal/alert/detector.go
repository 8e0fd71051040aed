// Package alert implements the threshold decision logic that turns RMS
// readings into noise alert transitions.
package alert

import (
	"fmt"
	"math"
	"sync"
)

// State represents the noise alert state.
type State string

const (
	// StateQuiet indicates ambient noise is at or below the threshold.
	StateQuiet State = "quiet"
	// StateLoud indicates ambient noise exceeded the threshold.
	StateLoud State = "loud"
)

// Transition is the result of evaluating one reading.
type Transition int

const (
	// TransitionNone means the alert state did not change.
	TransitionNone Transition = iota
	// TransitionRaised means the state changed from quiet to loud.
	TransitionRaised
	// TransitionCleared means the state changed from loud to quiet.
	TransitionCleared
)

// String returns the transition name for logging.
func (t Transition) String() string {
	switch t {
	case TransitionRaised:
		return "raised"
	case TransitionCleared:
		return "cleared"
	default:
		return "none"
	}
}

// Detector holds the alert state and converts RMS readings into
// transitions. The same threshold is used for raising and clearing; a
// wider hysteresis band is a deliberate future enhancement, not a
// default. It is safe for concurrent use.
type Detector struct {
	mu        sync.Mutex
	threshold float64
	state     State
}

// NewDetector creates a detector with the given RMS threshold. The
// threshold is validated once here; steady-state evaluation assumes it
// is a finite non-negative value.
func NewDetector(threshold float64) (*Detector, error) {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return nil, fmt.Errorf("rms threshold must be finite, got %v", threshold)
	}
	if threshold < 0 {
		return nil, fmt.Errorf("rms threshold must be non-negative, got %v", threshold)
	}
	return &Detector{threshold: threshold, state: StateQuiet}, nil
}

// Update evaluates one reading against the threshold and returns the
// resulting transition. Evaluation is level-triggered: repeated readings
// on the same side of the threshold never re-emit a transition.
func (d *Detector) Update(reading float64) Transition {
	d.mu.Lock()
	defer d.mu.Unlock()

	if reading > d.threshold && d.state == StateQuiet {
		d.state = StateLoud
		return TransitionRaised
	}
	if reading <= d.threshold && d.state == StateLoud {
		d.state = StateQuiet
		return TransitionCleared
	}
	return TransitionNone
}

// State returns the current alert state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Threshold returns the configured RMS threshold.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// Reset returns the detector to the quiet state.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.state = StateQuiet
	d.mu.Unlock()
}
