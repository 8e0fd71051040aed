// Package led drives the visual noise alert indicator. The core only
// issues on/off intent; the electrical side lives behind the Actuator
// interface.
package led

import (
	"fmt"
	"log/slog"
	"os"
)

// Actuator receives an alert-state intent. Set is fire-and-forget: no
// acknowledgement is expected and implementations must not block.
type Actuator interface {
	Set(on bool)
}

// SysfsActuator drives a GPIO pin through its sysfs value file.
type SysfsActuator struct {
	path string
}

// NewSysfsActuator returns an actuator writing to the given value file
// (e.g. /sys/class/gpio/gpio17/value).
func NewSysfsActuator(path string) (*SysfsActuator, error) {
	if path == "" {
		return nil, fmt.Errorf("gpio value path is required")
	}
	return &SysfsActuator{path: path}, nil
}

// Set writes the pin state. Failures are logged, not returned; the
// indicator is best-effort by contract.
func (a *SysfsActuator) Set(on bool) {
	value := []byte("0")
	if on {
		value = []byte("1")
	}
	if err := os.WriteFile(a.path, value, 0o644); err != nil {
		slog.Warn("failed to drive alert indicator", "path", a.path, "error", err)
	}
}

// LogActuator logs intents instead of driving hardware. Used when no
// GPIO path is configured.
type LogActuator struct{}

// Set logs the intent.
func (LogActuator) Set(on bool) {
	slog.Info("alert indicator", "on", on)
}
