// Package dutycycle cycles one device on/off on a fixed duty cycle. The
// phase is a pure function of elapsed time since a persisted start time, so
// the cycle survives process restarts without any persisted phase field.
package dutycycle

import (
	"time"
)

// Debounce is the minimum interval between two commands to the device,
// guarding against near-simultaneous duplicate triggers.
const Debounce = 3 * time.Second

// Phase is the position in the duty cycle at a point in time.
type Phase struct {
	On        bool
	Remaining time.Duration
	Position  time.Duration
}

func (p Phase) String() string {
	if p.On {
		return "on"
	}
	return "off"
}

// Compute derives the phase at now for a cycle that started at startTime and
// runs onDuration on, offDuration off. This is the single source of truth:
// the live engine, the resume path and the coordinator fallback all use it.
func Compute(now time.Time, startTime time.Time, onDuration, offDuration time.Duration) Phase {
	cycle := onDuration + offDuration
	if cycle <= 0 {
		return Phase{}
	}
	elapsed := now.Sub(startTime).Truncate(time.Second)
	position := elapsed % cycle
	if position < 0 {
		position += cycle
	}
	if position < onDuration {
		return Phase{On: true, Remaining: onDuration - position, Position: position}
	}
	return Phase{On: false, Remaining: cycle - position, Position: position}
}
