// Package clock abstracts wall time so circle phase transitions and
// heartbeat timeouts can be driven deterministically in tests.
package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock is the single source of "now" for the timer authority.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// NewSystem returns a Clock backed by the system wall clock in UTC.
func NewSystem() Clock {
	return systemClock{}
}

// Module provides the system clock.
var Module = fx.Module("clock",
	fx.Provide(NewSystem),
)
