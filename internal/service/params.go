package service

import (
	"time"

	"tv_bridge/internal/remote"
)

// LogFilter supports journal filtering by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", "COMMAND", "KEY", "POWER_TOGGLE", "SESSION", "ERROR"
}

// Step is one key press followed by a pause.
type Step struct {
	Key   remote.KeyCode
	Press remote.PressKind
	Delay time.Duration
}

// Macro is an ordered list of steps run as a unit by the Scheduler.
type Macro struct {
	Name  string
	Steps []Step
	// When, if set, is evaluated on the scheduler right before the macro
	// runs; false skips the macro.
	When func() bool
}
