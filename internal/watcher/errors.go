package watcher

import (
	"errors"
	"fmt"
	"time"
)

// ErrCycleRunning is returned by ForceCycle when a cycle is already in
// progress. Forced runs report it rather than queueing.
var ErrCycleRunning = errors.New("a cycle is already running")

// CooldownError is returned by ForceCycle when the minimum gap between
// forced runs has not elapsed.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("force cooldown active, retry in %s", e.Remaining.Round(time.Second))
}
