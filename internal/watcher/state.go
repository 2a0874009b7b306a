package watcher

import (
	"sync"
	"time"
)

// RunState is the shared, synchronized cycle state. The watcher writes
// it; the operator bot and the status API read snapshots. It is
// process-scoped and never persisted.
type RunState struct {
	mu            sync.RWMutex
	startTime     time.Time
	lastCheckAt   *time.Time
	lastSuccessAt *time.Time
	lastError     string
}

// StateSnapshot is a point-in-time copy of the run state.
type StateSnapshot struct {
	StartTime     time.Time  `json:"start_time"`
	LastCheckAt   *time.Time `json:"last_check_at,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// NewRunState creates a run state with the start time set to now.
func NewRunState() *RunState {
	return &RunState{startTime: time.Now()}
}

func (s *RunState) markCheck() {
	now := time.Now()
	s.mu.Lock()
	s.lastCheckAt = &now
	s.mu.Unlock()
}

func (s *RunState) markSuccess() {
	now := time.Now()
	s.mu.Lock()
	s.lastSuccessAt = &now
	s.lastError = ""
	s.mu.Unlock()
}

func (s *RunState) setError(err error) {
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}

// Snapshot returns a consistent copy of the run state.
func (s *RunState) Snapshot() StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StateSnapshot{
		StartTime:     s.startTime,
		LastCheckAt:   s.lastCheckAt,
		LastSuccessAt: s.lastSuccessAt,
		LastError:     s.lastError,
	}
}

// Uptime returns how long the service has been running.
func (s *StateSnapshot) Uptime() time.Duration {
	return time.Since(s.StartTime)
}
