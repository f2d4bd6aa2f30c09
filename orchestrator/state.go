package orchestrator

import "time"

// Status is the engine's state-machine status.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusError   Status = "error"
)

// State is the single observable engine state value.
type State struct {
	Status         Status
	LastSyncAt     *time.Time
	PendingChanges int
	Error          error
	IsSyncing      bool
}

// Copy returns a defensive copy, safe to hand to observers.
func (s State) Copy() State {
	out := s
	if s.LastSyncAt != nil {
		t := *s.LastSyncAt
		out.LastSyncAt = &t
	}
	return out
}

// Stats summarizes one Sync attempt.
type Stats struct {
	Pushed     int
	Pulled     int
	Failed     int
	DurationMS int64
}

// Result is the return value of Sync.
type Result struct {
	Success bool
	Stats   Stats
	Error   error
}

// Observer receives a defensive copy of engine state after every mutation.
type Observer func(State)
