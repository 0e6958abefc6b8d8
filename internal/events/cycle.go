package events

import "time"

// Event type constants for polling cycle events.
const (
	TypeCycleStarted   = "cycle_started"
	TypeCycleCompleted = "cycle_completed"
)

// CycleStartedEvent is emitted when a polling cycle begins.
type CycleStartedEvent struct {
	BaseEvent
	Cycle uint64 `json:"cycle"`
}

// NewCycleStartedEvent creates a new cycle started event.
func NewCycleStartedEvent(cycle uint64) CycleStartedEvent {
	return CycleStartedEvent{
		BaseEvent: NewBaseEvent(TypeCycleStarted, ""),
		Cycle:     cycle,
	}
}

// CycleCompletedEvent summarises one polling cycle.
type CycleCompletedEvent struct {
	BaseEvent
	Cycle      uint64        `json:"cycle"`
	Fetched    int           `json:"fetched"`
	Unparsed   int           `json:"unparsed"`
	Claimed    int           `json:"claimed"`
	FailedOut  int           `json:"failed_out"`
	NoCapacity int           `json:"no_capacity"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// CycleSummary carries the counters of a completed cycle.
type CycleSummary struct {
	Fetched    int
	Unparsed   int
	Claimed    int
	FailedOut  int
	NoCapacity int
	Err        error
	Duration   time.Duration
}

// NewCycleCompletedEvent creates a new cycle completed event.
func NewCycleCompletedEvent(cycle uint64, s CycleSummary) CycleCompletedEvent {
	e := CycleCompletedEvent{
		BaseEvent:  NewBaseEvent(TypeCycleCompleted, ""),
		Cycle:      cycle,
		Fetched:    s.Fetched,
		Unparsed:   s.Unparsed,
		Claimed:    s.Claimed,
		FailedOut:  s.FailedOut,
		NoCapacity: s.NoCapacity,
		Duration:   s.Duration,
	}
	if s.Err != nil {
		e.Error = s.Err.Error()
	}
	return e
}
