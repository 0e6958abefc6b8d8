package dispatcher

import (
	"sync/atomic"
	"time"
)

// Stats holds cumulative counters. Detached claim units update them, so
// every field is atomic.
type Stats struct {
	Cycles      atomic.Uint64
	CycleErrors atomic.Int64
	Fetched     atomic.Int64
	Unparsed    atomic.Int64
	NoCapacity  atomic.Int64

	Claimed        atomic.Int64
	ClaimConflicts atomic.Int64
	ClaimFailures  atomic.Int64
	Dispatched     atomic.Int64
	DispatchErrors atomic.Int64
	MarkedRunning  atomic.Int64
	RunFailures    atomic.Int64
	FailedOut      atomic.Int64
	FailFailures   atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Cycles         uint64 `json:"cycles"`
	CycleErrors    int64  `json:"cycle_errors"`
	Fetched        int64  `json:"fetched"`
	Unparsed       int64  `json:"unparsed"`
	NoCapacity     int64  `json:"no_capacity"`
	Claimed        int64  `json:"claimed"`
	ClaimConflicts int64  `json:"claim_conflicts"`
	ClaimFailures  int64  `json:"claim_failures"`
	Dispatched     int64  `json:"dispatched"`
	DispatchErrors int64  `json:"dispatch_errors"`
	MarkedRunning  int64  `json:"marked_running"`
	RunFailures    int64  `json:"run_failures"`
	FailedOut      int64  `json:"failed_out"`
	FailFailures   int64  `json:"fail_failures"`
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Cycles:         s.Cycles.Load(),
		CycleErrors:    s.CycleErrors.Load(),
		Fetched:        s.Fetched.Load(),
		Unparsed:       s.Unparsed.Load(),
		NoCapacity:     s.NoCapacity.Load(),
		Claimed:        s.Claimed.Load(),
		ClaimConflicts: s.ClaimConflicts.Load(),
		ClaimFailures:  s.ClaimFailures.Load(),
		Dispatched:     s.Dispatched.Load(),
		DispatchErrors: s.DispatchErrors.Load(),
		MarkedRunning:  s.MarkedRunning.Load(),
		RunFailures:    s.RunFailures.Load(),
		FailedOut:      s.FailedOut.Load(),
		FailFailures:   s.FailFailures.Load(),
	}
}

// CycleReport describes what one cycle decided. Claims and fail-outs are
// counted when they are launched; their outcome arrives later through
// Stats and the event bus.
type CycleReport struct {
	Cycle      uint64        `json:"cycle"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Fetched    int           `json:"fetched"`
	Unparsed   int           `json:"unparsed"`
	Claims     int           `json:"claims"`
	FailOuts   int           `json:"fail_outs"`
	NoCapacity int           `json:"no_capacity"`
	Idle       int           `json:"idle"`
	Error      string        `json:"error,omitempty"`
}
