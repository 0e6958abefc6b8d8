package core

import "time"

// DefaultMaxAttempts is the attempt cap used when none is configured.
const DefaultMaxAttempts = 3

// Operation is the readiness decision for a task in the current cycle.
type Operation int

const (
	OpNone Operation = iota
	OpRun
	OpRetry
	OpFail
)

// String returns the lowercase operation name.
func (o Operation) String() string {
	switch o {
	case OpRun:
		return "run"
	case OpRetry:
		return "retry"
	case OpFail:
		return "fail"
	default:
		return "none"
	}
}

// Readiness decides whether a task should be run, retried, failed out, or
// left alone at time now.
//
// An idle task runs once its runAt has passed (or immediately when runAt is
// absent). Any other status is a task held by a node: it is left alone while
// its retryAt lies in the future, then failed out when it has used up
// maxAttempts, and retried otherwise.
func Readiness(t *Task, now time.Time, maxAttempts int) Operation {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	if t.Status == TaskStatusIdle {
		if t.RunAt == nil || !t.RunAt.After(now) {
			return OpRun
		}
		return OpNone
	}

	if t.RetryAt != nil && t.RetryAt.After(now) {
		return OpNone
	}
	if t.Attempts >= maxAttempts {
		return OpFail
	}
	return OpRetry
}
