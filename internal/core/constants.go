// Package core holds the task-manager domain: task documents, the readiness
// policy, node selection, and the ports to the task store and execution nodes.
// All packages should import defaults and statuses from here.
package core

import "time"

// Scheduling defaults
const (
	DefaultPageSize        = 5000
	DefaultRetryBackoff    = 30 * time.Second
	DefaultPollingInterval = 3000 * time.Millisecond
)

// Statuses is the ordered list of statuses the scheduler interprets.
var Statuses = []TaskStatus{
	TaskStatusIdle,
	TaskStatusClaiming,
	TaskStatusRunning,
	TaskStatusFailed,
}

// ValidStatuses is a map for O(1) status lookup.
var ValidStatuses = map[TaskStatus]bool{
	TaskStatusIdle:     true,
	TaskStatusClaiming: true,
	TaskStatusRunning:  true,
	TaskStatusFailed:   true,
}

// IsKnownStatus reports whether status has a meaning to the scheduler.
// Other values are passed through untouched.
func IsKnownStatus(status TaskStatus) bool {
	return ValidStatuses[status]
}
