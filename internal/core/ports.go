package core

import (
	"context"
	"encoding/json"
	"time"
)

// =============================================================================
// Task Store Port
// =============================================================================

// TaskStore is the shared document store holding one document per task.
type TaskStore interface {
	// Search returns up to size task documents.
	Search(ctx context.Context, size int) ([]Document, error)

	// Update applies a partial update to the task document id. When cond is
	// non-nil the update only succeeds if the document still has that
	// version; a mismatch returns a conflict error. The document's new
	// version is returned.
	Update(ctx context.Context, id string, patch TaskPatch, cond *Version) (Version, error)

	// Ping checks that the store is reachable and the credentials work.
	Ping(ctx context.Context) error
}

// TaskPatch is a partial task document. Nil fields are left untouched.
type TaskPatch struct {
	Status      TaskStatus `json:"status,omitempty"`
	OwnerID     *string    `json:"ownerId,omitempty"`
	Attempts    *int       `json:"attempts,omitempty"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	RetryAt     *time.Time `json:"retryAt,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
}

// ClaimPatch assigns a task to node and pushes its retryAt out by backoff.
func ClaimPatch(nodeID string, attempts int, now time.Time, backoff time.Duration) TaskPatch {
	now = now.UTC()
	retryAt := now.Add(backoff)
	return TaskPatch{
		Status:      TaskStatusClaiming,
		OwnerID:     &nodeID,
		Attempts:    &attempts,
		ScheduledAt: &now,
		RetryAt:     &retryAt,
	}
}

// RunningPatch marks a claimed task as started.
func RunningPatch(now time.Time) TaskPatch {
	now = now.UTC()
	return TaskPatch{
		Status:    TaskStatusRunning,
		StartedAt: &now,
	}
}

// FailedPatch marks a task as failed out.
func FailedPatch() TaskPatch {
	return TaskPatch{Status: TaskStatusFailed}
}

// =============================================================================
// Execution Node Port
// =============================================================================

// NodeClient sends run requests to execution nodes.
type NodeClient interface {
	// RunNow asks node to run the task described by payload immediately.
	RunNow(ctx context.Context, node Node, payload RunNowPayload) error

	// Probe checks that the node is reachable.
	Probe(ctx context.Context, node Node) error
}

// RunNowPayload is the body of an execution request.
type RunNowPayload struct {
	ID          string          `json:"id"`
	RetryAt     *time.Time      `json:"retryAt"`
	RunAt       *time.Time      `json:"runAt"`
	StartedAt   *time.Time      `json:"startedAt"`
	ScheduledAt *time.Time      `json:"scheduledAt"`
	Params      json.RawMessage `json:"params,omitempty"`
	State       json.RawMessage `json:"state,omitempty"`
	Scope       json.RawMessage `json:"scope,omitempty"`
	OwnerID     string          `json:"ownerId"`
	TaskType    string          `json:"taskType"`
	Traceparent string          `json:"traceparent"`
	Attempts    int             `json:"attempts"`
	Status      TaskStatus      `json:"status"`
	Schedule    *Schedule       `json:"schedule,omitempty"`
}

// =============================================================================
// Clock
// =============================================================================

// Clock abstracts time for testing.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time in UTC.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
