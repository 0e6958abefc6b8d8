package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// TaskStatus represents the task manager status of a task document.
type TaskStatus string

const (
	TaskStatusIdle     TaskStatus = "idle"
	TaskStatusClaiming TaskStatus = "claiming"
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusFailed   TaskStatus = "failed"
)

// Schedule is the recurrence descriptor of a task. It is never interpreted here.
type Schedule struct {
	Interval string `json:"interval"`
}

// Version is the optimistic concurrency token of a stored document.
type Version struct {
	SeqNo       int64 `json:"seq_no"`
	PrimaryTerm int64 `json:"primary_term"`
}

// Document is one raw task document as returned by a TaskStore search.
type Document struct {
	ID      string
	Version *Version // nil when the store did not report one
	Source  json.RawMessage
}

// Task is the parsed representation of a task document.
type Task struct {
	ID       string
	Status   TaskStatus
	OwnerID  string
	Attempts int

	RunAt       *time.Time
	RetryAt     *time.Time
	StartedAt   *time.Time
	ScheduledAt *time.Time

	Schedule    *Schedule
	TaskType    string
	Traceparent string

	// Opaque payload, forwarded verbatim.
	Params json.RawMessage
	State  json.RawMessage
	Scope  json.RawMessage

	Version *Version
}

// ParseTask parses a raw document. The document must carry an ID and a task
// object with a status and a non-negative attempts count. Malformed or missing
// timestamps are treated as absent.
func ParseTask(doc Document) (*Task, error) {
	if doc.ID == "" {
		return nil, ErrValidation(CodeParseFailed, "document has no id")
	}

	var src struct {
		Task map[string]json.RawMessage `json:"task"`
	}
	if err := json.Unmarshal(doc.Source, &src); err != nil {
		return nil, ErrValidation(CodeParseFailed, fmt.Sprintf("document %s: invalid source", doc.ID)).WithCause(err)
	}
	if src.Task == nil {
		return nil, ErrValidation(CodeParseFailed, fmt.Sprintf("document %s: missing task object", doc.ID))
	}
	fields := src.Task

	status, ok := stringField(fields, "status")
	if !ok {
		return nil, ErrValidation(CodeParseFailed, fmt.Sprintf("document %s: missing status", doc.ID))
	}
	attempts, err := attemptsField(fields)
	if err != nil {
		return nil, ErrValidation(CodeParseFailed, fmt.Sprintf("document %s: %s", doc.ID, err.Error()))
	}

	t := &Task{
		ID:          doc.ID,
		Status:      TaskStatus(status),
		Attempts:    attempts,
		RunAt:       timeField(fields, "runAt"),
		RetryAt:     timeField(fields, "retryAt"),
		StartedAt:   timeField(fields, "startedAt"),
		ScheduledAt: timeField(fields, "scheduledAt"),
		Params:      rawField(fields, "params"),
		State:       rawField(fields, "state"),
		Scope:       rawField(fields, "scope"),
		Version:     doc.Version,
	}
	t.OwnerID, _ = stringField(fields, "ownerId")
	t.TaskType, _ = stringField(fields, "taskType")
	t.Traceparent, _ = stringField(fields, "traceparent")

	if raw, ok := fields["schedule"]; ok && !isNull(raw) {
		var sched Schedule
		if err := json.Unmarshal(raw, &sched); err == nil {
			t.Schedule = &sched
		}
	}

	return t, nil
}

// Owner returns the node currently holding the task. Idle and failed tasks
// have no owner and do not count against any node's capacity.
func (t *Task) Owner() (string, bool) {
	if t.Status == TaskStatusIdle || t.Status == TaskStatusFailed {
		return "", false
	}
	return t.OwnerID, true
}

// ReadyTo applies the readiness policy to the task.
func (t *Task) ReadyTo(now time.Time, maxAttempts int) Operation {
	return Readiness(t, now, maxAttempts)
}

// RunNowPayload builds the execution request body for the task as it was read.
func (t *Task) RunNowPayload() RunNowPayload {
	return RunNowPayload{
		ID:          t.ID,
		RetryAt:     t.RetryAt,
		RunAt:       t.RunAt,
		StartedAt:   t.StartedAt,
		ScheduledAt: t.ScheduledAt,
		Params:      t.Params,
		State:       t.State,
		Scope:       t.Scope,
		OwnerID:     t.OwnerID,
		TaskType:    t.TaskType,
		Traceparent: t.Traceparent,
		Attempts:    t.Attempts,
		Status:      t.Status,
		Schedule:    t.Schedule,
	}
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func rawField(fields map[string]json.RawMessage, key string) json.RawMessage {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return nil
	}
	return raw
}

func timeField(fields map[string]json.RawMessage, key string) *time.Time {
	s, ok := stringField(fields, key)
	if !ok {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &ts
}

// attemptsField accepts a JSON integer or a numeric string.
func attemptsField(fields map[string]json.RawMessage) (int, error) {
	raw, ok := fields["attempts"]
	if !ok || isNull(raw) {
		return 0, fmt.Errorf("missing attempts")
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("attempts is not a number")
		}
		n = json.Number(s)
	}
	v, err := strconv.Atoi(n.String())
	if err != nil || v < 0 {
		return 0, fmt.Errorf("attempts must be a non-negative integer, got %q", n.String())
	}
	return v, nil
}
