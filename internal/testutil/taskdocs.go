package testutil

import (
	"encoding/json"
	"time"

	"github.com/hugo-lorenzo-mato/elastask/internal/core"
)

// DocOption customizes a task document built by NewTaskDoc.
type DocOption func(*docBuilder)

type docBuilder struct {
	task    map[string]interface{}
	version *core.Version
}

// NewTaskDoc builds a task-manager document the way the search API returns
// it. Without options the task is idle, has no attempts and no timestamps,
// so it is due immediately.
func NewTaskDoc(id string, opts ...DocOption) core.Document {
	b := &docBuilder{
		task: map[string]interface{}{
			"status":      string(core.TaskStatusIdle),
			"attempts":    0,
			"taskType":    "sample",
			"params":      "{}",
			"state":       "{}",
			"scope":       []string{"testing"},
			"traceparent": "",
			"ownerId":     nil,
		},
	}
	for _, opt := range opts {
		opt(b)
	}

	source, err := json.Marshal(map[string]interface{}{"type": "task", "task": b.task})
	if err != nil {
		panic(err)
	}
	return core.Document{ID: id, Version: b.version, Source: source}
}

// WithStatus sets task.status.
func WithStatus(status core.TaskStatus) DocOption {
	return func(s *docBuilder) { s.task["status"] = string(status) }
}

// WithAttempts sets task.attempts.
func WithAttempts(n int) DocOption {
	return func(s *docBuilder) { s.task["attempts"] = n }
}

// WithOwner sets task.ownerId.
func WithOwner(nodeID string) DocOption {
	return func(s *docBuilder) { s.task["ownerId"] = nodeID }
}

// WithRunAt sets task.runAt.
func WithRunAt(t time.Time) DocOption {
	return func(s *docBuilder) { s.task["runAt"] = t.UTC().Format(time.RFC3339) }
}

// WithRetryAt sets task.retryAt.
func WithRetryAt(t time.Time) DocOption {
	return func(s *docBuilder) { s.task["retryAt"] = t.UTC().Format(time.RFC3339) }
}

// WithField sets an arbitrary task field, or removes it when v is nil.
func WithField(key string, v interface{}) DocOption {
	return func(s *docBuilder) {
		if v == nil {
			delete(s.task, key)
			return
		}
		s.task[key] = v
	}
}

// WithVersion attaches a sequence number and primary term.
func WithVersion(seqNo, primaryTerm int64) DocOption {
	return func(s *docBuilder) { s.version = &core.Version{SeqNo: seqNo, PrimaryTerm: primaryTerm} }
}
