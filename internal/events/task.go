package events

// Event type constants for task events.
const (
	TypeTaskClaimed    = "task_claimed"
	TypeTaskDispatched = "task_dispatched"
	TypeTaskFailedOut  = "task_failed_out"
	TypeTaskError      = "task_error"
)

// Operation names carried by TaskErrorEvent.
const (
	OpParse       = "parse"
	OpClaim       = "claim"
	OpDispatch    = "dispatch"
	OpMarkRunning = "mark_running"
	OpMarkFailed  = "mark_failed"
)

// TaskClaimedEvent is emitted once a task has been claimed for a node.
type TaskClaimedEvent struct {
	BaseEvent
	TaskID    string `json:"task_id"`
	NodeID    string `json:"node_id"`
	Node      string `json:"node"`
	Operation string `json:"operation"`
	Attempts  int    `json:"attempts"`
}

// NewTaskClaimedEvent creates a new task claimed event.
func NewTaskClaimedEvent(taskID, nodeID, node, operation string, attempts int) TaskClaimedEvent {
	return TaskClaimedEvent{
		BaseEvent: NewBaseEvent(TypeTaskClaimed, taskID),
		TaskID:    taskID,
		NodeID:    nodeID,
		Node:      node,
		Operation: operation,
		Attempts:  attempts,
	}
}

// TaskDispatchedEvent is emitted when a node accepted a run-now request.
type TaskDispatchedEvent struct {
	BaseEvent
	TaskID string `json:"task_id"`
	NodeID string `json:"node_id"`
	Node   string `json:"node"`
}

// NewTaskDispatchedEvent creates a new task dispatched event.
func NewTaskDispatchedEvent(taskID, nodeID, node string) TaskDispatchedEvent {
	return TaskDispatchedEvent{
		BaseEvent: NewBaseEvent(TypeTaskDispatched, taskID),
		TaskID:    taskID,
		NodeID:    nodeID,
		Node:      node,
	}
}

// TaskFailedOutEvent is emitted when a task exhausted its attempts and was
// marked failed.
type TaskFailedOutEvent struct {
	BaseEvent
	TaskID   string `json:"task_id"`
	Attempts int    `json:"attempts"`
}

// NewTaskFailedOutEvent creates a new task failed-out event.
func NewTaskFailedOutEvent(taskID string, attempts int) TaskFailedOutEvent {
	return TaskFailedOutEvent{
		BaseEvent: NewBaseEvent(TypeTaskFailedOut, taskID),
		TaskID:    taskID,
		Attempts:  attempts,
	}
}

// TaskErrorEvent reports a failed operation attributed to one task.
type TaskErrorEvent struct {
	BaseEvent
	TaskID    string `json:"task_id"`
	Operation string `json:"operation"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// NewTaskErrorEvent creates a new task error event.
func NewTaskErrorEvent(taskID, operation string, err error, retryable bool) TaskErrorEvent {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return TaskErrorEvent{
		BaseEvent: NewBaseEvent(TypeTaskError, taskID),
		TaskID:    taskID,
		Operation: operation,
		Error:     msg,
		Retryable: retryable,
	}
}
