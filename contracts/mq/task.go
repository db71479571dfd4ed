package mq

import "time"

// Routing keys published on the task-events exchange (mq.DefaultExchange unless configured).
const (
	RoutingTaskCompleted = "task.completed"
	RoutingTaskReopened  = "task.reopened"
	RoutingTaskDeleted   = "task.deleted"
	// BindingTaskEvents matches every task event.
	BindingTaskEvents = "task.*"
)

// TaskEventPayload is the wire form of a task domain event.
type TaskEventPayload struct {
	EventID        string    `json:"event_id"`
	Type           string    `json:"type"`
	SessionID      string    `json:"session_id"`
	OrganizationID string    `json:"organization_id"`
	TaskID         string    `json:"task_id"`
	Assignees      []string  `json:"assignees"`
	OccurredAt     time.Time `json:"occurred_at"`
}
