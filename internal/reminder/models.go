package reminder

import "time"

// Status is the lifecycle state of a reminder record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusFired     Status = "fired"
	StatusCancelled Status = "cancelled"
)

// Reminder is a durable one-shot notification for a task.
//
// TaskID is the task's stable key, so renumbering after a sibling delete does
// not detach the reminder. TaskText is captured when the reminder is set.
type Reminder struct {
	ID        string     `json:"id"`
	TaskID    int64      `json:"task_id"`
	ChatID    int64      `json:"chat_id"`
	TaskText  string     `json:"task_text"`
	FireAt    time.Time  `json:"fire_at"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	FiredAt   *time.Time `json:"fired_at,omitempty"`
}

// NotificationText is the message delivered when a reminder fires.
func NotificationText(taskText string) string {
	return "🔔 Reminder: " + taskText
}
