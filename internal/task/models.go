package task

import (
	"time"

	apperrors "github.com/eternisai/taskbot/internal/errors"
)

// DueTimeLayout is the stored form of a due time. Values are always UTC.
const DueTimeLayout = "2006-01-02 15:04:05"

// Task is one entry in a chat's task list.
//
// ID is a stable key assigned once at creation and never reused. Position is
// the 1-based place in the chat's list; it is what users type and see, and it
// shifts down when an earlier task is deleted.
type Task struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chat_id"`
	Position  int       `json:"position"`
	Text      string    `json:"text"`
	DueTime   string    `json:"due_time,omitempty"` // UTC, DueTimeLayout; empty when no reminder was set
	CreatedAt time.Time `json:"created_at"`
}

// HasDueTime reports whether a reminder has set a due time on the task.
func (t Task) HasDueTime() bool {
	return t.DueTime != ""
}

// DueAt parses the stored due time. It returns a ConversionError when the
// stored value is malformed.
func (t Task) DueAt() (time.Time, error) {
	due, err := time.ParseInLocation(DueTimeLayout, t.DueTime, time.UTC)
	if err != nil {
		return time.Time{}, &apperrors.ConversionError{Value: t.DueTime, Err: err}
	}
	return due, nil
}

// FormatDueTime renders a time in the stored due-time form.
func FormatDueTime(due time.Time) string {
	return due.UTC().Format(DueTimeLayout)
}

// CreateTaskRequest is the body of POST /api/v1/chats/:chatID/tasks.
type CreateTaskRequest struct {
	Text string `json:"text"`
}

// CreateTaskResponse represents the response when creating a task.
type CreateTaskResponse struct {
	Task Task `json:"task"`
}

// GetTasksResponse represents the response when listing a chat's tasks.
type GetTasksResponse struct {
	Tasks []Task `json:"tasks"`
}

// GetTaskResponse represents the response when fetching a single task.
type GetTaskResponse struct {
	Task Task `json:"task"`
}

// DeleteTaskResponse represents the response when deleting a task.
type DeleteTaskResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Task    Task   `json:"task"`
}
