package task

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/eternisai/taskbot/internal/errors"
)

// Store persists tasks per chat. Every mutating call is durable before it returns.
type Store interface {
	// Create appends a task at the end of the chat's list.
	Create(ctx context.Context, chatID int64, text string) (Task, error)
	// List returns the chat's tasks ordered by position.
	List(ctx context.Context, chatID int64) ([]Task, error)
	// Get returns the task at position.
	Get(ctx context.Context, chatID int64, position int) (Task, error)
	// Delete removes the task at position and shifts every later task down by one.
	Delete(ctx context.Context, chatID int64, position int) (Task, error)
	// SetDueTime stores due on the task at position and returns the updated task.
	SetDueTime(ctx context.Context, chatID int64, position int, due time.Time) (Task, error)
	// InTx runs fn so that the chat's writes made through ctx are undone when fn fails.
	InTx(ctx context.Context, chatID int64, fn func(ctx context.Context) error) error
}

// normalizeText trims the task text and rejects empty input.
func normalizeText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperrors.NewValidationError("", "Task cannot be empty")
	}
	return text, nil
}
