package conversation

import (
	"strconv"
	"strings"
	"time"

	apperrors "github.com/eternisai/taskbot/internal/errors"
)

// MaxReminderMinutes bounds reminder delays to one year.
const MaxReminderMinutes = 366 * 24 * 60

// ReminderInput is the parsed reply to the /setreminder prompt.
type ReminderInput struct {
	Position int
	Minutes  int
}

// Delay returns the reminder delay.
func (r ReminderInput) Delay() time.Duration {
	return time.Duration(r.Minutes) * time.Minute
}

// ParseReminderInput parses "<task_id> <minutes>". Fields after the second are ignored.
func ParseReminderInput(text string) (ReminderInput, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return ReminderInput{}, apperrors.NewValidationError("", "Insufficient arguments")
	}

	position, err := strconv.Atoi(fields[0])
	if err != nil {
		return ReminderInput{}, apperrors.NewValidationError("", "Task ID must be a number")
	}

	minutes, err := strconv.Atoi(fields[1])
	if err != nil {
		return ReminderInput{}, apperrors.NewValidationError("", "Time must be a whole number of minutes")
	}
	if minutes <= 0 {
		return ReminderInput{}, apperrors.NewValidationError("", "Time must be a positive number")
	}
	if minutes > MaxReminderMinutes {
		return ReminderInput{}, apperrors.NewValidationError("", "Time must be at most %d minutes", MaxReminderMinutes)
	}

	return ReminderInput{Position: position, Minutes: minutes}, nil
}
