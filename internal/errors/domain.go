package errors

import "fmt"

// ValidationError reports user input that cannot be acted on: empty task
// text, malformed numeric arguments, non-positive delays. Its message is
// safe to show to the user verbatim.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports that a referenced task does not exist for a chat.
type NotFoundError struct {
	ChatID   int64
	Position int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %d not found in chat %d", e.Position, e.ChatID)
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(chatID int64, position int) *NotFoundError {
	return &NotFoundError{ChatID: chatID, Position: position}
}

// DeliveryError wraps a failure to send an outbound message.
type DeliveryError struct {
	ChatID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("failed to deliver message to chat %d: %v", e.ChatID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// ConversionError wraps a timestamp parse or timezone conversion failure.
// Always recoverable: the raw stored value is displayed instead.
type ConversionError struct {
	Value string
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("failed to convert time %q: %v", e.Value, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}
