package logger

import (
	"context"

	"github.com/google/uuid"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithChatID adds a chat ID to the context.
func WithChatID(ctx context.Context, chatID int64) context.Context {
	return context.WithValue(ctx, ContextKeyChatID, chatID)
}

// ChatIDFromContext returns the chat ID stored by WithChatID.
func ChatIDFromContext(ctx context.Context) (int64, bool) {
	chatID, ok := ctx.Value(ContextKeyChatID).(int64)
	return chatID, ok && chatID != 0
}

// WithOperation adds an operation name to the context.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, ContextKeyOperation, operation)
}

// GenerateRequestID generates a new request ID.
func GenerateRequestID() string {
	requestID := uuid.New()
	return requestID.String()
}
