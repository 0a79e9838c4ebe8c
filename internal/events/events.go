package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/eternisai/taskbot/internal/logger"
	"github.com/nats-io/nats.go"
)

const (
	SubjectTaskCreated       = "taskbot.task.created"
	SubjectTaskDeleted       = "taskbot.task.deleted"
	SubjectReminderScheduled = "taskbot.reminder.scheduled"
	SubjectReminderFired     = "taskbot.reminder.fired"
)

// TaskEvent is published when a task is created or deleted.
type TaskEvent struct {
	ChatID     int64     `json:"chat_id"`
	TaskID     int64     `json:"task_id"`
	Position   int       `json:"position"`
	Text       string    `json:"text"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ReminderEvent is published when a reminder is scheduled or fired.
type ReminderEvent struct {
	ReminderID string    `json:"reminder_id"`
	ChatID     int64     `json:"chat_id"`
	TaskID     int64     `json:"task_id"`
	FireAt     time.Time `json:"fire_at"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits domain events. Publication is best effort: callers log
// failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, subject string, event any) error
}

// NopPublisher discards every event. Used when NATS is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

// NATSPublisher publishes JSON-encoded events to NATS core subjects.
type NATSPublisher struct {
	nc     *nats.Conn
	logger *logger.Logger
}

// NewNATSPublisher wraps an established connection.
func NewNATSPublisher(nc *nats.Conn, log *logger.Logger) *NATSPublisher {
	return &NATSPublisher{nc: nc, logger: log.WithComponent("events")}
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", subject, err)
	}

	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", subject, err)
	}

	p.logger.WithContext(ctx).Debug("event published",
		slog.String("subject", subject),
		slog.Int("bytes", len(data)))
	return nil
}

// Connect dials NATS with reconnect handling that logs state changes.
func Connect(url string, log *logger.Logger) (*nats.Conn, error) {
	log = log.WithComponent("nats")

	nc, err := nats.Connect(url,
		nats.Name("taskbot-"+logger.GetInstanceID()),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}

	log.Info("connected to nats", slog.String("url", nc.ConnectedUrl()))
	return nc, nil
}
