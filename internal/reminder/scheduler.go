package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/eternisai/taskbot/internal/errors"
	"github.com/eternisai/taskbot/internal/events"
	"github.com/eternisai/taskbot/internal/logger"
	"github.com/eternisai/taskbot/internal/metrics"
	"github.com/eternisai/taskbot/internal/task"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Notifier delivers a message to a chat.
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// DueTimeSetter stores a task's due time and runs after while the chat is locked.
type DueTimeSetter interface {
	SetDueTime(ctx context.Context, chatID int64, position int, due time.Time, after task.AfterDueFunc) (task.Task, error)
}

// onceSchedule fires a single time at a fixed instant. Instants in the past
// fire on the next cron tick.
type onceSchedule struct {
	mu   sync.Mutex
	at   time.Time
	used bool
}

func (s *onceSchedule) Next(time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.used {
		return time.Time{}
	}
	s.used = true
	return s.at
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the clock used to compute fire times.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

// Scheduler persists reminders and arms one cron entry per pending reminder.
type Scheduler struct {
	tasks     DueTimeSetter
	store     Store
	notifier  Notifier
	publisher events.Publisher
	logger    *logger.Logger
	now       func() time.Time

	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewScheduler creates a Scheduler. Call Start to begin firing reminders.
func NewScheduler(tasks DueTimeSetter, store Store, notifier Notifier, log *logger.Logger, opts ...Option) *Scheduler {
	log = log.WithComponent("reminder-scheduler")
	cronLog := cron.PrintfLogger(slog.NewLogLogger(log.Handler(), slog.LevelDebug))

	s := &Scheduler{
		tasks:     tasks,
		store:     store,
		notifier:  notifier,
		publisher: events.NopPublisher{},
		logger:    log,
		now:       time.Now,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		entries: make(map[string]cron.EntryID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("reminder scheduler started")
}

// Stop halts the cron loop and waits for running reminder jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("reminder scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("reminder scheduler did not stop: %w", ctx.Err())
	}
}

// fireTime rounds now+delay up to a whole second so the stored due time is
// never earlier than the requested delay.
func fireTime(now time.Time, delay time.Duration) time.Time {
	at := now.UTC().Add(delay)
	if truncated := at.Truncate(time.Second); !truncated.Equal(at) {
		return truncated.Add(time.Second)
	}
	return at
}

// Schedule sets the due time of the task at position to now+delay and persists
// a pending reminder in the same transaction, then arms it. Earlier reminders
// of the same task stay armed.
func (s *Scheduler) Schedule(ctx context.Context, chatID int64, position int, delay time.Duration) (Reminder, error) {
	if delay <= 0 {
		return Reminder{}, apperrors.NewValidationError("", "Time must be a positive number")
	}

	log := s.logger.WithContext(ctx)
	fireAt := fireTime(s.now(), delay)

	var scheduled Reminder
	_, err := s.tasks.SetDueTime(ctx, chatID, position, fireAt, func(ctx context.Context, t task.Task) error {
		r := Reminder{
			ID:        uuid.New().String(),
			TaskID:    t.ID,
			ChatID:    chatID,
			TaskText:  t.Text,
			FireAt:    fireAt,
			Status:    StatusPending,
			CreatedAt: s.now().UTC(),
		}
		if err := s.store.Insert(ctx, r); err != nil {
			return err
		}
		scheduled = r
		return nil
	})
	if err != nil {
		return Reminder{}, err
	}

	// Armed after commit. A delete that slips in first has already cancelled
	// the row, so the entry fires into a failed claim and sends nothing.
	s.arm(scheduled)

	metrics.RemindersScheduled.Inc()
	log.Info("reminder scheduled",
		slog.String("reminder_id", scheduled.ID),
		slog.Int64("task_id", scheduled.TaskID),
		slog.Time("fire_at", scheduled.FireAt))

	s.publish(ctx, events.SubjectReminderScheduled, scheduled)
	return scheduled, nil
}

// CancelForTask cancels every pending reminder of a task and disarms them.
func (s *Scheduler) CancelForTask(ctx context.Context, taskID int64) (int, error) {
	ids, err := s.store.CancelForTask(ctx, taskID)
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		s.disarm(id)
	}

	if len(ids) > 0 {
		s.logger.WithContext(ctx).Info("reminders cancelled",
			slog.Int64("task_id", taskID),
			slog.Int("count", len(ids)))
	}
	return len(ids), nil
}

// Recover re-arms every pending reminder. Overdue reminders fire right away.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	overdue := 0
	for _, r := range pending {
		if !r.FireAt.After(now) {
			overdue++
		}
		s.arm(r)
	}

	s.logger.Info("pending reminders recovered",
		slog.Int("count", len(pending)),
		slog.Int("overdue", overdue))
	return len(pending), nil
}

// Armed returns the number of reminders waiting on a cron entry.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Scheduler) arm(r Reminder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[r.ID]; ok {
		return
	}
	s.entries[r.ID] = s.cron.Schedule(&onceSchedule{at: r.FireAt}, cron.FuncJob(func() { s.fire(r) }))
}

func (s *Scheduler) disarm(id string) {
	s.mu.Lock()
	entryID, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()

	if ok {
		s.cron.Remove(entryID)
	}
}

// fire claims the reminder and delivers it. Delivery is attempted once.
func (s *Scheduler) fire(r Reminder) {
	s.disarm(r.ID)

	ctx := logger.WithOperation(logger.WithChatID(context.Background(), r.ChatID), "reminder.fire")
	log := s.logger.WithContext(ctx)

	claimed, err := s.store.MarkFired(ctx, r.ID, s.now())
	if err != nil {
		log.Error("failed to claim reminder",
			slog.String("reminder_id", r.ID),
			slog.String("error", err.Error()))
		return
	}
	if !claimed {
		log.Debug("reminder no longer pending", slog.String("reminder_id", r.ID))
		return
	}

	metrics.RemindersFired.Inc()

	if err := s.notifier.SendMessage(ctx, r.ChatID, NotificationText(r.TaskText)); err != nil {
		metrics.ReminderDeliveryFailures.Inc()
		deliveryErr := &apperrors.DeliveryError{ChatID: r.ChatID, Err: err}
		log.Error("failed to deliver reminder",
			slog.String("reminder_id", r.ID),
			slog.String("error", deliveryErr.Error()))
		return
	}

	log.Info("reminder delivered",
		slog.String("reminder_id", r.ID),
		slog.Int64("task_id", r.TaskID))

	s.publish(ctx, events.SubjectReminderFired, r)
}

func (s *Scheduler) publish(ctx context.Context, subject string, r Reminder) {
	err := s.publisher.Publish(ctx, subject, events.ReminderEvent{
		ReminderID: r.ID,
		ChatID:     r.ChatID,
		TaskID:     r.TaskID,
		FireAt:     r.FireAt,
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.WithContext(ctx).Warn("failed to publish event",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}
