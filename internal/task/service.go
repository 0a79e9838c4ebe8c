package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eternisai/taskbot/internal/events"
	"github.com/eternisai/taskbot/internal/logger"
	"github.com/eternisai/taskbot/internal/metrics"
)

// DeleteHook runs after a task is deleted, while the chat is still locked.
type DeleteHook func(ctx context.Context, deleted Task) error

// AfterDueFunc runs after a due time is stored, while the chat is still locked
// and inside the store transaction. An error undoes the due time and is
// returned to the caller of SetDueTime.
type AfterDueFunc func(ctx context.Context, updated Task) error

// Service wraps a Store with per-chat serialization, logging, events and metrics.
type Service struct {
	store     Store
	publisher events.Publisher
	logger    *logger.Logger

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex

	hooksMu     sync.RWMutex
	deleteHooks []DeleteHook
}

// NewService creates a new task service.
func NewService(store Store, publisher events.Publisher, logger *logger.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
		locks:     make(map[int64]*sync.Mutex),
	}
}

// OnDelete registers a hook invoked for every deleted task.
func (s *Service) OnDelete(hook DeleteHook) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.deleteHooks = append(s.deleteHooks, hook)
}

func (s *Service) lock(chatID int64) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[chatID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[chatID] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Create appends a task to the chat's list.
func (s *Service) Create(ctx context.Context, chatID int64, text string) (Task, error) {
	log := s.logger.WithContext(ctx).WithComponent("task-service")

	unlock := s.lock(chatID)
	defer unlock()

	t, err := s.store.Create(ctx, chatID, text)
	if err != nil {
		return Task{}, err
	}

	metrics.TasksCreated.Inc()
	log.Info("task created",
		slog.Int64("chat_id", chatID),
		slog.Int64("task_id", t.ID),
		slog.Int("position", t.Position))

	s.publish(ctx, events.SubjectTaskCreated, events.TaskEvent{
		ChatID:     chatID,
		TaskID:     t.ID,
		Position:   t.Position,
		Text:       t.Text,
		OccurredAt: time.Now().UTC(),
	})
	return t, nil
}

// List returns the chat's tasks in position order.
func (s *Service) List(ctx context.Context, chatID int64) ([]Task, error) {
	return s.store.List(ctx, chatID)
}

// Get returns the task at position.
func (s *Service) Get(ctx context.Context, chatID int64, position int) (Task, error) {
	return s.store.Get(ctx, chatID, position)
}

// Delete removes the task at position, renumbers the rest of the list and
// runs the registered delete hooks. Hook failures are logged, not returned:
// the task is already gone.
func (s *Service) Delete(ctx context.Context, chatID int64, position int) (Task, error) {
	log := s.logger.WithContext(ctx).WithComponent("task-service")

	unlock := s.lock(chatID)
	defer unlock()

	deleted, err := s.store.Delete(ctx, chatID, position)
	if err != nil {
		return Task{}, err
	}

	metrics.TasksDeleted.Inc()
	log.Info("task deleted",
		slog.Int64("chat_id", chatID),
		slog.Int64("task_id", deleted.ID),
		slog.Int("position", position))

	s.hooksMu.RLock()
	hooks := s.deleteHooks
	s.hooksMu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, deleted); err != nil {
			log.Error("delete hook failed",
				slog.String("error", err.Error()),
				slog.Int64("task_id", deleted.ID))
		}
	}

	s.publish(ctx, events.SubjectTaskDeleted, events.TaskEvent{
		ChatID:     chatID,
		TaskID:     deleted.ID,
		Position:   position,
		Text:       deleted.Text,
		OccurredAt: time.Now().UTC(),
	})
	return deleted, nil
}

// SetDueTime stores due on the task at position and runs after (if any) in
// the same store transaction, so both take effect or neither does.
func (s *Service) SetDueTime(ctx context.Context, chatID int64, position int, due time.Time, after AfterDueFunc) (Task, error) {
	log := s.logger.WithContext(ctx).WithComponent("task-service")

	unlock := s.lock(chatID)
	defer unlock()

	var updated Task
	err := s.store.InTx(ctx, chatID, func(ctx context.Context) error {
		var err error
		updated, err = s.store.SetDueTime(ctx, chatID, position, due)
		if err != nil {
			return err
		}
		if after != nil {
			return after(ctx, updated)
		}
		return nil
	})
	if err != nil {
		return Task{}, err
	}

	log.Debug("due time stored",
		slog.Int64("task_id", updated.ID),
		slog.String("due_time", updated.DueTime))
	return updated, nil
}

func (s *Service) publish(ctx context.Context, subject string, event any) {
	if err := s.publisher.Publish(ctx, subject, event); err != nil {
		s.logger.WithContext(ctx).WithComponent("task-service").Warn("failed to publish event",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}
