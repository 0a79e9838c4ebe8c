package task

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/eternisai/taskbot/internal/errors"
)

// MemoryStore is an in-process Store. Tasks are lost when the process exits.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	chats  map[int64][]Task // ordered by position
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chats: make(map[int64][]Task)}
}

func (s *MemoryStore) Create(_ context.Context, chatID int64, text string) (Task, error) {
	text, err := normalizeText(text)
	if err != nil {
		return Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	t := Task{
		ID:        s.nextID,
		ChatID:    chatID,
		Position:  len(s.chats[chatID]) + 1,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	s.chats[chatID] = append(s.chats[chatID], t)
	return t, nil
}

func (s *MemoryStore) List(_ context.Context, chatID int64) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make([]Task, len(s.chats[chatID]))
	copy(tasks, s.chats[chatID])
	return tasks, nil
}

func (s *MemoryStore) Get(_ context.Context, chatID int64, position int) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := s.chats[chatID]
	if position < 1 || position > len(tasks) {
		return Task{}, apperrors.NewNotFoundError(chatID, position)
	}
	return tasks[position-1], nil
}

func (s *MemoryStore) Delete(_ context.Context, chatID int64, position int) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := s.chats[chatID]
	if position < 1 || position > len(tasks) {
		return Task{}, apperrors.NewNotFoundError(chatID, position)
	}

	deleted := tasks[position-1]
	remaining := make([]Task, 0, len(tasks)-1)
	remaining = append(remaining, tasks[:position-1]...)
	for _, t := range tasks[position:] {
		t.Position--
		remaining = append(remaining, t)
	}
	s.chats[chatID] = remaining
	return deleted, nil
}

// InTx restores the chat's tasks when fn fails. Callers serialize access to
// the chat while fn runs.
func (s *MemoryStore) InTx(ctx context.Context, chatID int64, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	snapshot := append([]Task(nil), s.chats[chatID]...)
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.chats[chatID] = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) SetDueTime(_ context.Context, chatID int64, position int, due time.Time) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := s.chats[chatID]
	if position < 1 || position > len(tasks) {
		return Task{}, apperrors.NewNotFoundError(chatID, position)
	}
	tasks[position-1].DueTime = FormatDueTime(due)
	return tasks[position-1], nil
}
