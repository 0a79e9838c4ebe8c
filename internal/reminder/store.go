package reminder

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eternisai/taskbot/internal/storage/sqldb"
)

// Store persists reminder records.
type Store interface {
	Insert(ctx context.Context, r Reminder) error
	// MarkFired flips a pending reminder to fired. It reports false when the
	// reminder was not pending, so at most one caller ever wins.
	MarkFired(ctx context.Context, id string, at time.Time) (bool, error)
	// CancelForTask flips every pending reminder of the task to cancelled and
	// returns their ids.
	CancelForTask(ctx context.Context, taskID int64) ([]string, error)
	// ListPending returns pending reminders ordered by fire time.
	ListPending(ctx context.Context) ([]Reminder, error)
}

const reminderColumns = "id, task_id, chat_id, task_text, fire_at, status, created_at, fired_at"

// SQLStore is a Store backed by the reminders table.
type SQLStore struct {
	db *sqldb.Database
}

func NewSQLStore(db *sqldb.Database) *SQLStore {
	return &SQLStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (Reminder, error) {
	var (
		r       Reminder
		status  string
		firedAt sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.TaskID, &r.ChatID, &r.TaskText, &r.FireAt, &status, &r.CreatedAt, &firedAt); err != nil {
		return Reminder{}, err
	}
	r.Status = Status(status)
	r.FireAt = r.FireAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	if firedAt.Valid {
		t := firedAt.Time.UTC()
		r.FiredAt = &t
	}
	return r, nil
}

// Insert joins a transaction carried by ctx.
func (s *SQLStore) Insert(ctx context.Context, r Reminder) error {
	_, err := s.db.Conn(ctx).ExecContext(ctx,
		s.db.Rebind("INSERT INTO reminders (id, task_id, chat_id, task_text, fire_at, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)"),
		r.ID, r.TaskID, r.ChatID, r.TaskText, r.FireAt.UTC(), string(r.Status), r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reminder: %w", err)
	}
	return nil
}

func (s *SQLStore) MarkFired(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.DB.ExecContext(ctx,
		s.db.Rebind("UPDATE reminders SET status = ?, fired_at = ? WHERE id = ? AND status = ?"),
		string(StatusFired), at.UTC(), id, string(StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark reminder fired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

func (s *SQLStore) CancelForTask(ctx context.Context, taskID int64) ([]string, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		s.db.Rebind("UPDATE reminders SET status = ? WHERE task_id = ? AND status = ? RETURNING id"),
		string(StatusCancelled), taskID, string(StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel reminders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan reminder id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) ListPending(ctx context.Context) ([]Reminder, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		s.db.Rebind("SELECT "+reminderColumns+" FROM reminders WHERE status = ? ORDER BY fire_at"),
		string(StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reminders: %w", err)
	}
	defer rows.Close()

	var reminders []Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu        sync.Mutex
	reminders map[string]Reminder
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reminders: make(map[string]Reminder)}
}

func (s *MemoryStore) Insert(_ context.Context, r Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reminders[r.ID]; exists {
		return fmt.Errorf("reminder %s already exists", r.ID)
	}
	s.reminders[r.ID] = r
	return nil
}

func (s *MemoryStore) MarkFired(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reminders[id]
	if !ok || r.Status != StatusPending {
		return false, nil
	}
	at = at.UTC()
	r.Status = StatusFired
	r.FiredAt = &at
	s.reminders[id] = r
	return true, nil
}

func (s *MemoryStore) CancelForTask(_ context.Context, taskID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, r := range s.reminders {
		if r.TaskID == taskID && r.Status == StatusPending {
			r.Status = StatusCancelled
			s.reminders[id] = r
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) ListPending(_ context.Context) ([]Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []Reminder
	for _, r := range s.reminders {
		if r.Status == StatusPending {
			pending = append(pending, r)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].FireAt.Before(pending[j].FireAt) })
	return pending, nil
}
