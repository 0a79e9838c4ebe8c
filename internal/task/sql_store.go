package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eternisai/taskbot/internal/config"
	apperrors "github.com/eternisai/taskbot/internal/errors"
	"github.com/eternisai/taskbot/internal/storage/sqldb"
)

const taskColumns = "id, chat_id, position, task, due_time, created_at"

// SQLStore is a Store backed by database/sql (postgres or sqlite3).
type SQLStore struct {
	db *sqldb.Database
}

// NewSQLStore creates a SQLStore over an initialized database.
func NewSQLStore(db *sqldb.Database) *SQLStore {
	return &SQLStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var (
		t   Task
		due sql.NullString
	)
	if err := row.Scan(&t.ID, &t.ChatID, &t.Position, &t.Text, &due, &t.CreatedAt); err != nil {
		return Task{}, err
	}
	t.DueTime = due.String
	return t, nil
}

// lockChat serializes writers of one chat across processes sharing a postgres database.
func (s *SQLStore) lockChat(ctx context.Context, q sqldb.Querier, chatID int64) error {
	if s.db.Driver != config.DriverPostgres {
		return nil
	}
	if _, err := q.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", chatID); err != nil {
		return fmt.Errorf("failed to lock chat %d: %w", chatID, err)
	}
	return nil
}

func (s *SQLStore) Create(ctx context.Context, chatID int64, text string) (Task, error) {
	text, err := normalizeText(text)
	if err != nil {
		return Task{}, err
	}

	var created Task
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.lockChat(ctx, tx, chatID); err != nil {
			return err
		}

		var last int
		err := tx.QueryRowContext(ctx,
			s.db.Rebind("SELECT COALESCE(MAX(position), 0) FROM tasks WHERE chat_id = ?"),
			chatID,
		).Scan(&last)
		if err != nil {
			return fmt.Errorf("failed to read last position: %w", err)
		}

		row := tx.QueryRowContext(ctx,
			s.db.Rebind("INSERT INTO tasks (chat_id, position, task, created_at) VALUES (?, ?, ?, ?) RETURNING "+taskColumns),
			chatID, last+1, text, time.Now().UTC(),
		)
		created, err = scanTask(row)
		if err != nil {
			return fmt.Errorf("failed to insert task: %w", err)
		}
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return created, nil
}

func (s *SQLStore) List(ctx context.Context, chatID int64) ([]Task, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		s.db.Rebind("SELECT "+taskColumns+" FROM tasks WHERE chat_id = ? ORDER BY position"),
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

func (s *SQLStore) Get(ctx context.Context, chatID int64, position int) (Task, error) {
	row := s.db.DB.QueryRowContext(ctx,
		s.db.Rebind("SELECT "+taskColumns+" FROM tasks WHERE chat_id = ? AND position = ?"),
		chatID, position,
	)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, apperrors.NewNotFoundError(chatID, position)
	}
	if err != nil {
		return Task{}, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

func (s *SQLStore) Delete(ctx context.Context, chatID int64, position int) (Task, error) {
	var deleted Task
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.lockChat(ctx, tx, chatID); err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx,
			s.db.Rebind("DELETE FROM tasks WHERE chat_id = ? AND position = ? RETURNING "+taskColumns),
			chatID, position,
		)
		var err error
		deleted, err = scanTask(row)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewNotFoundError(chatID, position)
		}
		if err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			s.db.Rebind("UPDATE tasks SET position = position - 1 WHERE chat_id = ? AND position > ?"),
			chatID, position,
		)
		if err != nil {
			return fmt.Errorf("failed to renumber tasks: %w", err)
		}
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return deleted, nil
}

// InTx runs fn in a database transaction holding the chat lock. Any store on
// the same database that queries through ctx joins the transaction.
func (s *SQLStore) InTx(ctx context.Context, chatID int64, fn func(ctx context.Context) error) error {
	return s.db.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.lockChat(ctx, s.db.Conn(ctx), chatID); err != nil {
			return err
		}
		return fn(ctx)
	})
}

func (s *SQLStore) SetDueTime(ctx context.Context, chatID int64, position int, due time.Time) (Task, error) {
	row := s.db.Conn(ctx).QueryRowContext(ctx,
		s.db.Rebind("UPDATE tasks SET due_time = ? WHERE chat_id = ? AND position = ? RETURNING "+taskColumns),
		FormatDueTime(due), chatID, position,
	)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, apperrors.NewNotFoundError(chatID, position)
	}
	if err != nil {
		return Task{}, fmt.Errorf("failed to set due time: %w", err)
	}
	return t, nil
}
