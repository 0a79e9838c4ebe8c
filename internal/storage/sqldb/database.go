package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/eternisai/taskbot/internal/config"
	"github.com/eternisai/taskbot/internal/logger"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// Database is the process-wide connection pool shared by every chat.
type Database struct {
	DB     *sql.DB
	Driver string
}

// InitDatabase opens the configured database, tunes the pool and runs migrations.
func InitDatabase(cfg *config.Config, log *logger.Logger) (*Database, error) {
	db, err := sql.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.DatabaseDriver == config.DriverSQLite {
		// SQLite allows a single writer; an in-memory database also lives
		// on exactly one connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
		db.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTime) * time.Minute)
		db.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Minute)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(db, cfg.DatabaseDriver, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Database{
		DB:     db,
		Driver: cfg.DatabaseDriver,
	}, nil
}

// Close closes the underlying pool.
func (d *Database) Close() error {
	return d.DB.Close()
}

// Rebind rewrites '?' placeholders into the driver's native form.
// Queries are written once with '?' and rebound for postgres ($1, $2, ...).
func (d *Database) Rebind(query string) string {
	if d.Driver != config.DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Conn returns the transaction carried by ctx, or the pool when there is none.
func (d *Database) Conn(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return d.DB
}

// RunInTx runs fn with a transaction in its context. Stores that query through
// Conn join it, so their writes commit or roll back together. A ctx that
// already carries a transaction is reused.
func (d *Database) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// WithTx runs fn inside a transaction, committing on success and rolling back otherwise.
// When ctx already carries a transaction fn joins it.
func (d *Database) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(tx)
	}

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
