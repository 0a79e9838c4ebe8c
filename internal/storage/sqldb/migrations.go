package sqldb

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"path"

	"github.com/eternisai/taskbot/internal/logger"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite3/*.sql
var embedMigrations embed.FS

// RunMigrations runs all pending migrations for the given driver. goose
// output goes to log at info level.
func RunMigrations(db *sql.DB, driver string, log *logger.Logger) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(slog.NewLogLogger(log.WithComponent("migrations").Handler(), slog.LevelInfo))

	if err := goose.SetDialect(driver); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.Up(db, path.Join("migrations", driver))
}
