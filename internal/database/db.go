// Package database provides database setup, models, and the data access layer (Store).
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/edgard/shamebot/migrations"

	_ "modernc.org/sqlite" //revive:disable:blank-imports
)

// defaultPragmas enable foreign keys (job rows cascade with their task) and
// make writers wait instead of failing with SQLITE_BUSY.
const defaultPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// OpenDB connects to the SQLite database at dbPath without touching its schema.
func OpenDB(dbPath string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite", BuildDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite doesn't support concurrent writes, so max open conns = 1
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// NewDB opens the SQLite database at dbPath, applies migrations, and returns the pool.
func NewDB(dbPath string) (*sqlx.DB, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}

	if err := ApplyMigrations(db.DB, ExtractDBNameFromPath(dbPath)); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("Error closing database after migration failure", "error", closeErr)
		}
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	slog.Info("Database connected and migrations applied successfully", "path", dbPath)
	return db, nil
}

// WaitForDB retries NewDB every interval until it succeeds or ctx is done.
func WaitForDB(ctx context.Context, dbPath string, every time.Duration, log *slog.Logger) (*sqlx.DB, error) {
	if log == nil {
		log = slog.Default()
	}
	for attempt := 1; ; attempt++ {
		db, err := NewDB(dbPath)
		if err == nil {
			return db, nil
		}
		log.Warn("Database not ready, retrying", "path", dbPath, "attempt", attempt, "retry_in", every, "error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gave up waiting for database: %w", ctx.Err())
		case <-time.After(every):
		}
	}
}

// CloseDB closes the database connection pool.
func CloseDB(db *sqlx.DB) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		slog.Error("Error closing database connection", "error", err)
	} else {
		slog.Info("Database connection closed successfully.")
	}
}

// ApplyMigrations runs database migrations using the embedded files.
func ApplyMigrations(db *sql.DB, dbName string) error {
	if db == nil {
		return errors.New("database connection is nil, cannot apply migrations")
	}
	if dbName == "" {
		return errors.New("database name/path for migration driver is empty")
	}

	slog.Info("Applying database migrations...", "database_name", dbName)

	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to create embed source driver instance: %w", err)
	}

	dbDriver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite database driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("No database migrations to apply.")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	slog.Info("Database migrations applied successfully.")
	return nil
}

// BuildDSN appends the default pragmas unless the caller supplied a query string.
func BuildDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	if strings.HasPrefix(path, "file:") {
		return path + "?" + defaultPragmas
	}
	return "file:" + path + "?" + defaultPragmas
}

// ExtractDBNameFromPath extracts the database file path from a possibly URL-formatted path.
func ExtractDBNameFromPath(path string) string {
	path = strings.TrimPrefix(path, "file:")

	if idx := strings.Index(path, "?"); idx != -1 {
		path = path[:idx]
	}

	if decoded, err := url.PathUnescape(path); err == nil {
		return decoded
	}

	return path
}
