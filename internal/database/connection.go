package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Supported values of Config.Type
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
)

// Config selects and tunes the backing database
type Config struct {
	Type       string // sqlite, postgres or mysql
	Path       string // sqlite file path
	DSN        string // postgres or mysql data source name
	MaxRetries int    // retries of a transient failure; 0 disables retrying
}

// DB is the persistence handle shared by all repositories.
// There is no package-level connection; pass the handle explicitly.
type DB struct {
	x          *sqlx.DB
	dbType     string
	maxRetries int
	logger     *slog.Logger

	// retryInitial is the first backoff delay. Tests shorten it.
	retryInitial time.Duration
}

// Open connects to the configured database and creates missing tables
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	driver, dsn, err := driverAndDSN(cfg)
	if err != nil {
		return nil, err
	}

	x, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s database", cfg.Type)
	}

	if cfg.Type == TypeSQLite {
		// SQLite doesn't support multiple writers
		x.SetMaxOpenConns(1)
		x.SetMaxIdleConns(1)
	}

	db := &DB{
		x:            x,
		dbType:       cfg.Type,
		maxRetries:   cfg.MaxRetries,
		logger:       logger,
		retryInitial: 100 * time.Millisecond,
	}

	if err := db.initializeSchema(ctx); err != nil {
		x.Close()
		return nil, err
	}

	logger.Info("database ready", "type", cfg.Type)
	return db, nil
}

func driverAndDSN(cfg Config) (string, string, error) {
	switch cfg.Type {
	case TypeSQLite, "":
		path := cfg.Path
		if path == "" {
			path = filepath.Join("data", "studyflow.db")
		}
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", "", errors.Wrap(err, "failed to create data directory")
			}
		}
		return "sqlite3", path + "?_foreign_keys=1&_busy_timeout=5000&_journal_mode=WAL", nil

	case TypePostgres:
		if cfg.DSN == "" {
			return "", "", fmt.Errorf("postgres requires a DSN")
		}
		return "postgres", cfg.DSN, nil

	case TypeMySQL:
		mc, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return "", "", errors.Wrap(err, "invalid mysql DSN")
		}
		// UpdateOne reports matched rows, not changed rows.
		mc.ClientFoundRows = true
		mc.ParseTime = true
		mc.Loc = time.UTC
		return "mysql", mc.FormatDSN(), nil
	}
	return "", "", fmt.Errorf("unsupported database type %q", cfg.Type)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.x.Close()
}

// Type returns the configured database type
func (db *DB) Type() string {
	return db.dbType
}

// columnTypes returns the driver-specific timestamp and document column types
func (db *DB) columnTypes() (ts, doc string) {
	switch db.dbType {
	case TypePostgres:
		return "TIMESTAMPTZ", "TEXT"
	case TypeMySQL:
		return "DATETIME(6)", "MEDIUMTEXT"
	}
	return "DATETIME", "TEXT"
}

// initializeSchema creates necessary tables if they don't exist
func (db *DB) initializeSchema(ctx context.Context) error {
	ts, doc := db.columnTypes()

	statements := []struct {
		name  string
		query string
	}{
		{"users", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS users (
				id VARCHAR(191) PRIMARY KEY,
				chat_id BIGINT NOT NULL,
				username VARCHAR(191) NOT NULL DEFAULT '',
				notification_enabled BOOLEAN NOT NULL DEFAULT TRUE,
				created_at %s NOT NULL
			)`, ts)},
		{"learning_items", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS learning_items (
				id VARCHAR(191) PRIMARY KEY,
				module VARCHAR(32) NOT NULL,
				lesson_id INTEGER NOT NULL,
				position INTEGER NOT NULL DEFAULT 0,
				prompt %[1]s NOT NULL,
				answer %[1]s NOT NULL
			)`, doc)},
		{"memory_states", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS memory_states (
				user_id VARCHAR(191) NOT NULL,
				item_id VARCHAR(191) NOT NULL,
				module VARCHAR(32) NOT NULL,
				mastery_level VARCHAR(32) NOT NULL,
				easiness_factor REAL NOT NULL DEFAULT 2.5,
				interval_days INTEGER NOT NULL DEFAULT 0,
				repetition_count INTEGER NOT NULL DEFAULT 0,
				last_quality INTEGER NOT NULL DEFAULT 0,
				last_reviewed_at %[1]s NULL,
				next_review_at %[1]s NULL,
				skipped BOOLEAN NOT NULL DEFAULT FALSE,
				updated_at %[1]s NOT NULL,
				PRIMARY KEY (user_id, item_id)
			)`, ts)},
		{"session_snapshots", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS session_snapshots (
				user_id VARCHAR(191) NOT NULL,
				lesson_id INTEGER NOT NULL,
				session_id VARCHAR(64) NOT NULL,
				round INTEGER NOT NULL,
				phase VARCHAR(32) NOT NULL,
				answered_count INTEGER NOT NULL DEFAULT 0,
				current_index INTEGER NOT NULL DEFAULT 0,
				remedy_index INTEGER NOT NULL DEFAULT 0,
				status VARCHAR(16) NOT NULL,
				retries INTEGER NOT NULL DEFAULT 0,
				round_items %[2]s NOT NULL,
				carryover %[2]s NOT NULL,
				yesterday_misses %[2]s NOT NULL,
				final_misses %[2]s NOT NULL,
				final_correct INTEGER NOT NULL DEFAULT 0,
				final_total INTEGER NOT NULL DEFAULT 0,
				evaluation %[2]s NOT NULL,
				updated_at %[1]s NOT NULL,
				PRIMARY KEY (user_id, lesson_id)
			)`, ts, doc)},
		{"lesson_completions", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS lesson_completions (
				user_id VARCHAR(191) NOT NULL,
				lesson_id INTEGER NOT NULL,
				module VARCHAR(32) NOT NULL,
				rounds INTEGER NOT NULL,
				last_pass_rate REAL NOT NULL,
				completed_at %s NOT NULL,
				PRIMARY KEY (user_id, lesson_id)
			)`, ts)},
		{"user_unlocks", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS user_unlocks (
				user_id VARCHAR(191) PRIMARY KEY,
				word_unlocked BOOLEAN NOT NULL DEFAULT FALSE,
				sentence_unlocked BOOLEAN NOT NULL DEFAULT FALSE,
				article_unlocked BOOLEAN NOT NULL DEFAULT FALSE,
				letter_progress REAL NOT NULL DEFAULT 0,
				updated_at %s NOT NULL
			)`, ts)},
	}

	for _, stmt := range statements {
		if _, err := db.x.ExecContext(ctx, stmt.query); err != nil {
			return errors.Wrapf(err, "failed to create %s table", stmt.name)
		}
	}

	// MySQL has no CREATE INDEX IF NOT EXISTS; the primary keys serve it.
	if db.dbType == TypeMySQL {
		return nil
	}
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_learning_items_lesson ON learning_items(lesson_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_states_due ON memory_states(user_id, next_review_at)`,
	}
	for _, q := range indexes {
		if _, err := db.x.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "failed to create index")
		}
	}
	return nil
}
