package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/fortuna/nightbox/internal/logging"
)

// Database wraps the PostgreSQL connection pool.
type Database struct {
	conn   *sql.DB
	logger *logging.Logger
}

// NewDatabase opens a connection pool and verifies it with a ping.
func NewDatabase(dsn string, logger *logging.Logger) (*Database, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping database")
	}

	if logger == nil {
		logger = logging.Default()
	}
	return &Database{conn: db, logger: logger}, nil
}

// Close closes the database connection.
func (db *Database) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// DB returns the underlying *sql.DB for queries.
func (db *Database) DB() *sql.DB {
	return db.conn
}

// HealthCheck verifies the connection is still alive.
func (db *Database) HealthCheck(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrations run in order at startup. Each statement is idempotent so
// re-running against an initialized database is safe.
var migrations = []struct {
	version string
	query   string
}{
	{
		version: "001_create_settings",
		query: `
			CREATE TABLE IF NOT EXISTS settings (
				key        TEXT PRIMARY KEY,
				value      TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)
		`,
	},
	{
		version: "002_create_roster",
		query: `
			CREATE TABLE IF NOT EXISTS roster (
				id              SERIAL PRIMARY KEY,
				label           TEXT NOT NULL,
				team_id         INTEGER NOT NULL DEFAULT 0,
				player_id       INTEGER NOT NULL DEFAULT 0,
				flashscore_slug TEXT NOT NULL DEFAULT '',
				flashscore_id   TEXT NOT NULL DEFAULT '',
				position        INTEGER NOT NULL DEFAULT 0,
				created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)
		`,
	},
}

// RunMigrations creates the schema, tracking applied versions so each
// migration runs exactly once.
func (db *Database) RunMigrations(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return errors.Wrap(err, "create migrations table")
	}

	for _, m := range migrations {
		var exists bool
		err := db.conn.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", m.version,
		).Scan(&exists)
		if err != nil {
			return errors.Wrapf(err, "check migration %s", m.version)
		}
		if exists {
			continue
		}

		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrap(err, "begin migration tx")
		}
		if _, err := tx.ExecContext(ctx, m.query); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "run migration %s", m.version)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version) VALUES ($1)", m.version,
		); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "record migration %s", m.version)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit migration %s", m.version)
		}
		db.logger.Info("applied migration", "version", m.version)
	}

	return nil
}
