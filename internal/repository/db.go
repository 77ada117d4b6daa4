package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "modernc.org/sqlite"
)

// MemoryDSN keeps the whole store in process memory; it disappears with the
// process, which is all a session store needs.
const MemoryDSN = ":memory:"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id             TEXT PRIMARY KEY,
		status         TEXT NOT NULL,
		started_at     TEXT NOT NULL,
		finished_at    TEXT,
		error_message  TEXT,
		options        TEXT NOT NULL,
		patterns_json  TEXT NOT NULL,
		columns_json   TEXT NOT NULL DEFAULT '[]',
		document_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS run_rows (
		run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position    INTEGER NOT NULL,
		file_name   TEXT NOT NULL,
		method      TEXT NOT NULL,
		chars       INTEGER NOT NULL,
		pages       INTEGER NOT NULL,
		unreadable  INTEGER NOT NULL,
		matched     INTEGER NOT NULL,
		values_json TEXT NOT NULL,
		PRIMARY KEY (run_id, position)
	)`,
	`CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at)`,
}

// DB is the session store: SQLite behind ent's SQL driver.
type DB struct {
	drv *entsql.Driver
	log *slog.Logger
}

// Open opens SQLite at dsn (MemoryDSN when empty), wraps it for ent and
// creates the tables.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dsn == "" {
		dsn = MemoryDSN
	}
	logger.Info("opening session store", "dsn", dsn)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		logger.Error("failed to open session store", "error", err)
		return nil, err
	}
	// every connection to :memory: is its own database
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	drv := entsql.OpenDB(dialect.SQLite, db)
	if err := drv.Exec(ctx, "PRAGMA foreign_keys = ON", []any{}, nil); err != nil {
		_ = drv.Close()
		return nil, err
	}
	for _, stmt := range schema {
		if err := drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			logger.Error("failed to create session schema", "error", err)
			_ = drv.Close()
			return nil, err
		}
	}

	logger.Info("session store ready")
	return &DB{drv: drv, log: logger}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() {
	d.log.Info("closing session store")
	if err := d.drv.Close(); err != nil {
		d.log.Error("failed to close session store", "error", err)
	}
}

// HealthCheck pings using database/sql.
func (d *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := d.drv.DB().PingContext(ctx); err != nil {
		d.log.Error("session store ping failed", "error", err)
		return err
	}
	return nil
}

func (d *DB) builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}
