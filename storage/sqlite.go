// Package storage persists classified threat records and enrichment run
// audit rows in SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLite holds the database connection for threat storage. WAL mode with
// a single-writer pool: SQLite allows exactly one writer at a time, and
// all pipeline writes are sequential anyway.
type SQLite struct {
	DB     *sql.DB
	Path   string
	Logger *zap.SugaredLogger
}

// NewSQLite opens (creating if needed) the threat database and applies
// the schema.
func NewSQLite(dbPath string, logger *zap.SugaredLogger) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := configureConnection(db, dbPath); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLite{
		DB:     db,
		Path:   dbPath,
		Logger: logger,
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Infow("SQLite database initialized", "path", dbPath)
	return s, nil
}

// configureConnection enables WAL mode, foreign keys and a busy timeout.
// SQLite disables foreign keys by default; child-table cascades depend on
// them, so enablement is verified, not assumed.
func configureConnection(db *sql.DB, dbPath string) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	var fkEnabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		return fmt.Errorf("failed to verify foreign keys: %w", err)
	}
	if fkEnabled != 1 {
		return fmt.Errorf("foreign keys not enabled (got %d)", fkEnabled)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	// In-memory databases report "memory" journal mode, not "wal"
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to query journal mode: %w", err)
	}
	if dbPath != ":memory:" && journalMode != "wal" {
		return fmt.Errorf("WAL mode not enabled (got %s)", journalMode)
	}

	return nil
}

// WithTransaction executes fn within a transaction, rolling back on error
// or panic.
func (s *SQLite) WithTransaction(fn func(*sql.Tx) error) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to rollback transaction (original error: %w, rollback error: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// createTables creates the threat, child-collection and run-audit tables.
// Child tables cascade on threat deletion so an upsert's delete-then-
// reinsert of children can never orphan rows.
func (s *SQLite) createTables() error {
	schema := `
	-- Classified threat records, one row per deduplicated record id
	CREATE TABLE IF NOT EXISTS threats (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		link TEXT,
		source TEXT NOT NULL,
		source_type TEXT NOT NULL CHECK(source_type IN ('api','rss','webpage')),
		published TEXT,
		severity INTEGER NOT NULL CHECK(severity BETWEEN 1 AND 10),
		processed_at DATETIME NOT NULL,
		added_to_kb INTEGER NOT NULL DEFAULT 0,
		raw_data TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_threats_source ON threats(source);
	CREATE INDEX IF NOT EXISTS idx_threats_severity ON threats(severity);
	CREATE INDEX IF NOT EXISTS idx_threats_processed_at ON threats(processed_at);

	-- Category and attack-vector child collections
	CREATE TABLE IF NOT EXISTS threat_categories (
		threat_id TEXT NOT NULL REFERENCES threats(id) ON DELETE CASCADE,
		category TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (threat_id, category)
	);
	CREATE TABLE IF NOT EXISTS attack_vectors (
		threat_id TEXT NOT NULL REFERENCES threats(id) ON DELETE CASCADE,
		vector TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (threat_id, vector)
	);

	-- One table per IOC kind
	CREATE TABLE IF NOT EXISTS ioc_ip (
		threat_id TEXT NOT NULL REFERENCES threats(id) ON DELETE CASCADE,
		value TEXT NOT NULL,
		PRIMARY KEY (threat_id, value)
	);
	CREATE TABLE IF NOT EXISTS ioc_domain (
		threat_id TEXT NOT NULL REFERENCES threats(id) ON DELETE CASCADE,
		value TEXT NOT NULL,
		PRIMARY KEY (threat_id, value)
	);
	CREATE TABLE IF NOT EXISTS ioc_url (
		threat_id TEXT NOT NULL REFERENCES threats(id) ON DELETE CASCADE,
		value TEXT NOT NULL,
		PRIMARY KEY (threat_id, value)
	);
	CREATE TABLE IF NOT EXISTS ioc_email (
		threat_id TEXT NOT NULL REFERENCES threats(id) ON DELETE CASCADE,
		value TEXT NOT NULL,
		PRIMARY KEY (threat_id, value)
	);
	CREATE TABLE IF NOT EXISTS ioc_hash (
		threat_id TEXT NOT NULL REFERENCES threats(id) ON DELETE CASCADE,
		value TEXT NOT NULL,
		PRIMARY KEY (threat_id, value)
	);
	CREATE TABLE IF NOT EXISTS ioc_cve (
		threat_id TEXT NOT NULL REFERENCES threats(id) ON DELETE CASCADE,
		value TEXT NOT NULL,
		PRIMARY KEY (threat_id, value)
	);

	-- Enrichment pass audit trail
	CREATE TABLE IF NOT EXISTS enrichment_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		start_time DATETIME NOT NULL,
		end_time DATETIME,
		status TEXT NOT NULL CHECK(status IN ('running','completed','error')),
		sources_count INTEGER NOT NULL DEFAULT 0,
		entries_fetched INTEGER NOT NULL DEFAULT 0,
		entries_processed INTEGER NOT NULL DEFAULT 0,
		entries_added_to_kb INTEGER NOT NULL DEFAULT 0,
		error_message TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_start_time ON enrichment_runs(start_time);
	`

	if _, err := s.DB.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection is alive.
func (s *SQLite) HealthCheck() error {
	if err := s.DB.Ping(); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if err := s.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
