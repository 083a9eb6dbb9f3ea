package tool

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteStoreSchema = `
CREATE TABLE IF NOT EXISTS mcp_servers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	scope TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	base_url TEXT NOT NULL,
	protocol_type TEXT NOT NULL DEFAULT 'http',
	discovery_path TEXT NOT NULL DEFAULT '',
	execute_path TEXT NOT NULL DEFAULT '',
	result_path TEXT NOT NULL DEFAULT '',
	poll_interval INTEGER NOT NULL DEFAULT 1000,
	timeout_ms INTEGER NOT NULL DEFAULT 0,
	credential_ref TEXT NOT NULL DEFAULT '',
	active INTEGER NOT NULL DEFAULT 1,
	result_selector TEXT NOT NULL DEFAULT '',
	tools TEXT,
	capabilities TEXT,
	status TEXT NOT NULL DEFAULT '',
	last_connected TEXT,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS mcp_servers_active_scope ON mcp_servers (active, scope);`

const (
	defaultSQLiteStoreDir = ".toolctl"
	defaultSQLiteStoreDB  = "toolctl.db"
)

// SQLiteStoreConfig configures the SQLite-backed server store.
type SQLiteStoreConfig struct {
	DSN string
	Now func() time.Time
}

// SQLiteStore persists server definitions in SQLite.
type SQLiteStore struct {
	*sqlServerStore
}

// DefaultSQLitePath returns the default SQLite path for CLI storage.
func DefaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("tool: resolve user home: %w", err)
	}
	return filepath.Join(home, defaultSQLiteStoreDir, defaultSQLiteStoreDB), nil
}

// NewDefaultSQLiteStore creates a SQLite store at ~/.toolctl/toolctl.db.
func NewDefaultSQLiteStore() (*SQLiteStore, error) {
	path, err := DefaultSQLitePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("tool: create store dir: %w", err)
	}
	return NewSQLiteStore(SQLiteStoreConfig{DSN: path})
}

// NewSQLiteStore opens (or creates) a SQLite-backed server store.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("tool: sqlite store dsn is required")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("tool: sqlite store open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tool: sqlite store set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tool: sqlite store set busy timeout: %w", err)
	}

	if _, err := db.Exec(sqliteStoreSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tool: sqlite store create schema: %w", err)
	}

	return &SQLiteStore{sqlServerStore: &sqlServerStore{
		db:      db,
		dialect: sqlDialect{name: "sqlite", table: "mcp_servers"},
		now:     cfg.Now,
	}}, nil
}

var _ ServerRepository = (*SQLiteStore)(nil)
