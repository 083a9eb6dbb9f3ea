package tool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

const postgresStoreSchema = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id BIGSERIAL PRIMARY KEY,
	scope TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	base_url TEXT NOT NULL,
	protocol_type TEXT NOT NULL DEFAULT 'http',
	discovery_path TEXT NOT NULL DEFAULT '',
	execute_path TEXT NOT NULL DEFAULT '',
	result_path TEXT NOT NULL DEFAULT '',
	poll_interval BIGINT NOT NULL DEFAULT 1000,
	timeout_ms BIGINT NOT NULL DEFAULT 0,
	credential_ref TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	result_selector TEXT NOT NULL DEFAULT '',
	tools TEXT,
	capabilities TEXT,
	status TEXT NOT NULL DEFAULT '',
	last_connected TEXT,
	updated_at TEXT NOT NULL
)`

// PostgresStoreConfig configures the Postgres-backed server store.
type PostgresStoreConfig struct {
	DSN string
	// Table defaults to mcp_servers.
	Table string
	Now   func() time.Time
}

// PostgresStore persists server definitions in Postgres.
type PostgresStore struct {
	*sqlServerStore
}

// NewPostgresStore connects to Postgres and ensures the server table exists.
func NewPostgresStore(ctx context.Context, cfg PostgresStoreConfig) (*PostgresStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("tool: postgres store dsn is required")
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = "mcp_servers"
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("tool: postgres store open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tool: postgres store ping: %w", err)
	}

	quoted := pq.QuoteIdentifier(table)
	if _, err := db.ExecContext(ctx, fmt.Sprintf(postgresStoreSchema, quoted)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tool: postgres store create schema: %w", err)
	}

	return &PostgresStore{sqlServerStore: &sqlServerStore{
		db:      db,
		dialect: sqlDialect{name: "postgres", numbered: true, table: quoted, serialIDs: true},
		now:     cfg.Now,
	}}, nil
}

var _ ServerRepository = (*PostgresStore)(nil)
