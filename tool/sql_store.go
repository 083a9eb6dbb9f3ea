package tool

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// sqlDialect captures the differences between the SQL backends.
type sqlDialect struct {
	name string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
	table    string
	// serialIDs means explicit ids do not advance the id sequence.
	serialIDs bool
}

// rebind rewrites ? placeholders for dialects that number them.
func (d sqlDialect) rebind(query string) string {
	query = strings.ReplaceAll(query, "{table}", d.table)
	if !d.numbered {
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

// sqlServerStore implements ServerRepository over database/sql. Tools and
// capabilities are stored as JSON text; intervals are stored in milliseconds.
type sqlServerStore struct {
	db      *sql.DB
	dialect sqlDialect
	now     func() time.Time
}

const serverColumns = `id, scope, name, base_url, protocol_type, discovery_path, execute_path, result_path,
	poll_interval, timeout_ms, credential_ref, active, result_selector, tools, capabilities, status, last_connected`

func (s *sqlServerStore) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("tool: %s store is nil", s.dialectName())
	}
	return nil
}

func (s *sqlServerStore) dialectName() string {
	if s == nil {
		return "sql"
	}
	return s.dialect.name
}

func (s *sqlServerStore) timestamp() string {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	return now().UTC().Format(time.RFC3339Nano)
}

// GetActiveServers returns active servers in scope ordered by id.
func (s *sqlServerStore) GetActiveServers(ctx context.Context, scope string) ([]ServerConfig, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	clean := strings.TrimSpace(scope)
	return s.query(ctx, `SELECT `+serverColumns+` FROM {table}
WHERE active = ? AND (? = '' OR scope = ? OR scope = '')
ORDER BY id ASC`, true, clean, clean)
}

// ListServers returns every server ordered by id.
func (s *sqlServerStore) ListServers(ctx context.Context) ([]ServerConfig, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.query(ctx, `SELECT `+serverColumns+` FROM {table} ORDER BY id ASC`)
}

func (s *sqlServerStore) query(ctx context.Context, query string, args ...any) ([]ServerConfig, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("tool: %s list servers: %w", s.dialect.name, err)
	}
	defer rows.Close()

	var servers []ServerConfig
	for rows.Next() {
		server, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("tool: %s scan server: %w", s.dialect.name, err)
		}
		servers = append(servers, server)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tool: %s server rows: %w", s.dialect.name, err)
	}
	return servers, nil
}

func scanServer(rows *sql.Rows) (ServerConfig, error) {
	var (
		server        ServerConfig
		protocol      string
		pollMS        int64
		timeoutMS     int64
		toolsJSON     sql.NullString
		capsJSON      sql.NullString
		lastConnected sql.NullString
	)
	if err := rows.Scan(
		&server.ID,
		&server.Scope,
		&server.Name,
		&server.BaseURL,
		&protocol,
		&server.DiscoveryPath,
		&server.ExecutePath,
		&server.ResultPath,
		&pollMS,
		&timeoutMS,
		&server.CredentialRef,
		&server.Active,
		&server.ResultSelector,
		&toolsJSON,
		&capsJSON,
		&server.Status,
		&lastConnected,
	); err != nil {
		return ServerConfig{}, err
	}

	server.Protocol = ParseProtocolType(protocol)
	server.PollInterval = time.Duration(pollMS) * time.Millisecond
	server.Timeout = time.Duration(timeoutMS) * time.Millisecond
	if toolsJSON.Valid && strings.TrimSpace(toolsJSON.String) != "" {
		if err := json.Unmarshal([]byte(toolsJSON.String), &server.Tools); err != nil {
			return ServerConfig{}, fmt.Errorf("decode tools for server %d: %w", server.ID, err)
		}
	}
	if capsJSON.Valid && strings.TrimSpace(capsJSON.String) != "" {
		if err := json.Unmarshal([]byte(capsJSON.String), &server.Capabilities); err != nil {
			return ServerConfig{}, fmt.Errorf("decode capabilities for server %d: %w", server.ID, err)
		}
	}
	if lastConnected.Valid && strings.TrimSpace(lastConnected.String) != "" {
		parsed, err := time.Parse(time.RFC3339Nano, lastConnected.String)
		if err == nil {
			server.LastConnected = parsed.UTC()
		}
	}
	return server, nil
}

func encodeJSONColumn(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// UpsertServer inserts or replaces a server definition.
func (s *sqlServerStore) UpsertServer(ctx context.Context, server ServerConfig) (ServerConfig, error) {
	if err := s.ready(ctx); err != nil {
		return ServerConfig{}, err
	}
	if err := validateServer(server); err != nil {
		return ServerConfig{}, err
	}

	stored := CloneServer(server)
	stored.Protocol = ParseProtocolType(string(stored.Protocol))
	if stored.Protocol == "" {
		stored.Protocol = ProtocolHTTP
	}
	toolsJSON, err := encodeJSONColumn(stored.Tools)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("tool: encode tools: %w", err)
	}
	capsJSON, err := encodeJSONColumn(stored.Capabilities)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("tool: encode capabilities: %w", err)
	}
	var lastConnected any
	if !stored.LastConnected.IsZero() {
		lastConnected = stored.LastConnected.UTC().Format(time.RFC3339Nano)
	}

	values := []any{
		stored.Scope,
		stored.Name,
		stored.BaseURL,
		string(stored.Protocol),
		stored.DiscoveryPath,
		stored.ExecutePath,
		stored.ResultPath,
		stored.PollInterval.Milliseconds(),
		stored.Timeout.Milliseconds(),
		stored.CredentialRef,
		stored.Active,
		stored.ResultSelector,
		toolsJSON,
		capsJSON,
		stored.Status,
		lastConnected,
		s.timestamp(),
	}

	const insertColumns = `scope, name, base_url, protocol_type, discovery_path, execute_path, result_path,
	poll_interval, timeout_ms, credential_ref, active, result_selector, tools, capabilities, status, last_connected, updated_at`

	if stored.ID == 0 {
		row := s.db.QueryRowContext(ctx, s.dialect.rebind(`INSERT INTO {table} (`+insertColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`), values...)
		if err := row.Scan(&stored.ID); err != nil {
			return ServerConfig{}, fmt.Errorf("tool: %s insert server: %w", s.dialect.name, err)
		}
		return stored, nil
	}

	_, err = s.db.ExecContext(ctx, s.dialect.rebind(`INSERT INTO {table} (id, `+insertColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	scope = excluded.scope,
	name = excluded.name,
	base_url = excluded.base_url,
	protocol_type = excluded.protocol_type,
	discovery_path = excluded.discovery_path,
	execute_path = excluded.execute_path,
	result_path = excluded.result_path,
	poll_interval = excluded.poll_interval,
	timeout_ms = excluded.timeout_ms,
	credential_ref = excluded.credential_ref,
	active = excluded.active,
	result_selector = excluded.result_selector,
	tools = excluded.tools,
	capabilities = excluded.capabilities,
	status = excluded.status,
	last_connected = excluded.last_connected,
	updated_at = excluded.updated_at`), append([]any{stored.ID}, values...)...)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("tool: %s upsert server %d: %w", s.dialect.name, stored.ID, err)
	}
	if s.dialect.serialIDs {
		if err := s.advanceIDSequence(ctx); err != nil {
			return ServerConfig{}, err
		}
	}
	return stored, nil
}

// advanceIDSequence moves the id sequence past the highest stored id so the
// next generated id cannot collide with one written explicitly.
func (s *sqlServerStore) advanceIDSequence(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`SELECT setval(pg_get_serial_sequence(?, 'id'), GREATEST((SELECT MAX(id) FROM {table}), 1))`), s.dialect.table)
	if err != nil {
		return fmt.Errorf("tool: %s advance id sequence: %w", s.dialect.name, err)
	}
	return nil
}

// DeleteServer removes a server. Deleting a missing id is a no-op.
func (s *sqlServerStore) DeleteServer(ctx context.Context, id int64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM {table} WHERE id = ?`), id); err != nil {
		return fmt.Errorf("tool: %s delete server %d: %w", s.dialect.name, id, err)
	}
	return nil
}

// UpdateServerStatus records a connection status. A nil lastConnected keeps
// the previous value.
func (s *sqlServerStore) UpdateServerStatus(ctx context.Context, id int64, status string, lastConnected *time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	var connected any
	if lastConnected != nil {
		connected = lastConnected.UTC().Format(time.RFC3339Nano)
	}
	result, err := s.db.ExecContext(ctx, s.dialect.rebind(`UPDATE {table}
SET status = ?, last_connected = COALESCE(?, last_connected), updated_at = ?
WHERE id = ?`), status, connected, s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("tool: %s update status for server %d: %w", s.dialect.name, id, err)
	}
	return requireAffected(result, id)
}

// UpdateServerTools replaces the cached tool list and capabilities.
func (s *sqlServerStore) UpdateServerTools(ctx context.Context, id int64, tools []ToolDescriptor, capabilities []map[string]any) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	toolsJSON, err := encodeJSONColumn(tools)
	if err != nil {
		return fmt.Errorf("tool: encode tools: %w", err)
	}
	capsJSON, err := encodeJSONColumn(capabilities)
	if err != nil {
		return fmt.Errorf("tool: encode capabilities: %w", err)
	}
	result, err := s.db.ExecContext(ctx, s.dialect.rebind(`UPDATE {table}
SET tools = ?, capabilities = ?, updated_at = ?
WHERE id = ?`), toolsJSON, capsJSON, s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("tool: %s update tools for server %d: %w", s.dialect.name, id, err)
	}
	return requireAffected(result, id)
}

func requireAffected(result sql.Result, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return nil
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", ErrServerNotFound, id)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *sqlServerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
