package tool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const fileStoreVersionV1 = "1"

var errEmptyStorePath = errors.New("tool: file store path is empty")

type fileStoreDocument struct {
	Version string         `yaml:"version"`
	Servers []ServerConfig `yaml:"servers"`
}

// FileStore persists server definitions in a local YAML file. The file is
// meant to be hand-edited, so reads always go to disk.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileStore creates a file-backed server store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// GetActiveServers returns active servers in scope ordered by id.
func (s *FileStore) GetActiveServers(ctx context.Context, scope string) ([]ServerConfig, error) {
	servers, err := s.ListServers(ctx)
	if err != nil {
		return nil, err
	}
	out := servers[:0]
	for _, server := range servers {
		if server.Active && InScope(server, scope) {
			out = append(out, server)
		}
	}
	return out, nil
}

// ListServers returns every server ordered by id.
func (s *FileStore) ListServers(ctx context.Context) ([]ServerConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.New("tool: file store is nil")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load()
}

// UpsertServer inserts or replaces a server definition.
func (s *FileStore) UpsertServer(ctx context.Context, server ServerConfig) (ServerConfig, error) {
	if err := validateServer(server); err != nil {
		return ServerConfig{}, err
	}
	var stored ServerConfig
	err := s.mutate(ctx, func(servers []ServerConfig) ([]ServerConfig, error) {
		stored = CloneServer(server)
		stored.Protocol = ParseProtocolType(string(stored.Protocol))
		if stored.ID == 0 {
			stored.ID = nextServerID(servers)
		}
		for i := range servers {
			if servers[i].ID == stored.ID {
				servers[i] = stored
				return servers, nil
			}
		}
		return append(servers, stored), nil
	})
	if err != nil {
		return ServerConfig{}, err
	}
	return stored, nil
}

// DeleteServer removes a server. Deleting a missing id is a no-op.
func (s *FileStore) DeleteServer(ctx context.Context, id int64) error {
	return s.mutate(ctx, func(servers []ServerConfig) ([]ServerConfig, error) {
		filtered := make([]ServerConfig, 0, len(servers))
		for _, server := range servers {
			if server.ID != id {
				filtered = append(filtered, server)
			}
		}
		return filtered, nil
	})
}

// UpdateServerStatus records a connection status.
func (s *FileStore) UpdateServerStatus(ctx context.Context, id int64, status string, lastConnected *time.Time) error {
	return s.mutate(ctx, func(servers []ServerConfig) ([]ServerConfig, error) {
		for i := range servers {
			if servers[i].ID != id {
				continue
			}
			servers[i].Status = status
			if lastConnected != nil {
				servers[i].LastConnected = lastConnected.UTC()
			}
			return servers, nil
		}
		return nil, fmt.Errorf("%w: %d", ErrServerNotFound, id)
	})
}

// UpdateServerTools replaces the cached tool list and capabilities.
func (s *FileStore) UpdateServerTools(ctx context.Context, id int64, tools []ToolDescriptor, capabilities []map[string]any) error {
	return s.mutate(ctx, func(servers []ServerConfig) ([]ServerConfig, error) {
		for i := range servers {
			if servers[i].ID != id {
				continue
			}
			servers[i].Tools = cloneDescriptors(tools)
			servers[i].Capabilities = cloneCapabilities(capabilities)
			return servers, nil
		}
		return nil, fmt.Errorf("%w: %d", ErrServerNotFound, id)
	})
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) mutate(ctx context.Context, fn func([]ServerConfig) ([]ServerConfig, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil {
		return errors.New("tool: file store is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	servers, err := s.load()
	if err != nil {
		return err
	}
	updated, err := fn(servers)
	if err != nil {
		return err
	}
	return s.save(updated)
}

func (s *FileStore) load() ([]ServerConfig, error) {
	if strings.TrimSpace(s.path) == "" {
		return nil, errEmptyStorePath
	}

	// #nosec G304 -- path is configured by caller and constrained to local filesystem usage.
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []ServerConfig{}, nil
		}
		return nil, fmt.Errorf("tool: read servers: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []ServerConfig{}, nil
	}

	var doc fileStoreDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("tool: decode servers: %w", err)
	}
	servers := doc.Servers
	if servers == nil {
		servers = []ServerConfig{}
	}
	if err := assignFileServerIDs(servers); err != nil {
		return nil, err
	}
	for i := range servers {
		servers[i].Protocol = ParseProtocolType(string(servers[i].Protocol))
	}
	sortServers(servers)
	return servers, nil
}

// assignFileServerIDs numbers entries written without an id in file order,
// after the highest explicit id. The ids are persisted by the next save.
func assignFileServerIDs(servers []ServerConfig) error {
	seen := make(map[int64]struct{}, len(servers))
	for _, server := range servers {
		if server.ID <= 0 {
			continue
		}
		if _, dup := seen[server.ID]; dup {
			return fmt.Errorf("tool: decode servers: duplicate server id %d", server.ID)
		}
		seen[server.ID] = struct{}{}
	}
	next := nextServerID(servers)
	for i := range servers {
		if servers[i].ID <= 0 {
			servers[i].ID = next
			next++
		}
	}
	return nil
}

func (s *FileStore) save(servers []ServerConfig) error {
	if strings.TrimSpace(s.path) == "" {
		return errEmptyStorePath
	}

	sortServers(servers)
	doc := fileStoreDocument{
		Version: fileStoreVersionV1,
		Servers: servers,
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("tool: encode servers: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("tool: create store dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("tool: write temp store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("tool: replace store file: %w", err)
	}
	return nil
}

var _ ServerRepository = (*FileStore)(nil)
