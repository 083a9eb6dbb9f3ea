package tool

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps server definitions in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	servers []ServerConfig
}

// NewMemoryStore returns a store seeded with servers. Servers without an ID
// are assigned one.
func NewMemoryStore(servers ...ServerConfig) *MemoryStore {
	store := &MemoryStore{}
	for _, server := range servers {
		stored := CloneServer(server)
		if stored.ID == 0 {
			stored.ID = nextServerID(store.servers)
		}
		store.servers = append(store.servers, stored)
	}
	sortServers(store.servers)
	return store
}

func (s *MemoryStore) GetActiveServers(ctx context.Context, scope string) ([]ServerConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ServerConfig
	for _, server := range s.servers {
		if server.Active && InScope(server, scope) {
			out = append(out, CloneServer(server))
		}
	}
	return out, nil
}

func (s *MemoryStore) ListServers(ctx context.Context) ([]ServerConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ServerConfig, len(s.servers))
	for i, server := range s.servers {
		out[i] = CloneServer(server)
	}
	return out, nil
}

// Server returns a copy of one stored server.
func (s *MemoryStore) Server(id int64) (ServerConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, server := range s.servers {
		if server.ID == id {
			return CloneServer(server), true
		}
	}
	return ServerConfig{}, false
}

func (s *MemoryStore) UpsertServer(ctx context.Context, server ServerConfig) (ServerConfig, error) {
	if err := ctx.Err(); err != nil {
		return ServerConfig{}, err
	}
	if err := validateServer(server); err != nil {
		return ServerConfig{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := CloneServer(server)
	if stored.ID == 0 {
		stored.ID = nextServerID(s.servers)
	}
	for i := range s.servers {
		if s.servers[i].ID == stored.ID {
			s.servers[i] = stored
			return CloneServer(stored), nil
		}
	}
	s.servers = append(s.servers, stored)
	sortServers(s.servers)
	return CloneServer(stored), nil
}

func (s *MemoryStore) DeleteServer(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := s.servers[:0]
	for _, server := range s.servers {
		if server.ID != id {
			filtered = append(filtered, server)
		}
	}
	s.servers = filtered
	return nil
}

func (s *MemoryStore) UpdateServerStatus(ctx context.Context, id int64, status string, lastConnected *time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.servers {
		if s.servers[i].ID != id {
			continue
		}
		s.servers[i].Status = status
		if lastConnected != nil {
			s.servers[i].LastConnected = lastConnected.UTC()
		}
		return nil
	}
	return fmt.Errorf("%w: %d", ErrServerNotFound, id)
}

func (s *MemoryStore) UpdateServerTools(ctx context.Context, id int64, tools []ToolDescriptor, capabilities []map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.servers {
		if s.servers[i].ID != id {
			continue
		}
		s.servers[i].Tools = cloneDescriptors(tools)
		s.servers[i].Capabilities = cloneCapabilities(capabilities)
		return nil
	}
	return fmt.Errorf("%w: %d", ErrServerNotFound, id)
}

func (s *MemoryStore) Close() error { return nil }

var _ ServerRepository = (*MemoryStore)(nil)
