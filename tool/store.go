package tool

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
)

// ErrServerNotFound is returned by stores when a server id does not exist.
var ErrServerNotFound = errors.New("tool: server not found")

// ServerStore is the configuration store contract the dispatcher consumes.
type ServerStore interface {
	GetActiveServers(ctx context.Context, scope string) ([]ServerConfig, error)
	UpdateServerStatus(ctx context.Context, id int64, status string, lastConnected *time.Time) error
	UpdateServerTools(ctx context.Context, id int64, tools []ToolDescriptor, capabilities []map[string]any) error
}

// ServerAdmin manages server definitions from the CLI.
type ServerAdmin interface {
	// UpsertServer inserts the server when ID is zero, otherwise replaces it.
	// The stored configuration is returned with its assigned ID.
	UpsertServer(ctx context.Context, server ServerConfig) (ServerConfig, error)
	ListServers(ctx context.Context) ([]ServerConfig, error)
	DeleteServer(ctx context.Context, id int64) error
}

// ServerRepository is a store that supports both dispatch and administration.
type ServerRepository interface {
	ServerStore
	ServerAdmin
	Close() error
}

// InScope reports whether a server belongs to scope. An empty scope selects
// every server; servers without a scope are shared by all scopes.
func InScope(server ServerConfig, scope string) bool {
	clean := strings.TrimSpace(scope)
	if clean == "" {
		return true
	}
	owner := strings.TrimSpace(server.Scope)
	return owner == "" || owner == clean
}

func validateServer(server ServerConfig) error {
	if strings.TrimSpace(server.Name) == "" {
		return NewError(ErrorCodeInvalidRequest, "server name is required", false, nil)
	}
	if strings.TrimSpace(server.BaseURL) == "" {
		return NewError(ErrorCodeInvalidRequest, "server base_url is required", false, nil)
	}
	return nil
}

func sortServers(servers []ServerConfig) {
	slices.SortFunc(servers, func(a, b ServerConfig) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
}

func nextServerID(servers []ServerConfig) int64 {
	var highest int64
	for _, server := range servers {
		if server.ID > highest {
			highest = server.ID
		}
	}
	return highest + 1
}
