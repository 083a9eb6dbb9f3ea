package dispatch

import (
	"time"

	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tool"
)

// Entry binds one registered display name to the server and handler that
// own the tool.
type Entry struct {
	Name     string
	Server   tool.ServerConfig
	Tool     tool.ToolDescriptor
	Handler  tool.Handler
	Selector *tool.ResultSelector
}

// Resolution records a display name that differs from the tool's local name.
type Resolution struct {
	Original string `json:"original"`
	Resolved string `json:"resolved"`
	Server   string `json:"server"`
	ServerID int64  `json:"server_id"`
}

// Registry is an immutable snapshot of registered tools. It is safe for
// concurrent use without locking.
type Registry struct {
	entries map[string]Entry
	order   []string
	builtAt time.Time
}

func emptyRegistry() *Registry {
	return &Registry{entries: map[string]Entry{}}
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	entry, ok := r.entries[name]
	return entry, ok
}

// Names returns display names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.order...)
}

// Entries returns entries in registration order.
func (r *Registry) Entries() []Entry {
	if r == nil {
		return nil
	}
	out := make([]Entry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// BuiltAt returns when the snapshot was published.
func (r *Registry) BuiltAt() time.Time {
	if r == nil {
		return time.Time{}
	}
	return r.builtAt
}

// Servers returns each distinct server referenced by the registry, in
// first-registration order.
func (r *Registry) Servers() []Entry {
	if r == nil {
		return nil
	}
	seen := make(map[int64]struct{})
	var out []Entry
	for _, name := range r.order {
		entry := r.entries[name]
		if _, ok := seen[entry.Server.ID]; ok {
			continue
		}
		seen[entry.Server.ID] = struct{}{}
		out = append(out, entry)
	}
	return out
}

// registryBuilder accumulates entries for a new snapshot.
type registryBuilder struct {
	reg   *Registry
	taken map[string]struct{}
}

func newRegistryBuilder() *registryBuilder {
	return &registryBuilder{reg: emptyRegistry(), taken: map[string]struct{}{}}
}

// add registers desc and returns the display name it received.
func (b *registryBuilder) add(server tool.ServerConfig, desc tool.ToolDescriptor, handler tool.Handler, selector *tool.ResultSelector) string {
	name := ResolveName(desc.Name, server.DisplayName(), b.taken)
	b.taken[name] = struct{}{}
	b.reg.entries[name] = Entry{
		Name:     name,
		Server:   server,
		Tool:     desc,
		Handler:  handler,
		Selector: selector,
	}
	b.reg.order = append(b.reg.order, name)
	return name
}

func (b *registryBuilder) build(now time.Time) *Registry {
	b.reg.builtAt = now
	return b.reg
}
