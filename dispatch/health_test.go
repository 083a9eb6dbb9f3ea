package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tool"
	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tooltest"
)

func TestHealthCheckAllCoversHandWrittenServersWithoutIDs(t *testing.T) {
	lookup := tooltest.NewBackend(t, tooltest.Tool{Name: "lookup"})
	search := tooltest.NewBackend(t, tooltest.Tool{Name: "search"})
	search.SetHealthy(false)

	path := filepath.Join(t.TempDir(), "servers.yaml")
	doc := fmt.Sprintf(`version: "1"
servers:
  - name: lookup
    base_url: %s
    protocol_type: http
    active: true
  - name: search
    base_url: %s
    protocol_type: http
    active: true
`, lookup.URL(), search.URL())
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	d := newTestDispatcher(t, tool.NewFileStore(path), nil)
	report := mustInitialize(t, d)
	if report.Registered != 2 {
		t.Fatalf("registered = %d, want 2 tools", report.Registered)
	}

	health := d.HealthCheckAll(context.Background())
	if len(health) != 2 {
		t.Fatalf("HealthCheckAll() checked %d servers, want 2: %+v", len(health), health)
	}
	byName := map[string]tool.HealthStatus{}
	for id, status := range health {
		if id <= 0 {
			t.Fatalf("health keyed by id %d, want assigned ids", id)
		}
		byName[status.Name] = status
	}
	if !byName["lookup"].Healthy || byName["search"].Healthy {
		t.Fatalf("health = %+v, want lookup healthy and search down", byName)
	}

	cached, err := d.HealthSnapshot(context.Background())
	if err != nil || len(cached) != 2 {
		t.Fatalf("HealthSnapshot() = %+v, %v", cached, err)
	}
}
