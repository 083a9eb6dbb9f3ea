package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tool"
	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tooltest"
)

func TestWatchFileRequiresReload(t *testing.T) {
	if _, err := WatchFile(context.Background(), WatchConfig{Path: filepath.Join(t.TempDir(), "servers.yaml")}); err == nil {
		t.Fatal("WatchFile() error = nil, want error")
	}
}

func TestWatchFileReloadsRegistryOnChange(t *testing.T) {
	alpha := tooltest.NewBackend(t, tooltest.Tool{Name: "lookup"})
	beta := tooltest.NewBackend(t, tooltest.Tool{Name: "search"})

	path := filepath.Join(t.TempDir(), "servers.yaml")
	store := tool.NewFileStore(path)
	ctx := context.Background()
	if _, err := store.UpsertServer(ctx, alpha.Server(0, "alpha", tool.ProtocolHTTP)); err != nil {
		t.Fatalf("UpsertServer() error = %v", err)
	}
	d := newTestDispatcher(t, store, nil)
	mustInitialize(t, d)

	reloaded := make(chan struct{}, 4)
	watcher, err := WatchFile(ctx, WatchConfig{
		Path:     path,
		Debounce: 20 * time.Millisecond,
		Logger:   quietLogger(),
		Reload: func(ctx context.Context) error {
			_, err := d.InitializeTools(ctx, "")
			reloaded <- struct{}{}
			return err
		},
	})
	if err != nil {
		t.Fatalf("WatchFile() error = %v", err)
	}
	defer watcher.Close()

	if _, err := store.UpsertServer(ctx, beta.Server(0, "beta", tool.ProtocolHTTP)); err != nil {
		t.Fatalf("UpsertServer() error = %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-reloaded:
			if _, ok := d.Lookup("search"); ok {
				return
			}
		case <-deadline:
			t.Fatalf("registry not reloaded; names = %v", d.Registry().Names())
		}
	}
}

func TestWatchFileIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	reloaded := make(chan struct{}, 1)
	watcher, err := WatchFile(context.Background(), WatchConfig{
		Path:     filepath.Join(dir, "servers.yaml"),
		Debounce: 10 * time.Millisecond,
		Logger:   quietLogger(),
		Reload: func(context.Context) error {
			reloaded <- struct{}{}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("WatchFile() error = %v", err)
	}
	defer watcher.Close()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	select {
	case <-reloaded:
		t.Fatal("reload triggered by unrelated file")
	case <-time.After(150 * time.Millisecond):
	}
}
