package dispatch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 250 * time.Millisecond

// WatchConfig configures a server-file watcher.
type WatchConfig struct {
	// Path is the server definition file, typically a tool.FileStore path.
	Path string
	// Reload runs after the file settles; usually InitializeTools.
	Reload   func(ctx context.Context) error
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher re-runs Reload whenever the server definition file changes. Status
// write-backs made by Reload itself do not trigger another run.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	reload    func(ctx context.Context) error
	debounce  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	pending *time.Timer

	runMu  sync.Mutex
	digest []byte

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WatchFile starts watching cfg.Path until ctx ends or Close is called. The
// parent directory is watched so editors that replace the file on save are
// still seen.
func WatchFile(ctx context.Context, cfg WatchConfig) (*Watcher, error) {
	if cfg.Reload == nil {
		return nil, errors.New("dispatch: watch reload func is nil")
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("dispatch: resolve watch path %q: %w", cfg.Path, err)
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("dispatch: create file watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("dispatch: watch %s: %w", filepath.Dir(abs), err)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultWatchDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	runCtx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		fsWatcher: fsWatcher,
		path:      abs,
		reload:    cfg.Reload,
		debounce:  cfg.Debounce,
		logger:    cfg.Logger,
		cancel:    cancel,
		digest:    fileDigest(abs),
	}
	w.wg.Add(1)
	go w.loop(runCtx)
	w.logger.Debug("watching server file", "path", abs)
	return w, nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.schedule(ctx)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("server file watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, func() { w.run(ctx) })
}

func (w *Watcher) run(ctx context.Context) {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	if current := fileDigest(w.path); current != nil && bytes.Equal(current, w.digest) {
		return
	}
	w.logger.Info("server file changed; reloading tools", "path", w.path)
	if err := w.reload(ctx); err != nil {
		w.logger.Error("reload after server file change failed", "path", w.path, "error", err)
	}
	w.digest = fileDigest(w.path)
}

// fileDigest returns nil when the file cannot be read.
func fileDigest(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	sum := sha256.Sum256(data)
	return sum[:]
}

// Close stops watching.
func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}
	w.cancel()
	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}
