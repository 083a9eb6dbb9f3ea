package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/samerGMTM22/RealTime-Agent-LiveKit/config"
	"github.com/samerGMTM22/RealTime-Agent-LiveKit/dispatch"
	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tool"
)

const defaultServerFile = "servers.yaml"

// env holds what every command needs: settings, a logger and the opened
// server store.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	store  tool.ServerRepository
	health tool.HealthCache
	// serverFile is set when servers live in a YAML file.
	serverFile string

	closers []func() error
}

func openEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd, cfg)

	store, err := openStore(cmd, cfg)
	if err != nil {
		return nil, exitError(exitRuntime, "opening %s store: %v", cfg.Store.Driver, err)
	}
	e := &env{cfg: cfg, logger: logger, store: store}
	e.closers = append(e.closers, store.Close)
	if fileStore, ok := store.(*tool.FileStore); ok {
		e.serverFile = fileStore.Path()
	}

	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		cache, err := tool.NewRedisHealthCache(tool.RedisHealthCacheConfig{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			_ = e.Close()
			return nil, exitError(exitValidation, "redis health cache: %v", err)
		}
		e.health = cache
		e.closers = append(e.closers, cache.Close)
	}
	return e, nil
}

// Close releases everything openEnv acquired.
func (e *env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	return errors.Join(errs...)
}

func loadSettings(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, exitError(exitValidation, "%v", err)
	}

	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store.Driver, _ = flags.GetString("store")
		cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	}
	if flags.Changed("store-dsn") {
		cfg.Store.DSN, _ = flags.GetString("store-dsn")
	}
	if flags.Changed("scope") {
		cfg.Dispatch.Scope, _ = flags.GetString("scope")
	}
	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
	}
	if quiet, _ := flags.GetBool("quiet"); quiet {
		cfg.Log.Level = "error"
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, exitError(exitValidation, "%v", err)
	}
	return cfg, nil
}

// newLogger writes to stderr so stdout stays free for command output and the
// MCP stdio transport.
func newLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(cfg.Log.Level)) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), opts))
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), opts))
}

func openStore(cmd *cobra.Command, cfg config.Config) (tool.ServerRepository, error) {
	dsn := strings.TrimSpace(cfg.Store.DSN)
	switch cfg.Store.Driver {
	case "sqlite":
		if dsn == "" {
			return tool.NewDefaultSQLiteStore()
		}
		if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
			dsn = filepath.Clean(dsn)
		}
		return tool.NewSQLiteStore(tool.SQLiteStoreConfig{DSN: dsn})
	case "postgres":
		return tool.NewPostgresStore(cmd.Context(), tool.PostgresStoreConfig{DSN: dsn, Table: cfg.Store.Table})
	case "file":
		if dsn == "" {
			path, err := defaultServerFilePath()
			if err != nil {
				return nil, err
			}
			dsn = path
		}
		return tool.NewFileStore(dsn), nil
	case "memory":
		return tool.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func defaultServerFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	return filepath.Join(home, ".toolctl", defaultServerFile), nil
}

func (e *env) newDispatcher(observer tool.Observer) (*dispatch.Dispatcher, error) {
	d, err := dispatch.New(dispatch.Config{
		Store:       e.store,
		Logger:      e.logger,
		Observer:    observer,
		HealthCache: e.health,
		Handlers: tool.DefaultHandlerSet(tool.HandlerOptions{
			HealthTimeout: e.cfg.Dispatch.HealthTimeout,
			Observer:      observer,
			Logger:        e.logger,
		}),
	})
	if err != nil {
		return nil, exitError(exitRuntime, "creating dispatcher: %v", err)
	}
	return d, nil
}

// initialize builds the registry and reports servers that were left out.
func (e *env) initialize(cmd *cobra.Command, d *dispatch.Dispatcher) (dispatch.InitReport, error) {
	report, err := d.InitializeTools(cmd.Context(), e.cfg.Dispatch.Scope)
	if err != nil {
		return report, exitError(exitRuntime, "initializing tools: %v", err)
	}
	if report.StoreError != nil {
		return report, exitError(exitRuntime, "loading servers: %v", report.StoreError)
	}
	for _, skipped := range report.Skipped {
		fmt.Fprintf(cmd.ErrOrStderr(), "Skipped server %s (id=%d): %s\n", skipped.Name, skipped.ID, skipped.Reason)
	}
	for _, name := range report.Unavailable {
		fmt.Fprintf(cmd.ErrOrStderr(), "Server %s offered no tools\n", name)
	}
	return report, nil
}
