package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/samerGMTM22/RealTime-Agent-LiveKit/bridge"
	"github.com/samerGMTM22/RealTime-Agent-LiveKit/dispatch"
	toolotel "github.com/samerGMTM22/RealTime-Agent-LiveKit/otel"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose registered tools to an agent over MCP stdio",
		Long: "serve discovers tools, publishes them as MCP tools on stdin/stdout, " +
			"runs background health checks and reloads the registry when the server file changes.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, version)
		},
	}
	cmd.Flags().String("metrics-addr", "", "Listen address for /metrics (overrides telemetry.metrics_addr)")
	cmd.Flags().Bool("no-watch", false, "Do not reload when the server file changes")
	return cmd
}

func runServe(cmd *cobra.Command, version string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	telemetry, err := toolotel.Setup(ctx, toolotel.Config{
		ServiceName:    e.cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   e.cfg.Telemetry.OTLPEndpoint,
		Insecure:       e.cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return exitError(exitRuntime, "initializing telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	metricsAddr := e.cfg.Telemetry.MetricsAddr
	if cmd.Flags().Changed("metrics-addr") {
		metricsAddr, _ = cmd.Flags().GetString("metrics-addr")
	}
	if strings.TrimSpace(metricsAddr) != "" {
		stopMetrics, err := serveMetrics(ctx, e, metricsAddr, telemetry.MetricsHandler())
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	d, err := e.newDispatcher(telemetry.Observer)
	if err != nil {
		return err
	}
	defer d.Close(context.Background())

	if _, err := e.initialize(cmd, d); err != nil {
		return err
	}

	b := bridge.New(d, e.logger)
	mcpServer := bridge.NewMCPServer(b, bridge.MCPServerConfig{Name: "toolctl", Version: version})

	if e.cfg.Health.Enabled {
		scheduler, err := dispatch.NewHealthScheduler(dispatch.HealthSchedulerConfig{
			Checker:  d,
			Schedule: e.cfg.Health.Schedule,
			Logger:   e.logger,
		})
		if err != nil {
			return exitError(exitValidation, "health schedule: %v", err)
		}
		if err := scheduler.Start(ctx); err != nil {
			return exitError(exitRuntime, "starting health scheduler: %v", err)
		}
		defer func() {
			_ = scheduler.Stop(context.Background())
		}()
	}

	noWatch, _ := cmd.Flags().GetBool("no-watch")
	if e.serverFile != "" && e.cfg.Dispatch.Watch && !noWatch {
		watcher, err := dispatch.WatchFile(ctx, dispatch.WatchConfig{
			Path:   e.serverFile,
			Logger: e.logger,
			Reload: func(ctx context.Context) error {
				report, err := d.InitializeTools(ctx, e.cfg.Dispatch.Scope)
				if err != nil {
					return err
				}
				if report.StoreError != nil {
					return report.StoreError
				}
				bridge.SyncMCPTools(mcpServer, b)
				return nil
			},
		})
		if err != nil {
			return exitError(exitRuntime, "watching %s: %v", e.serverFile, err)
		}
		defer watcher.Close()
	}

	e.logger.Info("serving tools over MCP stdio",
		"tools", d.Registry().Len(),
		"scope", e.cfg.Dispatch.Scope,
		"store", e.cfg.Store.Driver,
	)
	stdio := server.NewStdioServer(mcpServer)
	if err := stdio.Listen(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil && !errors.Is(err, context.Canceled) {
		return exitError(exitRuntime, "mcp server: %v", err)
	}
	return nil
}

// serveMetrics exposes the Prometheus handler until the returned func runs.
func serveMetrics(ctx context.Context, e *env, addr string, handler http.Handler) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, exitError(exitRuntime, "listening on %s: %v", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintln(w, "ok")
	})
	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	e.logger.Info("metrics listening", "addr", listener.Addr().String())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}, nil
}
