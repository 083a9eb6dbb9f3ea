package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tool"
)

// DefaultHealthSchedule runs health checks every thirty seconds.
const DefaultHealthSchedule = "@every 30s"

var healthCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// HealthChecker is the dispatcher surface the scheduler drives.
type HealthChecker interface {
	HealthCheckAll(ctx context.Context) map[int64]tool.HealthStatus
}

// HealthSchedulerConfig controls background health checks.
type HealthSchedulerConfig struct {
	Checker HealthChecker
	// Schedule is a five-field cron expression or descriptor such as
	// "@every 30s". Defaults to DefaultHealthSchedule.
	Schedule string
	Logger   *slog.Logger
	OnResult func(map[int64]tool.HealthStatus)
}

// HealthScheduler runs HealthCheckAll on a cron schedule. Runs never overlap.
type HealthScheduler struct {
	checker  HealthChecker
	schedule cron.Schedule
	expr     string
	logger   *slog.Logger
	onResult func(map[int64]tool.HealthStatus)

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewHealthScheduler validates the schedule and builds a stopped scheduler.
func NewHealthScheduler(cfg HealthSchedulerConfig) (*HealthScheduler, error) {
	if cfg.Checker == nil {
		return nil, errors.New("dispatch: health scheduler checker is nil")
	}
	expr := strings.TrimSpace(cfg.Schedule)
	if expr == "" {
		expr = DefaultHealthSchedule
	}
	schedule, err := healthCronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("dispatch: invalid health schedule %q: %w", expr, err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OnResult == nil {
		cfg.OnResult = func(map[int64]tool.HealthStatus) {}
	}
	return &HealthScheduler{
		checker:  cfg.Checker,
		schedule: schedule,
		expr:     expr,
		logger:   cfg.Logger,
		onResult: cfg.OnResult,
	}, nil
}

// Start begins scheduled execution. Calling Start twice is a no-op.
func (s *HealthScheduler) Start(ctx context.Context) error {
	if s == nil {
		return errors.New("dispatch: health scheduler is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(s.schedule, cron.FuncJob(func() { s.RunOnce(runCtx) }))
	c.Start()

	s.cron = c
	s.cancel = cancel
	s.logger.Info("health scheduler started", "schedule", s.expr)
	return nil
}

// Stop halts the schedule and waits for a running check to finish or ctx to
// end.
func (s *HealthScheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	c := s.cron
	cancel := s.cancel
	s.cron = nil
	s.cancel = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	cancel()
	done := c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one health pass and reports it.
func (s *HealthScheduler) RunOnce(ctx context.Context) map[int64]tool.HealthStatus {
	results := s.checker.HealthCheckAll(ctx)
	healthy := 0
	for _, status := range results {
		if status.Healthy {
			healthy++
		}
	}
	s.logger.Debug("health pass finished", "servers", len(results), "healthy", healthy)
	s.onResult(results)
	return results
}
