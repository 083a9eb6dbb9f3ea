package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tool"
	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tooltest"
)

type countingChecker struct {
	mu    sync.Mutex
	calls int
}

func (c *countingChecker) HealthCheckAll(context.Context) map[int64]tool.HealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return map[int64]tool.HealthStatus{1: {ServerID: 1, Healthy: true}, 2: {ServerID: 2}}
}

func TestNewHealthSchedulerValidatesConfig(t *testing.T) {
	if _, err := NewHealthScheduler(HealthSchedulerConfig{}); err == nil {
		t.Fatal("NewHealthScheduler() error = nil, want missing checker error")
	}
	if _, err := NewHealthScheduler(HealthSchedulerConfig{Checker: &countingChecker{}, Schedule: "every so often"}); err == nil {
		t.Fatal("NewHealthScheduler() error = nil, want invalid schedule error")
	}
	for _, schedule := range []string{"", "@every 10s", "*/5 * * * *", "@hourly"} {
		if _, err := NewHealthScheduler(HealthSchedulerConfig{Checker: &countingChecker{}, Schedule: schedule}); err != nil {
			t.Fatalf("NewHealthScheduler(%q) error = %v", schedule, err)
		}
	}
}

func TestHealthSchedulerRunOnceReportsResults(t *testing.T) {
	checker := &countingChecker{}
	var reported map[int64]tool.HealthStatus
	scheduler, err := NewHealthScheduler(HealthSchedulerConfig{
		Checker:  checker,
		Logger:   quietLogger(),
		OnResult: func(results map[int64]tool.HealthStatus) { reported = results },
	})
	if err != nil {
		t.Fatalf("NewHealthScheduler() error = %v", err)
	}

	results := scheduler.RunOnce(context.Background())
	if len(results) != 2 || len(reported) != 2 || checker.calls != 1 {
		t.Fatalf("results = %+v reported = %+v calls = %d", results, reported, checker.calls)
	}
}

func TestHealthSchedulerStartStopIsIdempotent(t *testing.T) {
	scheduler, err := NewHealthScheduler(HealthSchedulerConfig{Checker: &countingChecker{}, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewHealthScheduler() error = %v", err)
	}
	ctx := context.Background()
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := scheduler.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := scheduler.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	var nilScheduler *HealthScheduler
	if err := nilScheduler.Stop(stopCtx); err != nil {
		t.Fatalf("nil Stop() error = %v", err)
	}
}

func TestHealthSchedulerDrivesDispatcher(t *testing.T) {
	backend := tooltest.NewBackend(t, tooltest.Tool{Name: "lookup"})
	d := newTestDispatcher(t, tool.NewMemoryStore(backend.Server(1, "alpha", tool.ProtocolHTTP)), nil)
	mustInitialize(t, d)

	scheduler, err := NewHealthScheduler(HealthSchedulerConfig{Checker: d, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewHealthScheduler() error = %v", err)
	}
	if status := scheduler.RunOnce(context.Background())[1]; !status.Healthy {
		t.Fatalf("status = %+v, want healthy", status)
	}
}
