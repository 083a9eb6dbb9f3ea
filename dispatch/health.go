package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tool"
)

// HealthCheckAll probes every distinct server referenced by the registry
// concurrently. It never fails: unreachable servers are reported unhealthy
// with error detail. Results are written to the health cache.
func (d *Dispatcher) HealthCheckAll(ctx context.Context) map[int64]tool.HealthStatus {
	servers := d.registry.Load().Servers()
	results := make(map[int64]tool.HealthStatus, len(servers))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, entry := range servers {
		wg.Add(1)
		go func(entry Entry) {
			defer wg.Done()
			status := d.checkServer(ctx, entry)
			if err := d.health.Put(ctx, status); err != nil {
				d.logger.Warn("store health status failed",
					"server", entry.Server.DisplayName(),
					"server_id", entry.Server.ID,
					"error", err,
				)
			}
			mu.Lock()
			results[entry.Server.ID] = status
			mu.Unlock()
		}(entry)
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) checkServer(ctx context.Context, entry Entry) (status tool.HealthStatus) {
	start := d.now()
	defer func() {
		if recovered := recover(); recovered != nil {
			status = tool.HealthStatus{
				ServerID:  entry.Server.ID,
				Name:      entry.Server.DisplayName(),
				Protocol:  entry.Server.Protocol,
				CheckedAt: start.UTC(),
				Error:     fmt.Sprintf("health check panicked: %v", recovered),
			}
		}
		if !status.Healthy {
			d.logger.Warn("server unhealthy",
				"server", entry.Server.DisplayName(),
				"server_id", entry.Server.ID,
				"protocol", string(entry.Server.Protocol),
				"error", status.Error,
			)
		}
	}()

	status = entry.Handler.HealthCheck(ctx, entry.Server)
	status.ServerID = entry.Server.ID
	if status.Name == "" {
		status.Name = entry.Server.DisplayName()
	}
	if status.CheckedAt.IsZero() {
		status.CheckedAt = start.UTC()
	}
	return status
}

// HealthSnapshot returns the cached health of every server, as last written
// by HealthCheckAll here or in another process sharing the cache.
func (d *Dispatcher) HealthSnapshot(ctx context.Context) (map[int64]tool.HealthStatus, error) {
	return d.health.All(ctx)
}

