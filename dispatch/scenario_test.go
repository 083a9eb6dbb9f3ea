package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tool"
	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tooltest"
)

// Two servers both expose "search"; the second one is asynchronous and
// answers on its third poll.
func TestScenarioCollidingToolsWithAsyncBackend(t *testing.T) {
	alpha := tooltest.NewBackend(t, tooltest.Tool{Name: "search", Result: "alpha says hi"})
	beta := tooltest.NewBackend(t, tooltest.Tool{
		Name:  "search",
		Async: true,
		JobID: "j1",
		Steps: []tooltest.Step{
			{Status: "processing"},
			{Status: "processing"},
			{Status: "completed", Data: "RESULT-XYZ"},
		},
	})
	store := tool.NewMemoryStore(
		alpha.Server(1, "Alpha", tool.ProtocolHTTP),
		pollServer(beta, 2, "Beta", 50*time.Millisecond),
	)
	d := newTestDispatcher(t, store, nil)

	mustInitialize(t, d)
	names := d.Registry().Names()
	if len(names) != 2 || names[0] != "search" || names[1] != "beta_search" {
		t.Fatalf("Names() = %v", names)
	}

	start := time.Now()
	result, err := d.ExecuteTool(context.Background(), "beta_search", map[string]any{"query": "x"}, 2*time.Second)
	if err != nil {
		t.Fatalf("ExecuteTool() error = %v", err)
	}
	if result.Data != "RESULT-XYZ" || result.Polls != 3 {
		t.Fatalf("result = %+v", result)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Fatalf("elapsed = %v, want at least three poll intervals", elapsed)
	}
	requests := beta.Requests()
	if len(requests) != 1 || requests[0].ToolName != "search" || requests[0].Params["query"] != "x" {
		t.Fatalf("beta requests = %+v", requests)
	}

	direct, err := d.ExecuteTool(context.Background(), "search", nil, time.Second)
	if err != nil || direct.Data != "alpha says hi" {
		t.Fatalf("ExecuteTool(search) = %+v, %v", direct, err)
	}
}
