package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tool"
	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tooltest"
)

// testStore points every command at an isolated YAML server file.
type testStore struct {
	t    *testing.T
	path string
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	return &testStore{t: t, path: filepath.Join(t.TempDir(), "servers.yaml")}
}

// run executes a fresh command tree and captures stdout/stderr.
func (s *testStore) run(args ...string) (stdout, stderr string, err error) {
	s.t.Helper()
	root := NewRootCmd("test")
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(append(args, "--store", "file", "--store-dsn", s.path, "--quiet"))
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

func (s *testStore) mustRun(args ...string) string {
	s.t.Helper()
	stdout, stderr, err := s.run(args...)
	if err != nil {
		s.t.Fatalf("%v: %v\nstderr: %s", args, err, stderr)
	}
	return stdout
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %v (%T), want *ExitError", err, err)
	}
	return exitErr.Code
}

func TestServersAddListRemove(t *testing.T) {
	store := newTestStore(t)

	out := store.mustRun("servers", "add", "search", "--url", "http://search.local/", "--credential", "sk-live-secret", "--server-scope", "agent-1")
	if !strings.Contains(out, "Added server search (id=1, protocol=http)") {
		t.Fatalf("add output = %q", out)
	}
	store.mustRun("servers", "add", "reports", "--url", "http://reports.local", "--protocol", "sse", "--poll-interval", "250ms")

	out = store.mustRun("servers", "list")
	for _, want := range []string{"ID", "search", "http://search.local", "reports", "sse-poll"} {
		if !strings.Contains(out, want) {
			t.Fatalf("list output missing %q:\n%s", want, out)
		}
	}

	out = store.mustRun("servers", "list", "--json")
	if strings.Contains(out, "sk-live-secret") {
		t.Fatalf("json list leaked credential:\n%s", out)
	}
	var servers []tool.ServerConfig
	if err := json.Unmarshal([]byte(out), &servers); err != nil {
		t.Fatalf("decode json list: %v\n%s", err, out)
	}
	if len(servers) != 2 || servers[0].Scope != "agent-1" || servers[1].PollInterval.Milliseconds() != 250 {
		t.Fatalf("servers = %+v", servers)
	}

	out = store.mustRun("servers", "remove", "1")
	if !strings.Contains(out, "Removed server 1") {
		t.Fatalf("remove output = %q", out)
	}
	if _, _, err := store.run("servers", "remove", "1"); exitCode(t, err) != exitNotFound {
		t.Fatalf("second remove exit code = %d, want %d", exitCode(t, err), exitNotFound)
	}
}

func TestServersAddValidation(t *testing.T) {
	store := newTestStore(t)

	if _, _, err := store.run("servers", "add", "search"); exitCode(t, err) != exitValidation {
		t.Fatalf("missing url exit code = %d", exitCode(t, err))
	}
	if _, _, err := store.run("servers", "add", "search", "--url", "http://x", "--selector", ".data["); exitCode(t, err) != exitValidation {
		t.Fatalf("bad selector exit code = %d", exitCode(t, err))
	}
	if _, _, err := store.run("servers", "remove", "abc"); exitCode(t, err) != exitValidation {
		t.Fatalf("bad id exit code = %d", exitCode(t, err))
	}
}

func TestServersImport(t *testing.T) {
	store := newTestStore(t)
	store.mustRun("servers", "add", "existing", "--url", "http://existing.local")

	source := filepath.Join(t.TempDir(), "import.yaml")
	content := `version: v1
servers:
  - id: 1
    name: weather
    base_url: http://weather.local
    protocol_type: sse-poll
    active: true
`
	if err := os.WriteFile(source, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	out := store.mustRun("servers", "import", source)
	if !strings.Contains(out, "Imported server weather (id=2)") {
		t.Fatalf("import output = %q", out)
	}

	if _, _, err := store.run("servers", "import", filepath.Join(t.TempDir(), "missing.yaml")); exitCode(t, err) != exitInputParse {
		t.Fatalf("missing import exit code = %d", exitCode(t, err))
	}
}

func TestToolsListAndCall(t *testing.T) {
	backend := tooltest.NewBackend(t,
		tooltest.Tool{
			Name:        "lookup",
			Description: "Look up a record",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"id": map[string]any{"type": "integer"}},
				"required":   []any{"id"},
			},
			Result: map[string]any{"answer": 42},
		},
		tooltest.Tool{
			Name:  "report",
			Async: true,
			Steps: []tooltest.Step{
				{Status: "processing"},
				{Status: "completed", Data: "quarterly report ready"},
			},
		},
	)
	store := newTestStore(t)
	store.mustRun("servers", "add", "records", "--url", backend.URL(), "--poll-interval", "10ms")

	out := store.mustRun("tools", "list")
	for _, want := range []string{"NAME", "lookup", "id*", "report", "records"} {
		if !strings.Contains(out, want) {
			t.Fatalf("tools list missing %q:\n%s", want, out)
		}
	}

	out = store.mustRun("tools", "call", "lookup", "--param", "id=7")
	if !strings.Contains(out, `"answer": 42`) {
		t.Fatalf("call output = %q", out)
	}
	requests := backend.Requests()
	if len(requests) != 1 || requests[0].Params["id"] != float64(7) {
		t.Fatalf("requests = %+v", requests)
	}

	out = store.mustRun("tools", "call", "report", "--timeout", "5s")
	if strings.TrimSpace(out) != `"quarterly report ready"` {
		t.Fatalf("async call output = %q", out)
	}
}

func TestToolsCallUnknownTool(t *testing.T) {
	backend := tooltest.NewBackend(t, tooltest.Tool{Name: "lookup", Result: "ok"})
	store := newTestStore(t)
	store.mustRun("servers", "add", "records", "--url", backend.URL())

	_, _, err := store.run("tools", "call", "missing")
	if code := exitCode(t, err); code != exitNotFound {
		t.Fatalf("exit code = %d, want %d", code, exitNotFound)
	}

	_, _, err = store.run("tools", "call", "lookup", "--params-json", "{not json")
	if code := exitCode(t, err); code != exitInputParse {
		t.Fatalf("bad params exit code = %d, want %d", code, exitInputParse)
	}
}

func TestToolsListReportsSkippedServers(t *testing.T) {
	backend := tooltest.NewBackend(t, tooltest.Tool{Name: "lookup", Result: "ok"})
	store := newTestStore(t)
	store.mustRun("servers", "add", "records", "--url", backend.URL())
	store.mustRun("servers", "add", "broken", "--url", "http://127.0.0.1:1")

	stdout, stderr, err := store.run("tools", "list")
	if err != nil {
		t.Fatalf("tools list: %v", err)
	}
	if !strings.Contains(stdout, "lookup") {
		t.Fatalf("stdout = %q", stdout)
	}
	if !strings.Contains(stderr, "Server broken offered no tools") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestHealthTable(t *testing.T) {
	healthy := tooltest.NewBackend(t, tooltest.Tool{Name: "lookup", Result: "ok"})
	sick := tooltest.NewBackend(t, tooltest.Tool{Name: "search", Result: "ok"})
	sick.SetHealthy(false)

	store := newTestStore(t)
	store.mustRun("servers", "add", "records", "--url", healthy.URL())
	store.mustRun("servers", "add", "search", "--url", sick.URL())

	out := store.mustRun("health", "--json")
	var statuses []tool.HealthStatus
	if err := json.Unmarshal([]byte(out), &statuses); err != nil {
		t.Fatalf("decode health: %v\n%s", err, out)
	}
	if len(statuses) != 2 {
		t.Fatalf("statuses = %+v", statuses)
	}
	if !statuses[0].Healthy || statuses[1].Healthy {
		t.Fatalf("healthy flags = %v, %v", statuses[0].Healthy, statuses[1].Healthy)
	}

	out = store.mustRun("health")
	if !strings.Contains(out, "SERVER_ID") || !strings.Contains(out, "records") {
		t.Fatalf("health table = %q", out)
	}
}

func TestToolExitError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{tool.NewError(tool.ErrorCodeNotFound, "missing", false, nil), exitNotFound},
		{tool.NewError(tool.ErrorCodeTimeout, "slow", true, nil), exitTimeout},
		{tool.NewError(tool.ErrorCodeInvalidRequest, "bad", false, nil), exitValidation},
		{tool.NewError(tool.ErrorCodeConfiguration, "bad", false, nil), exitValidation},
		{tool.NewError(tool.ErrorCodeExecutionFailure, "boom", false, nil), exitRuntime},
		{errors.New("plain"), exitRuntime},
	}
	for _, tc := range tests {
		if got := toolExitError("lookup", tc.err).Code; got != tc.want {
			t.Fatalf("toolExitError(%v).Code = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestParseScalar(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"false", false},
		{"42", int64(42)},
		{"2.5", 2.5},
		{"paris", "paris"},
		{"[1,2]", []any{float64(1), float64(2)}},
		{"{broken", "{broken"},
	}
	for _, tc := range tests {
		got := parseScalar(tc.in)
		gotJSON, _ := json.Marshal(got)
		wantJSON, _ := json.Marshal(tc.want)
		if string(gotJSON) != string(wantJSON) {
			t.Fatalf("parseScalar(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}
