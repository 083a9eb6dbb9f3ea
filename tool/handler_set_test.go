package tool

import (
	"context"
	"errors"
	"testing"
)

func TestDefaultHandlerSetResolvesProtocols(t *testing.T) {
	set := DefaultHandlerSet(HandlerOptions{})
	tests := map[ProtocolType]ProtocolType{
		"":          ProtocolHTTP,
		"http_post": ProtocolHTTP,
		"sse":       ProtocolSSEPoll,
		"websocket": ProtocolWebSocket,
		"stdio":     ProtocolStdio,
	}
	for input, want := range tests {
		handler, err := set.Resolve(input)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", input, err)
		}
		if handler.Protocol() != want {
			t.Fatalf("Resolve(%q).Protocol() = %q, want %q", input, handler.Protocol(), want)
		}
	}
	if got := len(set.Protocols()); got != 4 {
		t.Fatalf("protocols = %d, want 4", got)
	}
}

func TestHandlerSetUnknownProtocolIsConfigurationError(t *testing.T) {
	_, err := DefaultHandlerSet(HandlerOptions{}).Resolve("grpc")
	if !IsConfigurationError(err) {
		t.Fatalf("error = %v, want configuration error", err)
	}
}

func TestReservedHandlerFailsClosed(t *testing.T) {
	handler := NewReservedHandler(ProtocolWebSocket)
	ctx := context.Background()
	server := ServerConfig{ID: 4, Name: "ws"}

	if _, err := handler.ExecuteTool(ctx, server, ExecuteRequest{ToolName: "x"}); ErrorCode(err) != ErrorCodeUnsupportedProtocol || !errors.Is(err, ErrUnsupportedProtocol) {
		t.Fatalf("ExecuteTool() error = %v", err)
	}
	if _, err := handler.GetResult(ctx, server, "j"); ErrorCode(err) != ErrorCodeUnsupportedProtocol {
		t.Fatalf("GetResult() error = %v", err)
	}
	if discovery := handler.DiscoverTools(ctx, server); len(discovery.Tools) != 0 {
		t.Fatalf("DiscoverTools() = %+v", discovery)
	}
	status := handler.HealthCheck(ctx, server)
	if status.Healthy || status.Error != "unsupported protocol" || status.ServerID != 4 {
		t.Fatalf("HealthCheck() = %+v", status)
	}
}
