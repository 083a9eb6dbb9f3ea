package tool

import (
	"context"
	"fmt"
	"time"
)

// ReservedHandler stands in for protocols that have no implementation yet.
// Every operation fails closed.
type ReservedHandler struct {
	protocol ProtocolType
}

// NewReservedHandler creates a fail-closed handler for protocol.
func NewReservedHandler(protocol ProtocolType) *ReservedHandler {
	return &ReservedHandler{protocol: protocol}
}

func (h *ReservedHandler) Protocol() ProtocolType { return h.protocol }

func (h *ReservedHandler) unsupported() *ToolError {
	return NewError(ErrorCodeUnsupportedProtocol,
		fmt.Sprintf("protocol %q is not supported yet", h.protocol), false,
		fmt.Errorf("%w: %s", ErrUnsupportedProtocol, h.protocol))
}

func (h *ReservedHandler) ExecuteTool(context.Context, ServerConfig, ExecuteRequest) (Response, error) {
	return Response{}, h.unsupported()
}

func (h *ReservedHandler) DiscoverTools(context.Context, ServerConfig) Discovery {
	return Discovery{Error: h.unsupported().Error()}
}

func (h *ReservedHandler) GetResult(context.Context, ServerConfig, string) (Response, error) {
	return Response{}, h.unsupported()
}

func (h *ReservedHandler) HealthCheck(_ context.Context, server ServerConfig) HealthStatus {
	return HealthStatus{
		ServerID:  server.ID,
		Name:      server.DisplayName(),
		Protocol:  h.protocol,
		Healthy:   false,
		CheckedAt: time.Now().UTC(),
		Error:     "unsupported protocol",
	}
}

func (h *ReservedHandler) Close(context.Context) error { return nil }
