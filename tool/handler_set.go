package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// HandlerSet resolves handlers by protocol. It is built once and read-only
// afterwards.
type HandlerSet struct {
	handlers map[ProtocolType]Handler
}

// NewHandlerSet indexes handlers by their protocol. Later handlers replace
// earlier ones for the same protocol.
func NewHandlerSet(handlers ...Handler) *HandlerSet {
	set := &HandlerSet{handlers: make(map[ProtocolType]Handler, len(handlers))}
	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		set.handlers[handler.Protocol()] = handler
	}
	return set
}

// DefaultHandlerSet returns the built-in handlers: sync HTTP, submit-and-poll,
// and fail-closed placeholders for websocket and stdio.
func DefaultHandlerSet(opts HandlerOptions) *HandlerSet {
	return NewHandlerSet(
		NewHTTPHandler(opts),
		NewPollHandler(opts),
		NewReservedHandler(ProtocolWebSocket),
		NewReservedHandler(ProtocolStdio),
	)
}

// Resolve returns the handler for protocol. Aliases are accepted.
func (s *HandlerSet) Resolve(protocol ProtocolType) (Handler, error) {
	if s == nil {
		return nil, NewError(ErrorCodeConfiguration, "handler set is nil", false, nil)
	}
	clean := ParseProtocolType(string(protocol))
	if clean == "" {
		clean = ProtocolHTTP
	}
	handler, ok := s.handlers[clean]
	if !ok {
		return nil, NewError(ErrorCodeConfiguration, fmt.Sprintf("unknown protocol_type %q", protocol), false, nil)
	}
	return handler, nil
}

// Protocols lists the registered protocols in sorted order.
func (s *HandlerSet) Protocols() []ProtocolType {
	if s == nil {
		return nil
	}
	out := make([]ProtocolType, 0, len(s.handlers))
	for protocol := range s.handlers {
		out = append(out, protocol)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close closes every handler and joins their errors.
func (s *HandlerSet) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var errs []error
	for _, protocol := range s.Protocols() {
		if err := s.handlers[protocol].Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s handler: %w", protocol, err))
		}
	}
	return errors.Join(errs...)
}
