package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/lumostime/lumos-relay/pkg/ipc"
)

// ChannelRouter holds the privileged-side handlers keyed by channel
type ChannelRouter struct {
	mu              sync.RWMutex
	handlers        map[string]ipc.InvokeHandler
	messageHandlers map[string][]messageHandlerEntry
}

type messageHandlerEntry struct {
	id string
	fn ipc.MessageHandler
}

// NewChannelRouter creates a new channel router
func NewChannelRouter() *ChannelRouter {
	return &ChannelRouter{
		handlers:        make(map[string]ipc.InvokeHandler),
		messageHandlers: make(map[string][]messageHandlerEntry),
	}
}

// Handle registers the invoke handler for channel. One handler per channel.
func (r *ChannelRouter) Handle(channel string, handler ipc.InvokeHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[channel]; exists {
		return fmt.Errorf("%w: %s", ipc.ErrHandlerExists, channel)
	}
	r.handlers[channel] = handler
	return nil
}

// RemoveHandler removes the invoke handler for channel
func (r *ChannelRouter) RemoveHandler(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handlers, channel)
}

// HasHandler checks if channel has an invoke handler
func (r *ChannelRouter) HasHandler(channel string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.handlers[channel]
	return exists
}

// Channels returns the channels with an invoke handler, sorted
func (r *ChannelRouter) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channels := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		channels = append(channels, name)
	}
	sort.Strings(channels)
	return channels
}

// OnMessage registers a receiver for sends on channel and returns its remover.
func (r *ChannelRouter) OnMessage(channel string, handler ipc.MessageHandler) func() {
	entry := messageHandlerEntry{id: uuid.NewString(), fn: handler}

	r.mu.Lock()
	r.messageHandlers[channel] = append(r.messageHandlers[channel], entry)
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		entries := r.messageHandlers[channel]
		filtered := make([]messageHandlerEntry, 0, len(entries))
		for _, e := range entries {
			if e.id != entry.id {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			delete(r.messageHandlers, channel)
		} else {
			r.messageHandlers[channel] = filtered
		}
	}
}

// ParseFrame parses and validates a frame from a client
func (r *ChannelRouter) ParseFrame(data []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, &RPCError{
			Code:    ParseError,
			Message: "Parse error",
			Data:    err.Error(),
		}
	}

	switch frame.Type {
	case FrameSubscribe, FrameUnsubscribe, FrameSend:
	case FrameInvoke:
		if frame.ID == "" {
			return nil, &RPCError{
				Code:    InvalidRequest,
				Message: "Invalid request: missing id field",
			}
		}
	default:
		return nil, &RPCError{
			Code:    InvalidRequest,
			Message: fmt.Sprintf("Invalid request: unknown frame type %q", frame.Type),
		}
	}

	if frame.Channel == "" {
		return nil, &RPCError{
			Code:    InvalidRequest,
			Message: "Invalid request: missing channel field",
		}
	}

	return &frame, nil
}

// Dispatch delivers a send to every message handler of the channel, in registration order.
func (r *ChannelRouter) Dispatch(ev ipc.Event, payload []any) int {
	r.mu.RLock()
	entries := append([]messageHandlerEntry(nil), r.messageHandlers[ev.Channel]...)
	r.mu.RUnlock()

	for _, entry := range entries {
		entry.fn(ev, payload)
	}
	return len(entries)
}

// Route runs the invoke handler for the channel and builds the result frame.
func (r *ChannelRouter) Route(ctx context.Context, ev ipc.Event, frame *Frame) (response *Frame) {
	response = &Frame{Type: FrameResult, ID: frame.ID, Channel: frame.Channel}

	r.mu.RLock()
	handler, exists := r.handlers[frame.Channel]
	r.mu.RUnlock()

	if !exists {
		response.Error = &RPCError{
			Code:    NoHandler,
			Message: fmt.Sprintf("No handler registered for '%s'", frame.Channel),
		}
		return response
	}

	defer func() {
		if rec := recover(); rec != nil {
			response.Result = nil
			response.Error = &RPCError{
				Code:    HandlerFailed,
				Message: fmt.Sprintf("handler for '%s' panicked: %v", frame.Channel, rec),
			}
		}
	}()

	result, err := handler(ctx, ev, frame.Payload)
	if err != nil {
		response.Error = &RPCError{
			Code:    HandlerFailed,
			Message: err.Error(),
		}
		return response
	}

	response.Result = result
	return response
}
