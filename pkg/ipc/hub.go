package ipc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

var _ Main = (*Hub)(nil)

// Hub is an in-process privileged channel. It implements Main and hands out
// sandboxed-side transports through Renderer.
type Hub struct {
	mu              sync.RWMutex
	listeners       map[string][]listenerEntry
	handlers        map[string]InvokeHandler
	messageHandlers map[string][]messageEntry
	closed          bool
	done            chan struct{}
	seq             uint64
	logger          zerolog.Logger
}

type listenerEntry struct {
	id    string
	owner string
	fn    Listener
}

type messageEntry struct {
	id string
	fn MessageHandler
}

type invokeResult struct {
	value any
	err   error
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		listeners:       make(map[string][]listenerEntry),
		handlers:        make(map[string]InvokeHandler),
		messageHandlers: make(map[string][]messageEntry),
		done:            make(chan struct{}),
		logger:          logger,
	}
}

// Handle registers the invoke handler for channel.
func (h *Hub) Handle(channel string, handler InvokeHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.handlers[channel]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerExists, channel)
	}
	h.handlers[channel] = handler
	return nil
}

// RemoveHandler removes the invoke handler for channel.
func (h *Hub) RemoveHandler(channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.handlers, channel)
}

// OnMessage registers a receiver for messages sent on channel. The returned
// func removes it.
func (h *Hub) OnMessage(channel string, handler MessageHandler) func() {
	entry := messageEntry{id: uuid.NewString(), fn: handler}

	h.mu.Lock()
	h.messageHandlers[channel] = append(h.messageHandlers[channel], entry)
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		entries := h.messageHandlers[channel]
		filtered := make([]messageEntry, 0, len(entries))
		for _, e := range entries {
			if e.id != entry.id {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			delete(h.messageHandlers, channel)
		} else {
			h.messageHandlers[channel] = filtered
		}
	}
}

// Emit delivers payload to every sandboxed listener of channel.
func (h *Hub) Emit(channel string, payload ...any) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	entries := append([]listenerEntry(nil), h.listeners[channel]...)
	h.mu.RUnlock()

	ev := Event{
		Channel:   channel,
		SenderID:  MainSenderID,
		Seq:       int64(atomic.AddUint64(&h.seq, 1)),
		Timestamp: time.Now(),
	}

	for _, entry := range entries {
		entry.fn(ev, payload)
	}

	h.logger.Debug().
		Str("channel", channel).
		Int("listeners", len(entries)).
		Int64("seq", ev.Seq).
		Msg("Event emitted")
}

// Renderer returns a new sandboxed-side transport attached to the hub.
func (h *Hub) Renderer() Transport {
	id, err := gonanoid.New()
	if err != nil {
		id = uuid.NewString()
	}
	return &hubRenderer{hub: h, id: id}
}

// Close tears the hub down. Pending and later invokes fail with ErrTransportClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
	h.listeners = make(map[string][]listenerEntry)
	h.messageHandlers = make(map[string][]messageEntry)
}

func (h *Hub) subscribe(owner, channel string, l Listener) Registration {
	reg := Registration{ID: uuid.NewString(), Channel: channel}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return reg
	}
	h.listeners[channel] = append(h.listeners[channel], listenerEntry{
		id:    reg.ID,
		owner: owner,
		fn:    l,
	})
	return reg
}

func (h *Hub) unsubscribe(owner, channel string, regs []Registration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	remove := make(map[string]bool, len(regs))
	for _, reg := range regs {
		remove[reg.ID] = true
	}

	entries := h.listeners[channel]
	filtered := make([]listenerEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.owner != owner {
			filtered = append(filtered, entry)
			continue
		}
		if len(regs) > 0 && !remove[entry.id] {
			filtered = append(filtered, entry)
		}
	}

	if len(filtered) == 0 {
		delete(h.listeners, channel)
	} else {
		h.listeners[channel] = filtered
	}
}

func (h *Hub) send(sender string, env Envelope) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	entries := append([]messageEntry(nil), h.messageHandlers[env.Channel]...)
	h.mu.RUnlock()

	ev := Event{
		Channel:   env.Channel,
		SenderID:  sender,
		Timestamp: time.Now(),
	}
	for _, entry := range entries {
		entry.fn(ev, env.Payload)
	}
}

func (h *Hub) invoke(ctx context.Context, sender string, env Envelope) (any, error) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return nil, ErrTransportClosed
	}
	handler, exists := h.handlers[env.Channel]
	h.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w for '%s'", ErrNoHandler, env.Channel)
	}

	ev := Event{
		Channel:   env.Channel,
		SenderID:  sender,
		Timestamp: time.Now(),
	}

	resCh := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error().
					Str("channel", env.Channel).
					Interface("panic", r).
					Msg("Invoke handler panicked")
				resCh <- invokeResult{err: fmt.Errorf("handler for '%s' panicked: %v", env.Channel, r)}
			}
		}()
		value, err := handler(ctx, ev, env.Payload)
		resCh <- invokeResult{value: value, err: err}
	}()

	select {
	case res := <-resCh:
		return res.value, res.err
	case <-h.done:
		return nil, ErrTransportClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// hubRenderer is the sandboxed-side view of a Hub.
type hubRenderer struct {
	hub *Hub
	id  string
}

func (r *hubRenderer) Subscribe(channel string, l Listener) Registration {
	return r.hub.subscribe(r.id, channel, l)
}

func (r *hubRenderer) Unsubscribe(channel string, regs ...Registration) {
	r.hub.unsubscribe(r.id, channel, regs)
}

func (r *hubRenderer) Send(env Envelope) {
	r.hub.send(r.id, env)
}

func (r *hubRenderer) Invoke(ctx context.Context, env Envelope) (any, error) {
	return r.hub.invoke(ctx, r.id, env)
}
