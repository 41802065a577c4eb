package ipc

import (
	"context"
	"time"
)

// MainSenderID identifies events emitted by the privileged side.
const MainSenderID = "main"

// Envelope is the unit forwarded across the bridge.
type Envelope struct {
	Channel string `json:"channel"`
	Payload []any  `json:"payload"`
}

// Event carries metadata about a delivered message.
type Event struct {
	Channel   string    `json:"channel"`
	SenderID  string    `json:"sender"`
	Seq       int64     `json:"seq,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Listener receives events pushed to a subscribed channel.
type Listener func(ev Event, payload []any)

// Registration is the handle returned by a subscription and used to remove it.
type Registration struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
}

// InvokeHandler answers a request/response call on the privileged side.
type InvokeHandler func(ctx context.Context, ev Event, payload []any) (any, error)

// MessageHandler receives fire-and-forget messages on the privileged side.
type MessageHandler func(ev Event, payload []any)

// Transport is the privileged channel primitive as seen from the sandboxed side.
type Transport interface {
	// Subscribe registers l against channel.
	Subscribe(channel string, l Listener) Registration

	// Unsubscribe removes regs from channel, or every listener of channel when regs is empty.
	Unsubscribe(channel string, regs ...Registration)

	// Send delivers env to the privileged side without acknowledgment.
	Send(env Envelope)

	// Invoke delivers env and waits for the single reply.
	Invoke(ctx context.Context, env Envelope) (any, error)
}

// Main is the privileged side of a channel.
type Main interface {
	Handle(channel string, h InvokeHandler) error
	RemoveHandler(channel string)
	OnMessage(channel string, h MessageHandler) func()
	Emit(channel string, payload ...any)
}
