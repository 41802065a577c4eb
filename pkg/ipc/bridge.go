package ipc

import "context"

// Bridge exposes the four relay operations to the sandboxed side.
// It holds no state; every call is forwarded to the underlying transport.
type Bridge struct {
	transport Transport
}

// NewBridge creates a bridge over t.
func NewBridge(t Transport) *Bridge {
	return &Bridge{transport: t}
}

// On subscribes l to channel.
func (b *Bridge) On(channel string, l Listener) Registration {
	return b.transport.Subscribe(channel, func(ev Event, payload []any) {
		l(ev, payload)
	})
}

// Off removes the given registrations, or every listener of channel when none are given.
func (b *Bridge) Off(channel string, regs ...Registration) {
	b.transport.Unsubscribe(channel, regs...)
}

// Send forwards payload to the privileged side on channel.
func (b *Bridge) Send(channel string, payload ...any) {
	b.SendEnvelope(Envelope{Channel: channel, Payload: payload})
}

// SendEnvelope forwards env unchanged.
func (b *Bridge) SendEnvelope(env Envelope) {
	b.transport.Send(env)
}

// Invoke forwards payload on channel and waits for the privileged-side reply.
func (b *Bridge) Invoke(ctx context.Context, channel string, payload ...any) (any, error) {
	return b.InvokeEnvelope(ctx, Envelope{Channel: channel, Payload: payload})
}

// InvokeEnvelope forwards env unchanged and waits for the reply.
func (b *Bridge) InvokeEnvelope(ctx context.Context, env Envelope) (any, error) {
	return b.transport.Invoke(ctx, env)
}
