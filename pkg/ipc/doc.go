// Package ipc relays messages between a sandboxed caller and a privileged message channel.
//
// Invariants:
// - Payloads are forwarded positionally and never transformed.
// - Listeners on one channel fire in registration order.
// - Every invoke produces exactly one outcome: a value, the handler error, or ErrTransportClosed.
//
// Usage:
//
//	hub := ipc.NewHub(zerolog.Nop())
//	_ = hub.Handle("ping", func(ctx context.Context, ev ipc.Event, payload []any) (any, error) {
//		return "pong", nil
//	})
//	bridge := ipc.NewBridge(hub.Renderer())
//	reply, _ := bridge.Invoke(ctx, "ping")
//	_ = reply
package ipc
