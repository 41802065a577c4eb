package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lumostime/lumos-relay/pkg/ipc"
	"github.com/rs/zerolog"
)

var _ ipc.Transport = (*RemoteTransport)(nil)

const handshakeTimeout = 10 * time.Second

// DialConfig configures a connection to a bridge server
type DialConfig struct {
	URL          string
	SharedSecret string
	Header       http.Header
	Logger       zerolog.Logger
}

// RemoteTransport is the sandboxed-side transport over a WebSocket connection
type RemoteTransport struct {
	conn    *websocket.Conn
	logger  zerolog.Logger
	writeMu sync.Mutex

	// subMu orders subscribe/unsubscribe frames with the listener registry.
	subMu sync.Mutex

	mu        sync.Mutex
	listeners map[string][]remoteListener
	pending   map[string]chan *Frame
	closed    bool
	closeErr  error
	done      chan struct{}
}

type remoteListener struct {
	id string
	fn ipc.Listener
}

// Dial connects to a bridge server and completes the authentication handshake
func Dial(ctx context.Context, cfg DialConfig) (*RemoteTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, cfg.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.URL, err)
	}

	if err := authenticate(ctx, conn, cfg.SharedSecret); err != nil {
		conn.Close()
		return nil, err
	}

	t := &RemoteTransport{
		conn:      conn,
		logger:    cfg.Logger,
		listeners: make(map[string][]remoteListener),
		pending:   make(map[string]chan *Frame),
		done:      make(chan struct{}),
	}
	go t.readLoop()

	return t, nil
}

func authenticate(ctx context.Context, conn *websocket.Conn, secret string) error {
	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set handshake deadline: %w", err)
	}

	var challenge AuthChallenge
	if err := conn.ReadJSON(&challenge); err != nil {
		return fmt.Errorf("failed to read auth challenge: %w", err)
	}
	if challenge.Event != "auth.challenge" || challenge.Challenge == "" {
		return fmt.Errorf("unexpected handshake message: %q", challenge.Event)
	}

	if err := conn.WriteJSON(AuthResponse{
		Method:    "auth.response",
		Signature: SignChallenge(secret, challenge.Challenge),
	}); err != nil {
		return fmt.Errorf("failed to send auth response: %w", err)
	}

	var result AuthResult
	if err := conn.ReadJSON(&result); err != nil {
		return fmt.Errorf("failed to read auth result: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("authentication failed: %s", result.Message)
	}

	return conn.SetReadDeadline(time.Time{})
}

// Subscribe registers l locally and subscribes the connection to channel on its first listener
func (t *RemoteTransport) Subscribe(channel string, l ipc.Listener) ipc.Registration {
	reg := ipc.Registration{ID: uuid.NewString(), Channel: channel}

	t.subMu.Lock()
	defer t.subMu.Unlock()

	t.mu.Lock()
	first := len(t.listeners[channel]) == 0
	t.listeners[channel] = append(t.listeners[channel], remoteListener{id: reg.ID, fn: l})
	t.mu.Unlock()

	if first {
		t.writeFrame(Frame{Type: FrameSubscribe, Channel: channel})
	}
	return reg
}

// Unsubscribe removes regs, or every listener of channel when regs is empty
func (t *RemoteTransport) Unsubscribe(channel string, regs ...ipc.Registration) {
	remove := make(map[string]bool, len(regs))
	for _, reg := range regs {
		remove[reg.ID] = true
	}

	t.subMu.Lock()
	defer t.subMu.Unlock()

	t.mu.Lock()
	entries := t.listeners[channel]
	had := len(entries) > 0
	filtered := make([]remoteListener, 0, len(entries))
	if len(regs) > 0 {
		for _, entry := range entries {
			if !remove[entry.id] {
				filtered = append(filtered, entry)
			}
		}
	}
	if len(filtered) == 0 {
		delete(t.listeners, channel)
	} else {
		t.listeners[channel] = filtered
	}
	t.mu.Unlock()

	if had && len(filtered) == 0 {
		t.writeFrame(Frame{Type: FrameUnsubscribe, Channel: channel})
	}
}

// Send forwards env without waiting for acknowledgment
func (t *RemoteTransport) Send(env ipc.Envelope) {
	t.writeFrame(Frame{Type: FrameSend, Channel: env.Channel, Payload: env.Payload})
}

// Invoke forwards env and waits for the single result frame
func (t *RemoteTransport) Invoke(ctx context.Context, env ipc.Envelope) (any, error) {
	id := uuid.NewString()
	resultCh := make(chan *Frame, 1)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ipc.ErrTransportClosed
	}
	t.pending[id] = resultCh
	t.mu.Unlock()

	if err := t.write(Frame{Type: FrameInvoke, ID: id, Channel: env.Channel, Payload: env.Payload}); err != nil {
		t.dropPending(id)
		return nil, err
	}

	select {
	case frame := <-resultCh:
		if frame.Error != nil {
			return nil, &RemoteError{Code: frame.Error.Code, Message: frame.Error.Message}
		}
		return frame.Result, nil
	case <-t.done:
		return nil, ipc.ErrTransportClosed
	case <-ctx.Done():
		t.dropPending(id)
		return nil, ctx.Err()
	}
}

// Done is closed when the connection is torn down
func (t *RemoteTransport) Done() <-chan struct{} {
	return t.done
}

// Err returns the reason the connection was torn down, if any
func (t *RemoteTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeErr
}

// Close tears down the connection. Pending invokes fail with ipc.ErrTransportClosed.
func (t *RemoteTransport) Close() error {
	t.writeMu.Lock()
	_ = t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	t.writeMu.Unlock()

	t.shutdown(nil)
	return t.conn.Close()
}

func (t *RemoteTransport) readLoop() {
	for {
		_, message, err := t.conn.ReadMessage()
		if err != nil {
			t.shutdown(err)
			return
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			t.logger.Warn().Err(err).Msg("Discarding malformed frame")
			continue
		}

		switch frame.Type {
		case FrameEvent:
			t.dispatch(&frame)
		case FrameResult:
			t.resolve(&frame)
		case FrameError:
			if frame.Error != nil {
				t.logger.Warn().
					Int("code", frame.Error.Code).
					Str("error", frame.Error.Message).
					Msg("Bridge server reported an error")
			}
		}
	}
}

func (t *RemoteTransport) dispatch(frame *Frame) {
	t.mu.Lock()
	entries := append([]remoteListener(nil), t.listeners[frame.Channel]...)
	t.mu.Unlock()

	ev := ipc.Event{
		Channel:   frame.Channel,
		SenderID:  frame.Sender,
		Seq:       frame.Seq,
		Timestamp: time.UnixMilli(frame.Timestamp),
	}
	for _, entry := range entries {
		entry.fn(ev, frame.Payload)
	}
}

func (t *RemoteTransport) resolve(frame *Frame) {
	t.mu.Lock()
	ch, exists := t.pending[frame.ID]
	delete(t.pending, frame.ID)
	t.mu.Unlock()

	if !exists {
		t.logger.Debug().Str("requestId", frame.ID).Msg("Result for unknown invoke")
		return
	}
	ch <- frame
}

func (t *RemoteTransport) dropPending(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

func (t *RemoteTransport) shutdown(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	t.closeErr = err
	t.pending = make(map[string]chan *Frame)
	close(t.done)
}

// writeFrame writes a frame whose failure has no caller to report to.
func (t *RemoteTransport) writeFrame(frame Frame) {
	if err := t.write(frame); err != nil {
		t.logger.Warn().
			Err(err).
			Str("type", string(frame.Type)).
			Str("channel", frame.Channel).
			Msg("Failed to write frame")
	}
}

// write encodes frame and sends it. Encoding errors are returned unchanged;
// only connection failures report ipc.ErrTransportClosed.
func (t *RemoteTransport) write(frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ipc.ErrTransportClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ipc.ErrTransportClosed, err)
	}
	return nil
}
