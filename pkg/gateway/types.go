package gateway

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lumostime/lumos-relay/pkg/ipc"
)

// FrameType identifies a bridge frame on the wire.
type FrameType string

const (
	FrameSubscribe   FrameType = "subscribe"
	FrameUnsubscribe FrameType = "unsubscribe"
	FrameSend        FrameType = "send"
	FrameInvoke      FrameType = "invoke"
	FrameResult      FrameType = "result"
	FrameEvent       FrameType = "event"
	FrameError       FrameType = "error"
)

// Frame is the single message shape exchanged after authentication.
type Frame struct {
	Type      FrameType `json:"type"`
	ID        string    `json:"id,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Payload   []any     `json:"payload,omitempty"`
	Result    any       `json:"result,omitempty"`
	Error     *RPCError `json:"error,omitempty"`
	Seq       int64     `json:"seq,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"`
	Sender    string    `json:"sender,omitempty"`
}

// RPCError is the error carried by result and error frames.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface
func (e *RPCError) Error() string {
	return e.Message
}

// RemoteError is returned to invoke callers when the privileged side answers with an error.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Is matches ipc sentinel errors by code.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ipc.ErrNoHandler:
		return e.Code == NoHandler
	case ipc.ErrTransportClosed:
		return e.Code == ShuttingDown
	}
	return false
}

// AuthChallenge represents an authentication challenge message
type AuthChallenge struct {
	Event     string `json:"event"`
	Challenge string `json:"challenge"`
}

// AuthResponse represents a client's authentication response
type AuthResponse struct {
	Method    string `json:"method"`
	Signature string `json:"signature"`
}

// AuthResult represents the result of authentication
type AuthResult struct {
	Event   string `json:"event"`
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// ClientInfo represents information about a connected client
type ClientInfo struct {
	ID            string    `json:"id"`
	Authenticated bool      `json:"authenticated"`
	ConnectedAt   time.Time `json:"connectedAt"`
	LastActivity  time.Time `json:"lastActivity"`
	IPAddress     string    `json:"ipAddress"`
	Channels      []string  `json:"channels"`
	Idle          bool      `json:"idle"`
}

// ClientState represents the state of a client connection
type ClientState int

const (
	StateConnecting ClientState = iota
	StateAuthenticating
	StateAuthenticated
	StateDisconnected
)

// Error codes
const (
	ParseError             = -32700
	InvalidRequest         = -32600
	NoHandler              = -32601
	HandlerFailed          = -32603
	AuthenticationRequired = -32001
	RateLimitExceeded      = -32005
	TooManyConcurrent      = -32006
	ShuttingDown           = -32007
)

// Client is a connected sandboxed-side peer.
type Client struct {
	ID           string
	Conn         *websocket.Conn
	ConnectedAt  time.Time
	LastActivity time.Time
	IPAddress    string
	RateLimiter  *ClientRateLimiter

	mu            sync.Mutex
	writeMu       sync.Mutex
	authenticated bool
	challenge     string
	authAttempts  int
	state         ClientState
	channels      map[string]bool
}

// IsAuthenticated reports whether the client passed the handshake.
func (c *Client) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// WriteJSON serializes v onto the connection. Safe for concurrent use.
func (c *Client) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.Conn == nil {
		return fmt.Errorf("client %s has no connection", c.ID)
	}
	return c.Conn.WriteJSON(v)
}
