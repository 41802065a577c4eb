package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lumostime/lumos-relay/pkg/ipc"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBroadcaster_EmitToSubscribers(t *testing.T) {
	serverConn, clientConn, cleanup := websocketConnPair(t)
	defer cleanup()

	registry := NewClientRegistry()
	registry.Add(&Client{ID: "client-1", Conn: serverConn, authenticated: true})
	registry.Add(&Client{ID: "client-2", authenticated: true})
	registry.Add(&Client{ID: "client-3", Conn: serverConn})
	registry.Subscribe("client-1", "timer")
	registry.Subscribe("client-3", "timer")

	broadcaster := NewEventBroadcaster(registry, zerolog.Nop())
	assert.Equal(t, 1, broadcaster.Emit("timer", []any{"start", 25.0}))
	assert.Equal(t, 1, broadcaster.Emit("timer", []any{"stop"}))

	var first Frame
	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, clientConn.ReadJSON(&first))

	var second Frame
	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, clientConn.ReadJSON(&second))

	assert.Equal(t, FrameEvent, first.Type)
	assert.Equal(t, "timer", first.Channel)
	assert.Equal(t, []any{"start", 25.0}, first.Payload)
	assert.Equal(t, ipc.MainSenderID, first.Sender)
	assert.NotZero(t, first.Timestamp)
	assert.Greater(t, second.Seq, first.Seq)
}

func TestEventBroadcaster_NoSubscribers(t *testing.T) {
	registry := NewClientRegistry()
	registry.Add(&Client{ID: "client-1", authenticated: true})

	broadcaster := NewEventBroadcaster(registry, zerolog.Nop())
	assert.Equal(t, 0, broadcaster.Emit("timer", nil))
}

func TestEventBroadcaster_EmitTo(t *testing.T) {
	serverConn, clientConn, cleanup := websocketConnPair(t)
	defer cleanup()

	registry := NewClientRegistry()
	registry.Add(&Client{ID: "client-1", Conn: serverConn, authenticated: true})
	registry.Add(&Client{ID: "pending", Conn: serverConn})

	broadcaster := NewEventBroadcaster(registry, zerolog.Nop())

	require.NoError(t, broadcaster.EmitTo("client-1", "direct", []any{"hi"}))
	assert.Error(t, broadcaster.EmitTo("missing", "direct", nil))
	assert.Error(t, broadcaster.EmitTo("pending", "direct", nil))

	var frame Frame
	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, clientConn.ReadJSON(&frame))
	assert.Equal(t, "direct", frame.Channel)
	assert.Equal(t, []any{"hi"}, frame.Payload)
}

func TestClientRegistry_Subscriptions(t *testing.T) {
	registry := NewClientRegistry()
	registry.Add(&Client{ID: "client-1", authenticated: true})

	assert.True(t, registry.Subscribe("client-1", "b"))
	assert.True(t, registry.Subscribe("client-1", "a"))
	assert.False(t, registry.Subscribe("missing", "a"))

	infos := registry.GetConnectedClients()
	require.Len(t, infos, 1)
	assert.Equal(t, []string{"a", "b"}, infos[0].Channels)
	assert.True(t, infos[0].Authenticated)

	registry.Unsubscribe("client-1", "a")
	registry.Unsubscribe("client-1", "never")
	registry.Unsubscribe("missing", "a")
	assert.Empty(t, registry.Subscribers("a"))
	assert.Len(t, registry.Subscribers("b"), 1)

	registry.Remove("client-1")
	assert.Equal(t, 0, registry.Count())
}

func websocketConnPair(t *testing.T) (*websocket.Conn, *websocket.Conn, func()) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverConnCh := make(chan *websocket.Conn, 1)
	errCh := make(chan error, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errCh <- err
			return
		}
		serverConnCh <- conn
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	var serverConn *websocket.Conn
	select {
	case serverConn = <-serverConnCh:
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server websocket connection")
	}

	cleanup := func() {
		_ = clientConn.Close()
		_ = serverConn.Close()
		srv.Close()
	}

	return serverConn, clientConn, cleanup
}
