package ipc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEchoHub(t *testing.T, channel string) *Hub {
	t.Helper()

	hub := NewHub(zerolog.Nop())
	t.Cleanup(hub.Close)

	hub.OnMessage(channel, func(ev Event, payload []any) {
		hub.Emit(channel, payload...)
	})
	return hub
}

func TestBridge_SendReachesListenerUnchanged(t *testing.T) {
	hub := newEchoHub(t, "timer:tick")
	bridge := NewBridge(hub.Renderer())

	var got [][]any
	var events []Event
	bridge.On("timer:tick", func(ev Event, payload []any) {
		events = append(events, ev)
		got = append(got, payload)
	})

	record := map[string]interface{}{"activity": "reading", "minutes": 25}
	bridge.Send("timer:tick", "start", 3, record, nil)
	bridge.Send("timer:tick")

	require.Len(t, got, 2)
	assert.Equal(t, []any{"start", 3, record, nil}, got[0])
	assert.Empty(t, got[1])
	assert.Equal(t, "timer:tick", events[0].Channel)
	assert.Equal(t, MainSenderID, events[0].SenderID)
	assert.Less(t, events[0].Seq, events[1].Seq)
}

func TestBridge_ListenersFireInRegistrationOrder(t *testing.T) {
	hub := newEchoHub(t, "sync")
	bridge := NewBridge(hub.Renderer())

	var order []string
	bridge.On("sync", func(ev Event, payload []any) { order = append(order, "first") })
	bridge.On("sync", func(ev Event, payload []any) { order = append(order, "second") })
	bridge.On("sync", func(ev Event, payload []any) { order = append(order, "third") })

	bridge.Send("sync", "go")

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestBridge_Off(t *testing.T) {
	t.Run("removed listener is no longer invoked", func(t *testing.T) {
		hub := newEchoHub(t, "status")
		bridge := NewBridge(hub.Renderer())

		calls := 0
		reg := bridge.On("status", func(ev Event, payload []any) { calls++ })
		kept := 0
		bridge.On("status", func(ev Event, payload []any) { kept++ })

		bridge.Send("status", 1)
		bridge.Off("status", reg)
		bridge.Send("status", 2)

		assert.Equal(t, 1, calls)
		assert.Equal(t, 2, kept)
	})

	t.Run("no registrations removes every listener of the channel", func(t *testing.T) {
		hub := newEchoHub(t, "status")
		bridge := NewBridge(hub.Renderer())

		calls := 0
		bridge.On("status", func(ev Event, payload []any) { calls++ })
		bridge.On("status", func(ev Event, payload []any) { calls++ })

		bridge.Off("status")
		bridge.Send("status", 1)

		assert.Equal(t, 0, calls)
	})

	t.Run("unknown registration is a no-op", func(t *testing.T) {
		hub := newEchoHub(t, "status")
		bridge := NewBridge(hub.Renderer())

		calls := 0
		bridge.On("status", func(ev Event, payload []any) { calls++ })

		assert.NotPanics(t, func() {
			bridge.Off("status", Registration{ID: "never-registered", Channel: "status"})
			bridge.Off("other-channel", Registration{ID: "never-registered"})
		})

		bridge.Send("status", 1)
		assert.Equal(t, 1, calls)
	})

	t.Run("does not touch listeners of another renderer", func(t *testing.T) {
		hub := newEchoHub(t, "status")
		first := NewBridge(hub.Renderer())
		second := NewBridge(hub.Renderer())

		firstCalls, secondCalls := 0, 0
		first.On("status", func(ev Event, payload []any) { firstCalls++ })
		second.On("status", func(ev Event, payload []any) { secondCalls++ })

		first.Off("status")
		hub.Emit("status", "x")

		assert.Equal(t, 0, firstCalls)
		assert.Equal(t, 1, secondCalls)
	})
}

func TestBridge_Invoke(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves with the handler value", func(t *testing.T) {
		hub := NewHub(zerolog.Nop())
		defer hub.Close()

		require.NoError(t, hub.Handle("sum", func(ctx context.Context, ev Event, payload []any) (any, error) {
			total := 0
			for _, v := range payload {
				total += v.(int)
			}
			return total, nil
		}))

		bridge := NewBridge(hub.Renderer())
		result, err := bridge.Invoke(ctx, "sum", 1, 2, 3)
		require.NoError(t, err)
		assert.Equal(t, 6, result)
	})

	t.Run("missing handler is an error", func(t *testing.T) {
		hub := NewHub(zerolog.Nop())
		defer hub.Close()

		bridge := NewBridge(hub.Renderer())
		_, err := bridge.Invoke(ctx, "missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoHandler))
		assert.Contains(t, err.Error(), "missing")
	})

	t.Run("handler error is propagated verbatim", func(t *testing.T) {
		hub := NewHub(zerolog.Nop())
		defer hub.Close()

		handlerErr := errors.New("disk full")
		require.NoError(t, hub.Handle("save", func(ctx context.Context, ev Event, payload []any) (any, error) {
			return nil, handlerErr
		}))

		bridge := NewBridge(hub.Renderer())
		_, err := bridge.Invoke(ctx, "save")
		assert.Equal(t, handlerErr, err)
	})

	t.Run("handler panic becomes an error", func(t *testing.T) {
		hub := NewHub(zerolog.Nop())
		defer hub.Close()

		require.NoError(t, hub.Handle("boom", func(ctx context.Context, ev Event, payload []any) (any, error) {
			panic("kaboom")
		}))

		bridge := NewBridge(hub.Renderer())
		_, err := bridge.Invoke(ctx, "boom")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kaboom")
	})

	t.Run("close fails pending invoke", func(t *testing.T) {
		hub := NewHub(zerolog.Nop())
		started := make(chan struct{})
		release := make(chan struct{})
		defer close(release)

		require.NoError(t, hub.Handle("slow", func(ctx context.Context, ev Event, payload []any) (any, error) {
			close(started)
			<-release
			return "late", nil
		}))

		bridge := NewBridge(hub.Renderer())
		errCh := make(chan error, 1)
		go func() {
			_, err := bridge.Invoke(ctx, "slow")
			errCh <- err
		}()

		<-started
		hub.Close()

		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, ErrTransportClosed)
		case <-time.After(2 * time.Second):
			t.Fatal("invoke did not fail after close")
		}

		_, err := bridge.Invoke(ctx, "slow")
		assert.ErrorIs(t, err, ErrTransportClosed)
	})

	t.Run("context cancellation ends the wait", func(t *testing.T) {
		hub := NewHub(zerolog.Nop())
		defer hub.Close()

		release := make(chan struct{})
		defer close(release)
		require.NoError(t, hub.Handle("slow", func(ctx context.Context, ev Event, payload []any) (any, error) {
			<-release
			return nil, nil
		}))

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		bridge := NewBridge(hub.Renderer())
		_, err := bridge.Invoke(cctx, "slow")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("invoke carries sender metadata", func(t *testing.T) {
		hub := NewHub(zerolog.Nop())
		defer hub.Close()

		var seen Event
		require.NoError(t, hub.Handle("whoami", func(ctx context.Context, ev Event, payload []any) (any, error) {
			seen = ev
			return ev.SenderID, nil
		}))

		bridge := NewBridge(hub.Renderer())
		result, err := bridge.InvokeEnvelope(ctx, Envelope{Channel: "whoami"})
		require.NoError(t, err)
		assert.Equal(t, seen.SenderID, result)
		assert.NotEmpty(t, seen.SenderID)
		assert.Equal(t, "whoami", seen.Channel)
	})
}

func TestBridge_ConcurrentInvokesAreIndependent(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	require.NoError(t, hub.Handle("echo", func(ctx context.Context, ev Event, payload []any) (any, error) {
		return payload[0], nil
	}))

	bridge := NewBridge(hub.Renderer())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			result, err := bridge.Invoke(context.Background(), "echo", n)
			assert.NoError(t, err)
			assert.Equal(t, n, result)
		}(i)
	}
	wg.Wait()
}
