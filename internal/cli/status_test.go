package cli

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/lumostime/lumos-relay/pkg/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		output, err := executeCommand(t, "status", "--help")
		require.NoError(t, err)
		assert.Contains(t, output, "healthz")
	})

	t.Run("running gateway", func(t *testing.T) {
		server, path := startGateway(t)
		require.NoError(t, server.Handle("insight:generate", func(context.Context, ipc.Event, []any) (any, error) {
			return nil, nil
		}))

		output, err := executeCommand(t, "status", "--config", path)
		require.NoError(t, err)

		assert.Contains(t, output, "Status: ok")
		assert.Contains(t, output, "Clients: 0")
		assert.Contains(t, output, "Channels: insight:generate")
	})

	t.Run("nothing listening", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := listener.Addr().(*net.TCPAddr).Port
		require.NoError(t, listener.Close())

		output, err := executeCommand(t, "status", "--config", writeTestConfig(t, port))
		require.NoError(t, err)

		assert.Contains(t, output, "Status: stopped")
		assert.NotContains(t, output, "PID:")
	})
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "45s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m30s"},
		{"hours minutes seconds", 3*time.Hour + 15*time.Minute + 20*time.Second, "3h15m20s"},
		{"rounds to seconds", 1500 * time.Millisecond, "2s"},
		{"zero", 0, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatDuration(tt.duration)
			assert.Equal(t, tt.expected, result)
		})
	}
}
