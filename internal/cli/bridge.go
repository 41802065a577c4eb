package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/lumostime/lumos-relay/internal/config"
	"github.com/lumostime/lumos-relay/pkg/gateway"
	"github.com/lumostime/lumos-relay/pkg/ipc"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const dialTimeout = 10 * time.Second

// connectBridge dials the configured gateway and wraps the connection in a bridge.
func connectBridge(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*ipc.Bridge, *gateway.RemoteTransport, error) {
	if cfg.Gateway.SharedSecret == "" {
		return nil, nil, fmt.Errorf("gateway shared_secret is not configured")
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	transport, err := gateway.Dial(dialCtx, gateway.DialConfig{
		URL:          cfg.GatewayURL(),
		SharedSecret: cfg.Gateway.SharedSecret,
		Logger:       log,
	})
	if err != nil {
		return nil, nil, err
	}
	return ipc.NewBridge(transport), transport, nil
}

// parseArgs decodes each argument as JSON, falling back to the raw string.
func parseArgs(args []string) []any {
	payload := make([]any, 0, len(args))
	for _, arg := range args {
		var v any
		if err := json.Unmarshal([]byte(arg), &v); err != nil {
			payload = append(payload, arg)
			continue
		}
		payload = append(payload, v)
	}
	return payload
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
