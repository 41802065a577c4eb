package cli

import (
	"os/signal"
	"sync"
	"syscall"

	"github.com/lumostime/lumos-relay/pkg/ipc"
	"github.com/spf13/cobra"
)

var (
	listenCount int
)

var listenCmd = &cobra.Command{
	Use:   "listen <channel>",
	Short: "Print events emitted on a channel",
	Long: `Subscribe to a channel and print every event as a JSON line until
interrupted, the connection closes, or --count events have arrived.`,
	Args: cobra.ExactArgs(1),
	RunE: runListen,
}

func init() {
	listenCmd.Flags().IntVar(&listenCount, "count", 0, "exit after this many events (0 = unlimited)")
	rootCmd.AddCommand(listenCmd)
}

type eventLine struct {
	Channel string `json:"channel"`
	Sender  string `json:"sender"`
	Seq     int64  `json:"seq"`
	Payload []any  `json:"payload"`
}

func runListen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cmd, cfg, false)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx := commandContext(cmd)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bridge, transport, err := connectBridge(ctx, cfg, log.Component("client"))
	if err != nil {
		return err
	}
	defer transport.Close()

	out := cmd.OutOrStdout()
	done := make(chan struct{})
	var once sync.Once
	received := 0

	// Listeners run on the connection's read goroutine, one at a time.
	reg := bridge.On(args[0], func(ev ipc.Event, payload []any) {
		if err := printJSON(out, eventLine{
			Channel: ev.Channel,
			Sender:  ev.SenderID,
			Seq:     ev.Seq,
			Payload: payload,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to print event")
		}

		received++
		if listenCount > 0 && received >= listenCount {
			once.Do(func() { close(done) })
		}
	})
	defer bridge.Off(args[0], reg)

	select {
	case <-done:
	case <-ctx.Done():
	case <-transport.Done():
		if err := transport.Err(); err != nil {
			log.Debug().Err(err).Msg("Connection closed")
		}
	}
	return nil
}
