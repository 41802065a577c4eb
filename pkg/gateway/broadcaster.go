package gateway

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lumostime/lumos-relay/internal/observability"
	"github.com/lumostime/lumos-relay/pkg/ipc"
	"github.com/rs/zerolog"
)

// EventBroadcaster pushes privileged-side events to subscribed clients
type EventBroadcaster struct {
	clients *ClientRegistry
	logger  zerolog.Logger
	seq     uint64
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster(clients *ClientRegistry, logger zerolog.Logger) *EventBroadcaster {
	return &EventBroadcaster{
		clients: clients,
		logger:  logger,
	}
}

// Emit sends payload to every client subscribed to channel and returns the
// number of successful deliveries.
func (b *EventBroadcaster) Emit(channel string, payload []any) int {
	frame := b.newFrame(channel, payload)
	clients := b.clients.Subscribers(channel)

	if len(clients) == 0 {
		b.logger.Debug().
			Str("channel", channel).
			Int64("seq", frame.Seq).
			Msg("No subscribed clients for event")
		return 0
	}

	successCount := 0
	failureCount := 0

	for _, client := range clients {
		if err := client.WriteJSON(frame); err != nil {
			b.logger.Warn().
				Err(err).
				Str("clientId", client.ID).
				Str("channel", channel).
				Int64("seq", frame.Seq).
				Msg("Failed to deliver event to client")
			failureCount++
		} else {
			successCount++
		}
	}

	observability.RecordEvents(successCount)
	b.logger.Debug().
		Str("channel", channel).
		Int64("seq", frame.Seq).
		Int("success", successCount).
		Int("failed", failureCount).
		Msg("Event broadcast complete")

	return successCount
}

// EmitTo sends payload on channel to one client, subscribed or not.
func (b *EventBroadcaster) EmitTo(clientID, channel string, payload []any) error {
	client, exists := b.clients.Get(clientID)
	if !exists || !client.IsAuthenticated() {
		return fmt.Errorf("client not connected: %s", clientID)
	}

	if err := client.WriteJSON(b.newFrame(channel, payload)); err != nil {
		return fmt.Errorf("failed to deliver event: %w", err)
	}
	observability.RecordEvents(1)
	return nil
}

func (b *EventBroadcaster) newFrame(channel string, payload []any) Frame {
	return Frame{
		Type:      FrameEvent,
		Channel:   channel,
		Payload:   payload,
		Seq:       int64(atomic.AddUint64(&b.seq, 1)),
		Timestamp: time.Now().UnixMilli(),
		Sender:    ipc.MainSenderID,
	}
}
