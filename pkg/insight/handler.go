package insight

import (
	"context"

	"github.com/lumostime/lumos-relay/pkg/ipc"
)

// Channel is the invoke channel the generator answers on.
const Channel = "insight:generate"

// Producer turns records into insight text. *Generator is the usual one.
type Producer interface {
	Generate(ctx context.Context, records []any) string
}

var _ Producer = (*Generator)(nil)

// RegisterHandler exposes g on the Channel of main. The first payload value is
// taken as the record list when it is one; otherwise the whole payload is.
func RegisterHandler(main ipc.Main, g Producer) error {
	return main.Handle(Channel, func(ctx context.Context, ev ipc.Event, payload []any) (any, error) {
		return g.Generate(ctx, recordsFromPayload(payload)), nil
	})
}

func recordsFromPayload(payload []any) []any {
	if len(payload) == 1 {
		switch v := payload[0].(type) {
		case []any:
			return v
		case nil:
			return nil
		}
	}
	return payload
}
