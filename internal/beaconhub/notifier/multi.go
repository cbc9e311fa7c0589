// Package notifier holds the outbound sinks of the hub: broadcast fan-out to
// several sinks, the Kafka mirror and the MQTT command gateway.
package notifier

import (
	"context"

	"github.com/autopeer-io/beacon/internal/beaconhub/core"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
)

var _ core.Broadcaster = (*Multi)(nil)

// Multi dispatches every broadcast to each of its sinks in order.
type Multi struct {
	sinks []core.Broadcaster
}

// NewMulti constructs a Multi. Nil sinks are skipped.
func NewMulti(sinks ...core.Broadcaster) *Multi {
	out := make([]core.Broadcaster, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Multi{sinks: out}
}

func (m *Multi) Broadcast(ctx context.Context, record *model.TelemetryRecord) {
	if m == nil {
		return
	}
	for _, s := range m.sinks {
		s.Broadcast(ctx, record)
	}
}
