package core

import (
	"context"

	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
)

// Broadcaster fans a fresh record out to observers. Implementations must not
// block on slow consumers.
type Broadcaster interface {
	Broadcast(ctx context.Context, record *model.TelemetryRecord)
}

// CommandRelay delivers a command to the currently open receivers and returns
// how many accepted it. It returns ErrNoReceivers when none did.
type CommandRelay interface {
	Relay(ctx context.Context, cmd *model.Command) (int, error)
}

// StateSource provides the latest record of every known device.
type StateSource interface {
	All() []*model.TelemetryRecord
}
