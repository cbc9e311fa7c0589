package core

import (
	"context"

	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
)

// EventStore is the durable log of persisted events. Implementations live in
// internal/beaconhub/store.
type EventStore interface {
	// Append stores event and assigns event.ID.
	Append(ctx context.Context, event *model.Event) error

	// List returns all events, most recently received first.
	List(ctx context.Context) ([]*model.Event, error)

	// ListByDevice returns the events of one device, most recently received first.
	ListByDevice(ctx context.Context, deviceID string) ([]*model.Event, error)

	// Delete removes one event. It returns ErrNotFound for an unknown id.
	Delete(ctx context.Context, id string) error

	// DeleteAll empties the log.
	DeleteAll(ctx context.Context) error

	// Latest returns the most recently received event of a device, or ErrNotFound.
	Latest(ctx context.Context, deviceID string) (*model.Event, error)

	// Devices returns the distinct device ids present in the log.
	Devices(ctx context.Context) ([]string, error)
}
