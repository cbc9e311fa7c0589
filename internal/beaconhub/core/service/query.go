package service

import (
	"context"
	"fmt"

	"github.com/autopeer-io/beacon/internal/beaconhub/core"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
)

// Events returns the whole event log, most recent first.
func (s *Service) Events(ctx context.Context) ([]*model.Event, error) {
	events, err := s.events.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// DeviceEvents returns the events of one device, most recent first.
func (s *Service) DeviceEvents(ctx context.Context, deviceID string) ([]*model.Event, error) {
	events, err := s.events.ListByDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events of %s: %w", deviceID, err)
	}
	return events, nil
}

// DeleteEvent removes one event. Unknown ids yield core.ErrNotFound.
func (s *Service) DeleteEvent(ctx context.Context, id string) error {
	if err := s.events.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete event %s: %w", id, err)
	}
	s.logger.Info("Event deleted", "id", id)
	return nil
}

// DeleteEvents clears the event log. Device state is untouched.
func (s *Service) DeleteEvents(ctx context.Context) error {
	if err := s.events.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to clear events: %w", err)
	}
	s.logger.Info("Event log cleared")
	return nil
}

// State returns the latest record of a device or core.ErrNotFound.
func (s *Service) State(deviceID string) (*model.TelemetryRecord, error) {
	rec, ok := s.states.Get(deviceID)
	if !ok {
		return nil, core.ErrNotFound
	}
	return rec, nil
}

// States returns the latest record of every known device.
func (s *Service) States() []*model.TelemetryRecord {
	return s.states.All()
}
