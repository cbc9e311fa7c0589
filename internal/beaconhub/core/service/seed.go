package service

import (
	"context"
	"fmt"

	"github.com/autopeer-io/beacon/internal/pkg/metrics"
)

// Seed loads the latest persisted record of every device in the event log
// into the state table. Devices that fail to load are skipped; records older
// than state that arrived meanwhile are ignored.
func (s *Service) Seed(ctx context.Context) (int, error) {
	ids, err := s.events.Devices(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list devices: %w", err)
	}

	seeded := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return seeded, err
		}
		e, err := s.events.Latest(ctx, id)
		if err != nil {
			s.logger.Warn("Skipping device during seeding", "deviceId", id, "error", err)
			continue
		}
		if s.states.Seed(&e.Record) {
			seeded++
		}
	}

	metrics.SeededDevices.Set(float64(seeded))
	s.logger.Info("Device state seeded from event log", "devices", len(ids), "seeded", seeded)
	return seeded, nil
}
