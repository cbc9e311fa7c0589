package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/autopeer-io/beacon/internal/beaconhub/core"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
	"github.com/autopeer-io/beacon/internal/pkg/metrics"
)

// Acknowledge relays an ACK for deviceID to every open receiver and returns
// how many took it. core.ErrNoReceivers means nobody did.
func (s *Service) Acknowledge(ctx context.Context, deviceID string) (int, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return 0, fmt.Errorf("%w: deviceId is required", core.ErrMalformedRequest)
	}

	cmd := &model.Command{
		Name:     model.CommandAck,
		DeviceID: deviceID,
		IssuedAt: s.now(),
	}

	delivered, err := s.relay.Relay(ctx, cmd)
	if err != nil {
		result := "error"
		if errors.Is(err, core.ErrNoReceivers) {
			result = "no_receivers"
		}
		metrics.RelayTotal.WithLabelValues(string(cmd.Name), result).Inc()
		s.logger.Warn("Command not delivered", "command", cmd.Name, "deviceId", deviceID, "error", err)
		return 0, err
	}

	metrics.RelayTotal.WithLabelValues(string(cmd.Name), "delivered").Inc()
	s.logger.Info("Command relayed", "command", cmd.Name, "deviceId", deviceID, "delivered", delivered)
	return delivered, nil
}
