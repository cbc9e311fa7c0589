package mqtt

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
	"github.com/autopeer-io/beacon/pkg/mqtt/topic"
)

const transportMQTT = "mqtt"

// handleTelemetry ingests one device message. A JSON object is read as a
// submission, anything else as the raw pipe-delimited payload.
func (s *Server) handleTelemetry(ctx context.Context, t string, payload []byte) {
	sub := parseSubmission(payload)
	sub.Transport = transportMQTT

	ack, err := s.svc.Ingest(ctx, sub)
	if err != nil {
		s.logger.Warn("Rejected telemetry", "topic", t, "topicDevice", topic.DeviceID(t), "error", err)
		return
	}
	if ack.DeviceID != topic.DeviceID(t) {
		s.logger.Debug("Payload device differs from topic", "topic", t, "deviceId", ack.DeviceID)
	}
}

func parseSubmission(payload []byte) model.Submission {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var sub model.Submission
		if err := json.Unmarshal(trimmed, &sub); err == nil {
			return sub
		}
	}
	return model.Submission{Payload: string(payload)}
}
