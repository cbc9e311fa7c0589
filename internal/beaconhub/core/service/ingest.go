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

// Ingest runs one submission through decode, state update, broadcast and the
// persistence policy.
//
// Decode failures are returned and nothing else happens. Once a record is
// decoded the call always succeeds: a failed append is logged and reported
// through Ack.Persisted and Ack.Message.
func (s *Service) Ingest(ctx context.Context, sub model.Submission) (*model.Ack, error) {
	start := s.now()
	transport := sub.Transport
	if transport == "" {
		transport = "unknown"
	}

	rec, err := s.decode(sub)
	if err != nil {
		metrics.ObserveIngest(transport, "", rejectResult(err), s.now().Sub(start))
		return nil, err
	}

	rec.ReceivedAt = s.now()

	if stored := s.states.Upsert(rec); stored != nil {
		rec = stored
	}
	s.broadcaster.Broadcast(ctx, rec)

	ack := &model.Ack{
		Success:  true,
		Message:  model.AckReceived,
		DeviceID: rec.DeviceID,
		Mode:     rec.Mode,
	}
	result := metrics.ResultReceived

	if s.ShouldPersist(rec.Mode) {
		id, err := s.persist(ctx, rec)
		if err != nil {
			metrics.PersistFailuresTotal.Inc()
			s.logger.Error(err, "Failed to record event", "deviceId", rec.DeviceID, "mode", rec.Mode)
			ack.Message = model.AckRecordingFail
			result = metrics.ResultRecordFailed
		} else {
			ack.Persisted = true
			ack.EventID = id
			ack.Message = model.AckRecorded
			result = metrics.ResultRecorded
		}
	}

	metrics.ObserveIngest(transport, modeLabel(rec.Mode), result, s.now().Sub(start))
	s.logger.Debug("Ingested telemetry", "deviceId", rec.DeviceID, "mode", rec.Mode, "persisted", ack.Persisted)
	return ack, nil
}

func (s *Service) decode(sub model.Submission) (*model.TelemetryRecord, error) {
	if strings.TrimSpace(sub.Payload) == "" {
		return nil, fmt.Errorf("%w: payload is required", core.ErrMalformedRequest)
	}
	status := strings.TrimSpace(sub.Status)
	if s.requireStatus && status == "" {
		return nil, fmt.Errorf("%w: status is required", core.ErrMalformedRequest)
	}

	rec, err := s.decoder.Decode(sub.Payload)
	if err != nil {
		return nil, err
	}
	if rec.Mode == "" && status != "" {
		rec.Mode = model.Mode(status)
	}
	return rec, nil
}

// persist appends rec under the persist timeout. The append is detached from
// ctx cancellation so a client hanging up does not abort it half way.
func (s *Service) persist(ctx context.Context, rec *model.TelemetryRecord) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()

	event := &model.Event{Record: *rec.Clone(), RecordedAt: s.now()}
	if err := s.events.Append(ctx, event); err != nil {
		return "", err
	}
	return event.ID, nil
}

func rejectResult(err error) string {
	switch {
	case errors.Is(err, core.ErrMissingDeviceID):
		return metrics.ResultMissingDeviceID
	case errors.Is(err, core.ErrInsufficientFields):
		return metrics.ResultInsufficient
	default:
		return metrics.ResultMalformed
	}
}

func modeLabel(m model.Mode) string {
	if m.Known() {
		return string(m)
	}
	return "OTHER"
}
