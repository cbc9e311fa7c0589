package model

import "time"

// Event is a TelemetryRecord that the persistence policy selected for the
// event log. ID is assigned by the store on append.
type Event struct {
	ID         string          `json:"id"`
	RecordedAt time.Time       `json:"recordedAt"`
	Record     TelemetryRecord `json:"record"`
}

// Submission is an ingestion request as received by a transport.
type Submission struct {
	// Status optionally names the mode. It is used when the payload's own
	// mode field is empty.
	Status string `json:"status,omitempty"`

	Payload string `json:"payload"`

	// Transport names the ingress the submission arrived on, for metrics.
	Transport string `json:"-"`
}

// Ack is the outcome of one ingestion.
type Ack struct {
	Success   bool   `json:"success"`
	Persisted bool   `json:"persisted"`
	Message   string `json:"message"`
	DeviceID  string `json:"deviceId"`
	Mode      Mode   `json:"mode"`
	EventID   string `json:"eventId,omitempty"`
}

// Ack messages.
const (
	AckReceived      = "received"
	AckRecorded      = "received and recorded"
	AckRecordingFail = "received; recording failed"
)
