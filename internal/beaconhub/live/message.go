package live

import (
	"encoding/json"

	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
)

// Message kinds on the live channel.
const (
	KindHello     = "hello"
	KindTelemetry = "telemetry"
	KindCommand   = "command"
)

// Message is one outbound frame. Body is the encoded envelope shared by every
// peer the message is fanned out to; it must not be modified.
type Message struct {
	Kind     string
	DeviceID string
	Body     []byte
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func newMessage(kind, deviceID string, data any) (*Message, error) {
	body, err := json.Marshal(envelope{Type: kind, Data: data})
	if err != nil {
		return nil, err
	}
	return &Message{Kind: kind, DeviceID: deviceID, Body: body}, nil
}

// TelemetryMessage wraps a record for viewers.
func TelemetryMessage(rec *model.TelemetryRecord) (*Message, error) {
	return newMessage(KindTelemetry, rec.DeviceID, rec)
}

// CommandMessage wraps a relayed command for receivers.
func CommandMessage(cmd *model.Command) (*Message, error) {
	return newMessage(KindCommand, cmd.DeviceID, cmd)
}

type hello struct {
	ID   string     `json:"id"`
	Role model.Role `json:"role"`
}

func helloMessage(id string, role model.Role) (*Message, error) {
	return newMessage(KindHello, "", hello{ID: id, Role: role})
}
