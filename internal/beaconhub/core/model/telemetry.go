package model

import "time"

// Mode is the operating mode a device reports. Values outside the known set
// are carried through unchanged.
type Mode string

const (
	ModeEmergency Mode = "EMERGENCY"
	ModeNormal    Mode = "NORMAL"
	ModeStatus    Mode = "STATUS"
)

// Known reports whether m is one of the modes the hub gives meaning to.
func (m Mode) Known() bool {
	switch m {
	case ModeEmergency, ModeNormal, ModeStatus:
		return true
	}
	return false
}

func (m Mode) String() string { return string(m) }

// TelemetryRecord is one decoded device message.
//
// Optional fields are nil when the device did not report them. Latitude and
// Longitude are nil for missing, non-numeric or NaN coordinates.
type TelemetryRecord struct {
	DeviceID   string   `json:"deviceId"`
	Mode       Mode     `json:"mode"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	Speed      *string  `json:"speed,omitempty"`
	Satellites *string  `json:"satellites,omitempty"`
	Uptime     string   `json:"uptime"`
	RSSI       *string  `json:"rssi,omitempty"`
	SNR        *string  `json:"snr,omitempty"`

	// RawPayload is the submitted payload, byte for byte.
	RawPayload string `json:"rawPayload"`

	ReceivedAt time.Time `json:"receivedAt"`

	// Seq orders the updates of one device. The state table assigns it on
	// every write; zero means the record was never stored.
	Seq uint64 `json:"-"`
}

// HasPosition reports whether both coordinates are present.
func (r *TelemetryRecord) HasPosition() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Clone returns a deep copy, so the copy can be stored or handed out without
// sharing optional fields.
func (r *TelemetryRecord) Clone() *TelemetryRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Latitude = cloneFloat(r.Latitude)
	c.Longitude = cloneFloat(r.Longitude)
	c.Speed = cloneString(r.Speed)
	c.Satellites = cloneString(r.Satellites)
	c.RSSI = cloneString(r.RSSI)
	c.SNR = cloneString(r.SNR)
	return &c
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
