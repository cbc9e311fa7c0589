package model

import "time"

// CommandName identifies an operator instruction relayed to receivers.
type CommandName string

const (
	// CommandAck tells a device its alert has been seen.
	CommandAck CommandName = "ACK"
)

// Command is relayed to every open receiver. Receivers decide whether the
// DeviceID is theirs.
type Command struct {
	Name     CommandName `json:"name"`
	DeviceID string      `json:"deviceId"`
	IssuedAt time.Time   `json:"issuedAt"`
}

// Role distinguishes live connections.
type Role string

const (
	// RoleViewer receives state replays and broadcast updates.
	RoleViewer Role = "viewer"

	// RoleReceiver is a device-side gateway that accepts relayed commands.
	RoleReceiver Role = "receiver"
)

// ParseRole maps a wire value to a Role. Anything but "receiver" is a viewer.
func ParseRole(s string) Role {
	if Role(s) == RoleReceiver {
		return RoleReceiver
	}
	return RoleViewer
}
