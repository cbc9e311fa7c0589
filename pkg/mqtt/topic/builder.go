package topic

import (
	"fmt"
	"strings"
)

// Topic segments shared by the hub and device-side gateways.
const (
	// SuffixTelemetry carries pipe-delimited payloads upstream (gateway -> hub).
	// Structure: {root}/telemetry/{deviceID}
	SuffixTelemetry = "telemetry"

	// SuffixCommand carries relayed operator commands downstream (hub -> gateway).
	// Structure: {root}/command/{deviceID}
	SuffixCommand = "command"
)

// TopicBuilder constructs topic strings under a fixed root namespace.
type TopicBuilder struct {
	root string
}

// NewTopicBuilder creates a new instance of TopicBuilder with the specified root namespace.
func NewTopicBuilder(root string) *TopicBuilder {
	return &TopicBuilder{root: strings.TrimSuffix(root, "/")}
}

// Root returns the namespace all topics are built under.
func (b *TopicBuilder) Root() string { return b.root }

// Telemetry returns the topic a gateway publishes a device's payloads to.
func (b *TopicBuilder) Telemetry(deviceID string) string {
	return b.build(SuffixTelemetry, deviceID)
}

// TelemetryWildcard is the hub subscription for every device's telemetry.
func (b *TopicBuilder) TelemetryWildcard() string {
	return b.build(SuffixTelemetry, Wildcard)
}

// Command returns the topic relayed commands for deviceID are published to.
func (b *TopicBuilder) Command(deviceID string) string {
	return b.build(SuffixCommand, deviceID)
}

// CommandWildcard is the gateway subscription for commands to any device.
func (b *TopicBuilder) CommandWildcard() string {
	return b.build(SuffixCommand, Wildcard)
}

// build yields {root}/{suffix}/{id}.
func (b *TopicBuilder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}

// DeviceID returns the last level of a concrete topic, which is where every
// per-device topic built here keeps the device id.
func DeviceID(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
