package mqtt_test

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/beacon/pkg/log"
	"github.com/autopeer-io/beacon/pkg/mqtt"
	"github.com/autopeer-io/beacon/pkg/mqtt/topic"
)

// ExampleClient shows a gateway-facing component subscribing to device
// telemetry and publishing a command back to one device.
func ExampleClient() {
	cfg := &mqtt.ClientConfig{
		BrokerURL:      "tcp://localhost:1883",
		ClientID:       "beacon-hub-example",
		KeepAlive:      30,
		ConnectTimeout: 5 * time.Second,
		CleanStart:     true,
	}

	client, err := mqtt.NewClient(cfg)
	if err != nil {
		log.Error(err, "Failed to create MQTT client")
		return
	}

	ctx := context.Background()
	if err := client.Start(ctx); err != nil {
		log.Error(err, "Failed to start MQTT client")
		return
	}

	topics := topic.NewTopicBuilder("beacon/v1")

	onTelemetry := func(ctx context.Context, t string, payload []byte) {
		fmt.Printf("telemetry from %s: %s\n", topic.DeviceID(t), payload)
	}
	if err := client.Subscribe(ctx, topics.TelemetryWildcard(), 1, onTelemetry); err != nil {
		log.Error(err, "Failed to subscribe")
	}

	if err := client.AwaitConnection(ctx); err != nil {
		return
	}

	if err := client.Publish(ctx, topics.Command("tracker-01"), 1, false, []byte(`{"name":"ACK"}`)); err != nil {
		log.Error(err, "Failed to publish command")
	}

	client.Disconnect(ctx)
}
