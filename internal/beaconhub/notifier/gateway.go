package notifier

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
	"github.com/autopeer-io/beacon/internal/beaconhub/live"
	"github.com/autopeer-io/beacon/internal/pkg/metrics"
	"github.com/autopeer-io/beacon/pkg/log"
	pkgmqtt "github.com/autopeer-io/beacon/pkg/mqtt"
	"github.com/autopeer-io/beacon/pkg/mqtt/topic"
)

const (
	sinkMQTT = "mqtt"

	// GatewayPeerID identifies the MQTT command gateway in the live registry.
	GatewayPeerID = "mqtt-command-gateway"

	publishTimeout = 10 * time.Second
)

var _ live.Peer = (*CommandGateway)(nil)

// CommandGateway is a receiver peer that republishes relayed commands to
// {root}/command/{deviceId}. It counts as a receiver only while the broker
// connection is up.
type CommandGateway struct {
	client pkgmqtt.Publisher
	topics *topic.TopicBuilder
	qos    int

	queue    chan *live.Message
	stopOnce sync.Once
	stopped  chan struct{}
	logger   log.Logger
}

func NewCommandGateway(client pkgmqtt.Publisher, topics *topic.TopicBuilder, qos, buffer int) *CommandGateway {
	if buffer <= 0 {
		buffer = 1
	}
	return &CommandGateway{
		client:  client,
		topics:  topics,
		qos:     qos,
		queue:   make(chan *live.Message, buffer),
		stopped: make(chan struct{}),
		logger:  log.WithName("command-gateway"),
	}
}

func (g *CommandGateway) ID() string { return GatewayPeerID }

func (g *CommandGateway) Role() model.Role { return model.RoleReceiver }

func (g *CommandGateway) Send(msg *live.Message) bool {
	if g.Closed() || msg.Kind != live.KindCommand {
		return false
	}
	select {
	case g.queue <- msg:
		return true
	default:
		return false
	}
}

func (g *CommandGateway) Closed() bool {
	select {
	case <-g.stopped:
		return true
	default:
		return !g.client.IsConnected()
	}
}

// Run publishes queued commands until ctx is done or Stop is called.
func (g *CommandGateway) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			g.Stop()
			return
		case <-g.stopped:
			return
		case msg := <-g.queue:
			g.publish(ctx, msg)
		}
	}
}

func (g *CommandGateway) Stop() {
	g.stopOnce.Do(func() { close(g.stopped) })
}

func (g *CommandGateway) publish(ctx context.Context, msg *live.Message) {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		g.fail(err, msg.DeviceID)
		return
	}

	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := g.client.Publish(pctx, g.topics.Command(msg.DeviceID), g.qos, false, env.Data); err != nil {
		g.fail(err, msg.DeviceID)
		return
	}
	g.logger.Debug("Published command", "deviceId", msg.DeviceID)
}

func (g *CommandGateway) fail(err error, deviceID string) {
	metrics.MirrorErrorsTotal.WithLabelValues(sinkMQTT).Inc()
	g.logger.Error(err, "Failed to publish command", "deviceId", deviceID)
}
