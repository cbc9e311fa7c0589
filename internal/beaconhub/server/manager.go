package server

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/beacon/internal/beaconhub/core/service"
	"github.com/autopeer-io/beacon/internal/beaconhub/live"
	"github.com/autopeer-io/beacon/internal/beaconhub/notifier"
	"github.com/autopeer-io/beacon/internal/beaconhub/server/http"
	"github.com/autopeer-io/beacon/internal/beaconhub/server/mqtt"
	"github.com/autopeer-io/beacon/pkg/log"
	pkgmqtt "github.com/autopeer-io/beacon/pkg/mqtt"
	"github.com/autopeer-io/beacon/pkg/mqtt/topic"
)

// Server defines the common interface for all sub-servers (http, mqtt).
type Server interface {
	Start(ctx context.Context) error
}

// Manager manages the lifecycle of all protocol servers.
type Manager struct {
	servers []Server
}

// NewManager creates a new server manager and initializes all sub-servers.
// The MQTT server is only created when a broker is configured.
func NewManager(cfg *Config, svc *service.Service, registry *live.Registry, checks ...http.ReadyCheck) (*Manager, error) {
	var servers []Server

	// 1. HTTP: REST, live channel, probes and metrics.
	servers = append(servers, http.NewServer(cfg.HttpOptions, cfg.LiveOptions, svc, registry, checks...))

	// 2. MQTT: device telemetry in, commands out.
	if cfg.MqttOptions.Enabled() {
		client, err := pkgmqtt.NewClient(cfg.MqttOptions.ToClientConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to init mqtt client: %w", err)
		}

		topics := topic.NewTopicBuilder(cfg.MqttOptions.TopicRoot)
		var gateway *notifier.CommandGateway
		if cfg.MqttOptions.CommandGateway {
			gateway = notifier.NewCommandGateway(client, topics, cfg.MqttOptions.QoS, cfg.LiveOptions.SendBuffer)
		}
		servers = append(servers, mqtt.NewServer(client, topics, cfg.MqttOptions.QoS, svc, registry, gateway))
	}

	return &Manager{servers: servers}, nil
}

// NewManagerWith runs the given servers.
func NewManagerWith(servers ...Server) *Manager {
	return &Manager{servers: servers}
}

// Start launches all servers in parallel and waits for termination. The first
// server error cancels the others.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting...", "count", len(m.servers))
	return g.Wait()
}
