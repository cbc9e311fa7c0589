package mqtt

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/beacon/internal/beaconhub/core/service"
	"github.com/autopeer-io/beacon/internal/beaconhub/live"
	"github.com/autopeer-io/beacon/internal/beaconhub/notifier"
	"github.com/autopeer-io/beacon/pkg/log"
	pkgmqtt "github.com/autopeer-io/beacon/pkg/mqtt"
	"github.com/autopeer-io/beacon/pkg/mqtt/topic"
)

const disconnectTimeout = 5 * time.Second

// Server implements the MQTT ingress layer. With a gateway it also relays
// commands back to devices.
type Server struct {
	client   pkgmqtt.Client
	topics   *topic.TopicBuilder
	qos      int
	svc      *service.Service
	registry *live.Registry
	gateway  *notifier.CommandGateway
	logger   log.Logger
}

// NewServer creates a new MQTT server (client). gateway may be nil.
func NewServer(
	client pkgmqtt.Client,
	builder *topic.TopicBuilder,
	qos int,
	svc *service.Service,
	registry *live.Registry,
	gateway *notifier.CommandGateway,
) *Server {
	return &Server{
		client:   client,
		topics:   builder,
		qos:      qos,
		svc:      svc,
		registry: registry,
		gateway:  gateway,
		logger:   log.WithName("mqtt-server"),
	}
}

// Start connects to the broker, subscribes to device telemetry and blocks
// until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		return err
	}

	defer func() {
		s.logger.Info("Disconnecting MQTT client...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		s.client.Disconnect(shutdownCtx)
	}()

	s.logger.Info("Waiting for MQTT connection...")
	if err := s.client.AwaitConnection(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	s.logger.Info("MQTT Connected")

	if err := s.subscribe(ctx); err != nil {
		return err
	}

	if s.gateway != nil {
		if err := s.registry.Register(s.gateway); err != nil {
			return fmt.Errorf("failed to register command gateway: %w", err)
		}
		defer s.registry.Unregister(s.gateway.ID())
		go s.gateway.Run(ctx)
	}

	<-ctx.Done()
	if s.gateway != nil {
		s.gateway.Stop()
	}
	return nil
}

func (s *Server) subscribe(ctx context.Context) error {
	filter := s.topics.TelemetryWildcard()
	if err := s.client.Subscribe(ctx, filter, s.qos, s.handleTelemetry); err != nil {
		return fmt.Errorf("failed to subscribe to topic: %s, err: %w", filter, err)
	}
	return nil
}
