package beaconhub

import (
	"context"
	"fmt"

	"github.com/autopeer-io/beacon/internal/beaconhub/core"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/decoder"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/service"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/state"
	"github.com/autopeer-io/beacon/internal/beaconhub/live"
	"github.com/autopeer-io/beacon/internal/beaconhub/notifier"
	"github.com/autopeer-io/beacon/internal/beaconhub/server"
	"github.com/autopeer-io/beacon/internal/beaconhub/server/http"
	"github.com/autopeer-io/beacon/internal/beaconhub/store"
	"github.com/autopeer-io/beacon/pkg/log"
	"github.com/autopeer-io/beacon/pkg/options"
)

type Config struct {
	HttpOptions     *options.HttpOptions
	LiveOptions     *options.LiveOptions
	MqttOptions     *options.MqttOptions
	StoreOptions    *options.StoreOptions
	PostgresOptions *options.PostgresOptions
	S3Options       *options.S3Options
	KafkaOptions    *options.KafkaOptions
	IngestOptions   *options.IngestOptions
}

// NewHubServer wires the adapters around the core service. ctx bounds the
// store connection attempts.
func (cfg *Config) NewHubServer(ctx context.Context) (*HubServer, error) {
	// 1. Infrastructure: event store (Secondary Adapter)
	events, err := cfg.newEventStore(ctx)
	if err != nil {
		return nil, err
	}

	// 2. Live state and fan-out
	states := state.NewTable()
	registry := live.NewRegistry(states, nil)

	hub := &HubServer{
		events:      events,
		seedTimeout: cfg.StoreOptions.SeedTimeout,
	}

	var broadcaster core.Broadcaster = registry
	if cfg.KafkaOptions.Enabled() {
		hub.mirror = notifier.NewKafkaMirror(cfg.KafkaOptions)
		broadcaster = notifier.NewMulti(registry, hub.mirror)
	}

	// 3. Core Domain Service (The Business Logic)
	dec := decoder.New(decoder.Options{
		Generation:         decoder.Generation(cfg.IngestOptions.Generation),
		ImplicitDeviceID:   cfg.IngestOptions.ImplicitDeviceID,
		AllowMinimalStatus: cfg.IngestOptions.AllowMinimalStatus,
	})
	hub.svc = service.New(dec, states, events, broadcaster, registry,
		service.WithPersistModes(toModes(cfg.IngestOptions.PersistModes)...),
		service.WithPersistTimeout(cfg.IngestOptions.PersistTimeout),
		service.WithRequireStatus(cfg.IngestOptions.RequireStatus),
	)

	// 4. Ingress Servers (Primary Adapters)
	serverConfig := &server.Config{
		HttpOptions: cfg.HttpOptions,
		LiveOptions: cfg.LiveOptions,
		MqttOptions: cfg.MqttOptions,
	}
	var checks []http.ReadyCheck
	if p, ok := events.(pinger); ok {
		checks = append(checks, p.Ping)
	}
	hub.serverManager, err = server.NewManager(serverConfig, hub.svc, registry, checks...)
	if err != nil {
		hub.close()
		return nil, fmt.Errorf("failed to init server manager: %w", err)
	}

	return hub, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (cfg *Config) newEventStore(ctx context.Context) (core.EventStore, error) {
	switch cfg.StoreOptions.Backend {
	case options.StorePostgres:
		s, err := store.OpenPostgres(ctx, cfg.PostgresOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to init postgres store: %w", err)
		}
		return s, nil
	case options.StoreS3:
		s, err := store.NewS3(ctx, cfg.S3Options)
		if err != nil {
			return nil, fmt.Errorf("failed to init s3 store: %w", err)
		}
		return s, nil
	case options.StoreMemory, "":
		log.Warn("Using the in-memory event store; events are lost on restart")
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreOptions.Backend)
	}
}

func toModes(in []string) []model.Mode {
	out := make([]model.Mode, 0, len(in))
	for _, m := range in {
		out = append(out, model.Mode(m))
	}
	return out
}
