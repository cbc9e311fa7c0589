package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/beacon/internal/beaconhub/core/decoder"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/service"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/state"
	"github.com/autopeer-io/beacon/internal/beaconhub/live"
	"github.com/autopeer-io/beacon/internal/beaconhub/store"
	"github.com/autopeer-io/beacon/pkg/log"
	"github.com/autopeer-io/beacon/pkg/options"
)

type blockingServer struct{ stopped chan struct{} }

func (b *blockingServer) Start(ctx context.Context) error {
	<-ctx.Done()
	close(b.stopped)
	return nil
}

type failingServer struct{}

func (failingServer) Start(context.Context) error { return errors.New("bind: address in use") }

func TestManagerFirstErrorStopsOthers(t *testing.T) {
	blocker := &blockingServer{stopped: make(chan struct{})}
	m := NewManagerWith(blocker, failingServer{})

	err := m.Start(context.Background())
	assert.EqualError(t, err, "bind: address in use")

	select {
	case <-blocker.stopped:
	case <-time.After(time.Second):
		t.Fatal("blocking server was not cancelled")
	}
}

func TestNewManagerSkipsDisabledMqtt(t *testing.T) {
	states := state.NewTable()
	registry := live.NewRegistry(states, log.NewNopLogger())
	svc := service.New(decoder.New(decoder.Options{}), states, store.NewMemory(), registry, registry)

	cfg := &Config{
		HttpOptions: options.NewHttpOptions(),
		LiveOptions: options.NewLiveOptions(),
		MqttOptions: options.NewMqttOptions(),
	}
	m, err := NewManager(cfg, svc, registry)
	require.NoError(t, err)
	assert.Len(t, m.servers, 1)

	cfg.MqttOptions.Broker = "tcp://localhost:1883"
	m, err = NewManager(cfg, svc, registry)
	require.NoError(t, err)
	assert.Len(t, m.servers, 2)

	cfg.MqttOptions.Broker = "ftp://localhost"
	_, err = NewManager(cfg, svc, registry)
	assert.Error(t, err)
}
