package beaconhub

import (
	"context"
	"io"
	"time"

	"github.com/autopeer-io/beacon/internal/beaconhub/core"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/service"
	"github.com/autopeer-io/beacon/internal/beaconhub/notifier"
	"github.com/autopeer-io/beacon/internal/beaconhub/server"
	"github.com/autopeer-io/beacon/pkg/log"
)

const mirrorFlushTimeout = 5 * time.Second

// HubServer is the main application struct for the beacon hub.
type HubServer struct {
	serverManager *server.Manager
	svc           *service.Service
	events        core.EventStore
	mirror        *notifier.KafkaMirror
	seedTimeout   time.Duration
}

// Run seeds device state from the event store and then serves until ctx is
// done. A failed seed is logged and the hub starts empty.
func (h *HubServer) Run(ctx context.Context) error {
	log.Info("Starting Beacon Hub...")
	defer h.close()

	h.seed(ctx)

	return h.serverManager.Start(ctx)
}

// SetPersistModes applies a reloaded persistence policy.
func (h *HubServer) SetPersistModes(modes []string) {
	h.svc.SetPersistModes(modes)
}

func (h *HubServer) seed(ctx context.Context) {
	if h.seedTimeout <= 0 {
		log.Info("Startup seeding disabled", "seedTimeout", h.seedTimeout)
		return
	}
	seedCtx, cancel := context.WithTimeout(ctx, h.seedTimeout)
	defer cancel()

	n, err := h.svc.Seed(seedCtx)
	if err != nil {
		log.Error(err, "Failed to seed device state, starting empty")
		return
	}
	log.Info("Seeded device state", "devices", n)
}

func (h *HubServer) close() {
	if h.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorFlushTimeout)
		if err := h.mirror.Close(ctx); err != nil {
			log.Error(err, "Failed to flush kafka mirror")
		}
		cancel()
	}
	if c, ok := h.events.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Error(err, "Failed to close event store")
		}
	}
}
