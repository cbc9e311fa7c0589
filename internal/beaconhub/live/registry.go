// Package live keeps the set of connected peers and fans updates and
// commands out to them.
package live

import (
	"context"
	"errors"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/autopeer-io/beacon/internal/beaconhub/core"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
	"github.com/autopeer-io/beacon/internal/pkg/metrics"
	"github.com/autopeer-io/beacon/pkg/log"
)

// Peer is a registered live connection.
type Peer interface {
	ID() string
	Role() model.Role

	// Send queues msg without blocking. It returns false when the message
	// was dropped because the peer is closed or its queue is full.
	Send(msg *Message) bool

	// Closed reports whether the peer's transport has gone away.
	Closed() bool
}

// Replayer is implemented by peers that take the initial state replay as one
// batch delivered ahead of anything queued through Send. The records are
// private copies; encoding them is left to the peer so the registry lock is
// not held for it.
type Replayer interface {
	Replay(records []*model.TelemetryRecord)
}

var (
	_ core.Broadcaster  = (*Registry)(nil)
	_ core.CommandRelay = (*Registry)(nil)

	ErrDuplicatePeer = errors.New("peer already registered")
)

// Registry tracks live peers. Viewers get a replay of the latest state of
// every device on registration and every broadcast afterwards. Receivers get
// relayed commands.
type Registry struct {
	mu     sync.RWMutex
	peers  map[string]Peer
	states core.StateSource

	// sent holds the sequence number of the last record fanned out per
	// device. Fan-out for a device runs under that device's shard lock.
	sent cmap.ConcurrentMap[string, uint64]

	logger log.Logger
}

func NewRegistry(states core.StateSource, logger log.Logger) *Registry {
	if logger == nil {
		logger = log.WithName("live")
	}
	return &Registry{
		peers:  make(map[string]Peer),
		states: states,
		sent:   cmap.New[uint64](),
		logger: logger,
	}
}

// Register adds p. For viewers the state snapshot is taken and handed to p
// while the registry is locked, so no broadcast can overtake it.
func (r *Registry) Register(p Peer) error {
	r.mu.Lock()
	if _, ok := r.peers[p.ID()]; ok {
		r.mu.Unlock()
		return ErrDuplicatePeer
	}
	if p.Role() == model.RoleViewer && r.states != nil {
		r.replay(p, r.states.All())
	}
	r.peers[p.ID()] = p
	r.mu.Unlock()

	metrics.LivePeers.WithLabelValues(string(p.Role())).Inc()
	r.logger.Info("Peer registered", "peer", p.ID(), "role", p.Role())
	return nil
}

// replay hands records to p. Peers that are not Replayers get them encoded
// and queued one by one.
func (r *Registry) replay(p Peer, records []*model.TelemetryRecord) {
	if rp, ok := p.(Replayer); ok {
		rp.Replay(records)
		return
	}
	for _, rec := range records {
		msg, err := TelemetryMessage(rec)
		if err != nil {
			r.logger.Error(err, "Failed to encode replay record", "deviceId", rec.DeviceID)
			continue
		}
		p.Send(msg)
	}
}

// Unregister removes the peer with id. Unknown ids are ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	p, ok := r.peers[id]
	if ok {
		delete(r.peers, id)
	}
	r.mu.Unlock()

	if ok {
		metrics.LivePeers.WithLabelValues(string(p.Role())).Dec()
		r.logger.Info("Peer unregistered", "peer", id, "role", p.Role())
	}
}

// Count returns the number of registered peers with role.
func (r *Registry) Count(role model.Role) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, p := range r.peers {
		if p.Role() == role {
			n++
		}
	}
	return n
}

func (r *Registry) snapshot(role model.Role) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		if p.Role() == role {
			out = append(out, p)
		}
	}
	return out
}

// Broadcast sends rec to every open viewer. A viewer that cannot take the
// message right now misses it; nobody waits for it.
//
// Records stamped by the state table are fanned out in sequence order per
// device: a record older than the last one sent for its device is skipped,
// so the last update a viewer sees matches the table.
func (r *Registry) Broadcast(_ context.Context, rec *model.TelemetryRecord) {
	msg, err := TelemetryMessage(rec)
	if err != nil {
		r.logger.Error(err, "Failed to encode broadcast", "deviceId", rec.DeviceID)
		return
	}

	if rec.Seq == 0 {
		r.fanout(msg)
		return
	}

	superseded := false
	r.sent.Upsert(rec.DeviceID, rec.Seq, func(exist bool, last, seq uint64) uint64 {
		if exist && seq <= last {
			superseded = true
			return last
		}
		r.fanout(msg)
		return seq
	})
	if superseded {
		metrics.BroadcastSupersededTotal.Inc()
		r.logger.Debug("Skipped superseded broadcast", "deviceId", rec.DeviceID, "seq", rec.Seq)
	}
}

func (r *Registry) fanout(msg *Message) {
	for _, p := range r.snapshot(model.RoleViewer) {
		if p.Closed() || !p.Send(msg) {
			metrics.BroadcastDroppedTotal.WithLabelValues(string(model.RoleViewer)).Inc()
			r.logger.Debug("Dropped broadcast for peer", "peer", p.ID(), "deviceId", msg.DeviceID)
		}
	}
}

// Relay sends cmd to every open receiver and returns how many accepted it.
func (r *Registry) Relay(_ context.Context, cmd *model.Command) (int, error) {
	msg, err := CommandMessage(cmd)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, p := range r.snapshot(model.RoleReceiver) {
		if p.Closed() {
			continue
		}
		if p.Send(msg) {
			delivered++
			continue
		}
		metrics.BroadcastDroppedTotal.WithLabelValues(string(model.RoleReceiver)).Inc()
	}

	if delivered == 0 {
		return 0, core.ErrNoReceivers
	}
	return delivered, nil
}
