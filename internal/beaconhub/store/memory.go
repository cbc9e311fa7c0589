package store

import (
	"context"
	"sync"
	"time"

	"github.com/autopeer-io/beacon/internal/beaconhub/core"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
)

var _ core.EventStore = (*Memory)(nil)

// Memory is a process-local EventStore. Its contents do not survive a restart.
type Memory struct {
	mu     sync.RWMutex
	events []*model.Event
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

func (m *Memory) Append(_ context.Context, event *model.Event) error {
	if event == nil {
		return errNilEvent
	}
	event.ID = newEventID()
	if event.RecordedAt.IsZero() {
		event.RecordedAt = m.now()
	}

	m.mu.Lock()
	m.events = append(m.events, cloneEvent(event))
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(ctx context.Context) ([]*model.Event, error) {
	return m.filter(ctx, func(*model.Event) bool { return true })
}

func (m *Memory) ListByDevice(ctx context.Context, deviceID string) ([]*model.Event, error) {
	return m.filter(ctx, func(e *model.Event) bool { return e.Record.DeviceID == deviceID })
}

func (m *Memory) filter(ctx context.Context, keep func(*model.Event) bool) ([]*model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	out := make([]*model.Event, 0, len(m.events))
	// newest appends first, so equal timestamps keep arrival order reversed
	for i := len(m.events) - 1; i >= 0; i-- {
		if keep(m.events[i]) {
			out = append(out, cloneEvent(m.events[i]))
		}
	}
	m.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.events {
		if e.ID == id {
			m.events = append(m.events[:i], m.events[i+1:]...)
			return nil
		}
	}
	return core.ErrNotFound
}

func (m *Memory) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	m.events = nil
	m.mu.Unlock()
	return nil
}

func (m *Memory) Latest(ctx context.Context, deviceID string) (*model.Event, error) {
	events, err := m.ListByDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, core.ErrNotFound
	}
	return events[0], nil
}

func (m *Memory) Devices(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	var ids []string
	for _, e := range m.events {
		if _, ok := seen[e.Record.DeviceID]; ok {
			continue
		}
		seen[e.Record.DeviceID] = struct{}{}
		ids = append(ids, e.Record.DeviceID)
	}
	return ids, nil
}
