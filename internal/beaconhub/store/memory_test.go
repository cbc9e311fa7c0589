package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/beacon/internal/beaconhub/core"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
)

func event(device string, mode model.Mode, at time.Time) *model.Event {
	return &model.Event{Record: model.TelemetryRecord{DeviceID: device, Mode: mode, Uptime: "0", ReceivedAt: at}}
}

func TestMemoryAppendAssignsIDs(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a, b := event("A", model.ModeNormal, time.Now()), event("A", model.ModeNormal, time.Now())
	require.NoError(t, m.Append(ctx, a))
	require.NoError(t, m.Append(ctx, b))

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.RecordedAt.IsZero())
	assert.Error(t, m.Append(ctx, nil))
}

func TestMemoryListNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.Append(ctx, event("A", model.ModeNormal, base.Add(2*time.Second))))
	require.NoError(t, m.Append(ctx, event("B", model.ModeEmergency, base)))
	require.NoError(t, m.Append(ctx, event("A", model.ModeEmergency, base.Add(5*time.Second))))

	all, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, base.Add(5*time.Second), all[0].Record.ReceivedAt)
	assert.Equal(t, base.Add(2*time.Second), all[1].Record.ReceivedAt)
	assert.Equal(t, base, all[2].Record.ReceivedAt)

	byA, err := m.ListByDevice(ctx, "A")
	require.NoError(t, err)
	require.Len(t, byA, 2)
	assert.Equal(t, model.ModeEmergency, byA[0].Record.Mode)

	none, err := m.ListByDevice(ctx, "Z")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryEqualTimestampsKeepLatestAppendFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	at := time.Now()

	first := event("A", model.ModeNormal, at)
	second := event("A", model.ModeEmergency, at)
	first.RecordedAt, second.RecordedAt = at, at
	require.NoError(t, m.Append(ctx, first))
	require.NoError(t, m.Append(ctx, second))

	latest, err := m.Latest(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	e := event("A", model.ModeNormal, time.Now())
	require.NoError(t, m.Append(ctx, e))

	assert.ErrorIs(t, m.Delete(ctx, "missing"), core.ErrNotFound)
	require.NoError(t, m.Delete(ctx, e.ID))
	assert.ErrorIs(t, m.Delete(ctx, e.ID), core.ErrNotFound)

	all, _ := m.List(ctx)
	assert.Empty(t, all)
}

func TestMemoryDeleteAllAndLatest(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Latest(ctx, "A")
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, m.Append(ctx, event("A", model.ModeNormal, time.Now())))
	require.NoError(t, m.Append(ctx, event("B", model.ModeNormal, time.Now())))

	ids, err := m.Devices(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, ids)

	require.NoError(t, m.DeleteAll(ctx))
	all, _ := m.List(ctx)
	assert.Empty(t, all)
	ids, _ = m.Devices(ctx)
	assert.Empty(t, ids)
}

func TestMemoryReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Append(ctx, event("A", model.ModeNormal, time.Now())))

	all, _ := m.List(ctx)
	all[0].Record.Mode = model.ModeStatus

	again, _ := m.List(ctx)
	assert.Equal(t, model.ModeNormal, again[0].Record.Mode)
}

func TestMemoryHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemory().List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
