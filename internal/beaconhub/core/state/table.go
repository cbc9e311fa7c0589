// Package state keeps the latest known record of every device.
package state

import (
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
)

// Table maps device id to its latest record. Writes to one key are atomic and
// the last write wins; records are copied in and out so callers never share
// memory with the table. Entries are never removed.
type Table struct {
	m cmap.ConcurrentMap[string, *model.TelemetryRecord]
}

func NewTable() *Table {
	return &Table{m: cmap.New[*model.TelemetryRecord]()}
}

// Upsert stores record as the latest state of record.DeviceID and returns a
// copy of what was stored, stamped with the device's next sequence number.
// It returns nil for records without a device id.
func (t *Table) Upsert(record *model.TelemetryRecord) *model.TelemetryRecord {
	if record == nil || record.DeviceID == "" {
		return nil
	}
	stored := t.m.Upsert(record.DeviceID, record.Clone(), func(exist bool, current, candidate *model.TelemetryRecord) *model.TelemetryRecord {
		candidate.Seq = nextSeq(exist, current)
		return candidate
	})
	return stored.Clone()
}

// Seed stores record unless a record received at or after it is already
// present. Startup seeding uses it so live traffic is never overwritten by
// older persisted state.
func (t *Table) Seed(record *model.TelemetryRecord) bool {
	if record == nil || record.DeviceID == "" {
		return false
	}
	seeded := false
	t.m.Upsert(record.DeviceID, record.Clone(), func(exist bool, current, candidate *model.TelemetryRecord) *model.TelemetryRecord {
		if exist && !current.ReceivedAt.Before(candidate.ReceivedAt) {
			return current
		}
		candidate.Seq = nextSeq(exist, current)
		seeded = true
		return candidate
	})
	return seeded
}

func nextSeq(exist bool, current *model.TelemetryRecord) uint64 {
	if !exist {
		return 1
	}
	return current.Seq + 1
}

// Get returns a copy of the latest record of deviceID.
func (t *Table) Get(deviceID string) (*model.TelemetryRecord, bool) {
	rec, ok := t.m.Get(deviceID)
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// All returns copies of every latest record ordered by device id.
func (t *Table) All() []*model.TelemetryRecord {
	items := t.m.Items()
	out := make([]*model.TelemetryRecord, 0, len(items))
	for _, rec := range items {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Len returns the number of known devices.
func (t *Table) Len() int {
	return t.m.Count()
}
