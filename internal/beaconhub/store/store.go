// Package store holds the EventStore adapters: in-process memory, Postgres
// and S3-compatible object storage.
package store

import (
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
)

func newEventID() string {
	return uuid.NewString()
}

var errNilEvent = errors.New("event store: nil event")

// sortNewestFirst orders events by the time their record was received, then
// by RecordedAt. Ties keep their input order.
func sortNewestFirst(events []*model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Record.ReceivedAt.Equal(b.Record.ReceivedAt) {
			return a.Record.ReceivedAt.After(b.Record.ReceivedAt)
		}
		return a.RecordedAt.After(b.RecordedAt)
	})
}

func cloneEvent(e *model.Event) *model.Event {
	c := *e
	c.Record = *e.Record.Clone()
	return &c
}
