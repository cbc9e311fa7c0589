package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/beacon/internal/beaconhub/core"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
	"github.com/autopeer-io/beacon/pkg/options"
)

func TestEventKeyRoundTrip(t *testing.T) {
	e := event("fleet/tracker 7", model.ModeEmergency, time.Now())
	e.ID = "0b7f6c1e-2f43-4e0e-9a57-b1d3c4a1f001"

	key := eventKey("events", e)
	assert.Contains(t, key, "events/fleet%2Ftracker%207/")

	device, id, err := parseEventKey("events", key)
	require.NoError(t, err)
	assert.Equal(t, "fleet/tracker 7", device)
	assert.Equal(t, e.ID, id)
}

func TestEventKeysSortNewestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := event("A", model.ModeNormal, base)
	newer := event("A", model.ModeNormal, base.Add(time.Millisecond))
	older.ID, newer.ID = "x", "y"

	assert.Less(t, eventKey("events", newer), eventKey("events", older))
}

func TestParseEventKeyRejectsForeignKeys(t *testing.T) {
	for _, key := range []string{
		"other/A/1-x.json",
		"events/A",
		"events/A/1-x.txt",
		"events/A/nodash.json",
	} {
		_, _, err := parseEventKey("events", key)
		assert.ErrorIs(t, err, errBadKey, key)
	}
}

func TestDevicePrefixWithoutRoot(t *testing.T) {
	assert.Equal(t, "A/", devicePrefix("", "A"))
	assert.Equal(t, "events/A/", devicePrefix("events", "A"))
}

// TestS3RoundTrip runs against a real S3-compatible endpoint such as a local
// minio: BEACON_TEST_S3_ENDPOINT=localhost:9000 plus the access and secret
// keys in BEACON_TEST_S3_ACCESS_KEY and BEACON_TEST_S3_SECRET_KEY.
func TestS3RoundTrip(t *testing.T) {
	endpoint := os.Getenv("BEACON_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("BEACON_TEST_S3_ENDPOINT not set")
	}

	opts := options.NewS3Options()
	opts.Endpoint = endpoint
	opts.AccessKeyID = os.Getenv("BEACON_TEST_S3_ACCESS_KEY")
	opts.SecretAccessKey = os.Getenv("BEACON_TEST_S3_SECRET_KEY")
	opts.BucketName = "beacon-store-test"
	opts.Prefix = "run-" + uuid.NewString()

	ctx := context.Background()
	s, err := NewS3(ctx, opts)
	require.NoError(t, err)
	require.NoError(t, s.Ping(ctx))
	t.Cleanup(func() { _ = s.DeleteAll(context.Background()) })

	_, err = s.Latest(ctx, "A")
	assert.ErrorIs(t, err, core.ErrNotFound)

	lat := 10.5
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := event("A", model.ModeNormal, base)
	first.Record.Latitude = &lat
	second := event("A", model.ModeEmergency, base.Add(time.Second))
	other := event("B", model.ModeNormal, base.Add(2*time.Second))
	slashed := event("fleet/7", model.ModeNormal, base)

	// Appended out of time order; listings must still be newest first.
	for _, e := range []*model.Event{second, first, other, slashed} {
		require.NoError(t, s.Append(ctx, e))
		assert.NotEmpty(t, e.ID)
	}

	latest, err := s.Latest(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, model.ModeEmergency, latest.Record.Mode)

	byA, err := s.ListByDevice(ctx, "A")
	require.NoError(t, err)
	require.Len(t, byA, 2)
	assert.Equal(t, second.ID, byA[0].ID)
	assert.Equal(t, first.ID, byA[1].ID)
	assert.Equal(t, 10.5, *byA[1].Record.Latitude)
	assert.Nil(t, byA[0].Record.Latitude)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, other.ID, all[0].ID)

	devices, err := s.Devices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "fleet/7"}, devices)

	got, err := s.Latest(ctx, "fleet/7")
	require.NoError(t, err)
	assert.Equal(t, slashed.ID, got.ID)

	require.NoError(t, s.Delete(ctx, second.ID))
	assert.ErrorIs(t, s.Delete(ctx, second.ID), core.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "no/such-id"), core.ErrNotFound)

	latest, err = s.Latest(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID)

	require.NoError(t, s.DeleteAll(ctx))
	all, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	devices, err = s.Devices(ctx)
	require.NoError(t, err)
	assert.Empty(t, devices)
}
