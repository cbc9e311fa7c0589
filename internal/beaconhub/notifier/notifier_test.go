package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/state"
	"github.com/autopeer-io/beacon/internal/beaconhub/live"
	"github.com/autopeer-io/beacon/internal/pkg/metrics"
	"github.com/autopeer-io/beacon/pkg/log"
	"github.com/autopeer-io/beacon/pkg/mqtt/mqtttest"
	"github.com/autopeer-io/beacon/pkg/mqtt/topic"
)

type countingSink struct {
	mu  sync.Mutex
	ids []string
}

func (s *countingSink) Broadcast(_ context.Context, r *model.TelemetryRecord) {
	s.mu.Lock()
	s.ids = append(s.ids, r.DeviceID)
	s.mu.Unlock()
}

func testRecord() *model.TelemetryRecord {
	return &model.TelemetryRecord{
		DeviceID:   "tracker-01",
		Mode:       model.ModeEmergency,
		Uptime:     "42",
		RawPayload: "tracker-01|EMERGENCY|1|2|3|4|42",
		ReceivedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMultiFansOutAndSkipsNil(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	m := NewMulti(a, nil, b)

	m.Broadcast(context.Background(), testRecord())

	assert.Equal(t, []string{"tracker-01"}, a.ids)
	assert.Equal(t, []string{"tracker-01"}, b.ids)

	var nilMulti *Multi
	assert.NotPanics(t, func() { nilMulti.Broadcast(context.Background(), testRecord()) })
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaMirrorKeysByDevice(t *testing.T) {
	w := &fakeWriter{}
	m := &KafkaMirror{writer: w, logger: log.NewNopLogger()}

	m.Broadcast(context.Background(), testRecord())

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "tracker-01", string(msg.Key))
	assert.Equal(t, "EMERGENCY", string(msg.Headers[0].Value))

	var got model.TelemetryRecord
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "tracker-01|EMERGENCY|1|2|3|4|42", got.RawPayload)
}

func TestKafkaMirrorCountsFailures(t *testing.T) {
	counter := metrics.MirrorErrorsTotal.WithLabelValues(sinkKafka)
	before := testutil.ToFloat64(counter)

	m := &KafkaMirror{writer: &fakeWriter{err: errors.New("broker down")}, logger: log.NewNopLogger()}
	m.Broadcast(context.Background(), testRecord())
	m.onCompletion([]kafka.Message{{Key: []byte("x")}, {Key: []byte("y")}}, errors.New("late failure"))
	m.onCompletion([]kafka.Message{{Key: []byte("z")}}, nil)

	assert.Equal(t, before+3, testutil.ToFloat64(counter))
}

func TestKafkaMirrorCloseHonorsContext(t *testing.T) {
	m := &KafkaMirror{writer: &fakeWriter{}, logger: log.NewNopLogger()}
	assert.NoError(t, m.Close(context.Background()))
}

func TestCommandGatewayReceiverWhileConnected(t *testing.T) {
	client := mqtttest.New()
	g := NewCommandGateway(client, topic.NewTopicBuilder("beacon/v1"), 1, 4)
	reg := live.NewRegistry(state.NewTable(), log.NewNopLogger())
	require.NoError(t, reg.Register(g))

	cmd := &model.Command{Name: model.CommandAck, DeviceID: "tracker-01"}

	_, err := reg.Relay(context.Background(), cmd)
	assert.Error(t, err, "a disconnected gateway is not a receiver")

	client.SetConnected(true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)

	n, err := reg.Relay(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Eventually(t, func() bool { return len(client.Published()) == 1 }, time.Second, 10*time.Millisecond)
	pub := client.Published()[0]
	assert.Equal(t, "beacon/v1/command/tracker-01", pub.Topic)
	assert.Equal(t, 1, pub.QoS)
	assert.Contains(t, string(pub.Payload), `"name":"ACK"`)
}

func TestCommandGatewayRejectsTelemetryAndStops(t *testing.T) {
	client := mqtttest.New()
	client.SetConnected(true)
	g := NewCommandGateway(client, topic.NewTopicBuilder("beacon/v1"), 0, 1)

	msg, err := live.TelemetryMessage(testRecord())
	require.NoError(t, err)
	assert.False(t, g.Send(msg))

	g.Stop()
	assert.True(t, g.Closed())

	cmd, err := live.CommandMessage(&model.Command{Name: model.CommandAck, DeviceID: "x"})
	require.NoError(t, err)
	assert.False(t, g.Send(cmd))
}
