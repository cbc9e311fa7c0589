package notifier

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/autopeer-io/beacon/internal/beaconhub/core"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
	"github.com/autopeer-io/beacon/internal/pkg/metrics"
	"github.com/autopeer-io/beacon/pkg/log"
	"github.com/autopeer-io/beacon/pkg/options"
)

const sinkKafka = "kafka"

var _ core.Broadcaster = (*KafkaMirror)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMirror copies every broadcast record to a Kafka topic keyed by device
// id, so one device's records stay in order within a partition. Writes are
// asynchronous; failures are logged and counted, never surfaced to ingestion.
type KafkaMirror struct {
	writer messageWriter
	logger log.Logger
}

func NewKafkaMirror(opts *options.KafkaOptions) *KafkaMirror {
	m := &KafkaMirror{logger: log.WithName("kafka-mirror")}
	m.writer = &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    opts.BatchSize,
		BatchTimeout: opts.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion:   m.onCompletion,
	}
	return m
}

func (m *KafkaMirror) Broadcast(ctx context.Context, record *model.TelemetryRecord) {
	value, err := json.Marshal(record)
	if err != nil {
		m.fail(err, record.DeviceID)
		return
	}

	msg := kafka.Message{
		Key:   []byte(record.DeviceID),
		Value: value,
		Time:  record.ReceivedAt,
		Headers: []kafka.Header{
			{Key: "mode", Value: []byte(record.Mode)},
		},
	}
	if err := m.writer.WriteMessages(context.WithoutCancel(ctx), msg); err != nil {
		m.fail(err, record.DeviceID)
	}
}

func (m *KafkaMirror) onCompletion(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, msg := range msgs {
		m.fail(err, string(msg.Key))
	}
}

func (m *KafkaMirror) fail(err error, deviceID string) {
	metrics.MirrorErrorsTotal.WithLabelValues(sinkKafka).Inc()
	m.logger.Error(err, "Failed to mirror record", "deviceId", deviceID)
}

// Close flushes pending batches.
func (m *KafkaMirror) Close(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- m.writer.Close() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
