package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*KafkaOptions)(nil)

// KafkaOptions configures the broadcast mirror. No brokers disables it.
type KafkaOptions struct {
	Brokers      []string      `json:"brokers" mapstructure:"brokers"`
	Topic        string        `json:"topic" mapstructure:"topic"`
	BatchSize    int           `json:"batch-size" mapstructure:"batch-size"`
	BatchTimeout time.Duration `json:"batch-timeout" mapstructure:"batch-timeout"`
}

func NewKafkaOptions() *KafkaOptions {
	return &KafkaOptions{
		Topic:        "beacon.telemetry",
		BatchSize:    100,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// Enabled reports whether at least one broker is configured.
func (o *KafkaOptions) Enabled() bool {
	return o != nil && len(o.Brokers) > 0
}

func (o *KafkaOptions) Validate() []error {
	if !o.Enabled() {
		return nil
	}

	var errs []error

	if o.Topic == "" {
		errs = append(errs, fmt.Errorf("kafka.topic: must not be empty"))
	}
	for _, b := range o.Brokers {
		if err := ValidateAddress(b); err != nil {
			errs = append(errs, fmt.Errorf("kafka.brokers: %w", err))
		}
	}
	if o.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("kafka.batch-size: must be positive"))
	}

	return errs
}

func (o *KafkaOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringSliceVar(&o.Brokers, "kafka.brokers", o.Brokers, "Kafka brokers to mirror broadcasts to. Empty disables the mirror.")
	fs.StringVar(&o.Topic, "kafka.topic", o.Topic, "Kafka topic receiving mirrored telemetry records.")
	fs.IntVar(&o.BatchSize, "kafka.batch-size", o.BatchSize, "Maximum records per Kafka write batch.")
	fs.DurationVar(&o.BatchTimeout, "kafka.batch-timeout", o.BatchTimeout, "Maximum time a partial batch waits before flushing.")
}
