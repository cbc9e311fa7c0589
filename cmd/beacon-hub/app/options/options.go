package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/beacon/internal/beaconhub"
	"github.com/autopeer-io/beacon/pkg/log"
	"github.com/autopeer-io/beacon/pkg/options"
)

type HubOptions struct {
	HttpOptions     *options.HttpOptions     `json:"http" mapstructure:"http"`
	LiveOptions     *options.LiveOptions     `json:"live" mapstructure:"live"`
	MqttOptions     *options.MqttOptions     `json:"mqtt" mapstructure:"mqtt"`
	StoreOptions    *options.StoreOptions    `json:"store" mapstructure:"store"`
	PostgresOptions *options.PostgresOptions `json:"postgres" mapstructure:"postgres"`
	S3Options       *options.S3Options       `json:"s3" mapstructure:"s3"`
	KafkaOptions    *options.KafkaOptions    `json:"kafka" mapstructure:"kafka"`
	IngestOptions   *options.IngestOptions   `json:"ingest" mapstructure:"ingest"`
	Log             *log.Options             `json:"log" mapstructure:"log"`
}

func NewHubOptions() *HubOptions {
	return &HubOptions{
		HttpOptions:     options.NewHttpOptions(),
		LiveOptions:     options.NewLiveOptions(),
		MqttOptions:     options.NewMqttOptions(),
		StoreOptions:    options.NewStoreOptions(),
		PostgresOptions: options.NewPostgresOptions(),
		S3Options:       options.NewS3Options(),
		KafkaOptions:    options.NewKafkaOptions(),
		IngestOptions:   options.NewIngestOptions(),
		Log:             log.NewOptions(),
	}
}

func (o *HubOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.LiveOptions.AddFlags(fss.FlagSet("live"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.StoreOptions.AddFlags(fss.FlagSet("store"))
	o.PostgresOptions.AddFlags(fss.FlagSet("postgres"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.KafkaOptions.AddFlags(fss.FlagSet("kafka"))
	o.IngestOptions.AddFlags(fss.FlagSet("ingest"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

// Validate checks the store-specific groups only for the selected backend.
func (o *HubOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.LiveOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.StoreOptions.Validate()...)
	switch o.StoreOptions.Backend {
	case options.StorePostgres:
		errs = append(errs, o.PostgresOptions.Validate()...)
	case options.StoreS3:
		errs = append(errs, o.S3Options.Validate()...)
	}
	errs = append(errs, o.KafkaOptions.Validate()...)
	errs = append(errs, o.IngestOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *HubOptions) Config() (*beaconhub.Config, error) {
	return &beaconhub.Config{
		HttpOptions:     o.HttpOptions,
		LiveOptions:     o.LiveOptions,
		MqttOptions:     o.MqttOptions,
		StoreOptions:    o.StoreOptions,
		PostgresOptions: o.PostgresOptions,
		S3Options:       o.S3Options,
		KafkaOptions:    o.KafkaOptions,
		IngestOptions:   o.IngestOptions,
	}, nil
}
