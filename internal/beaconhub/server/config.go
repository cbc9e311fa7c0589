package server

import (
	"github.com/autopeer-io/beacon/pkg/options"
)

type Config struct {
	HttpOptions *options.HttpOptions
	LiveOptions *options.LiveOptions
	MqttOptions *options.MqttOptions
}
