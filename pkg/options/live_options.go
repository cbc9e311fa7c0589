package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*LiveOptions)(nil)

// LiveOptions tunes websocket peers of the live channel.
type LiveOptions struct {
	// SendBuffer is the outbound queue depth of one peer beyond its replay.
	SendBuffer int `json:"send-buffer" mapstructure:"send-buffer"`

	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`
	PingInterval time.Duration `json:"ping-interval" mapstructure:"ping-interval"`

	// PongTimeout must exceed PingInterval.
	PongTimeout time.Duration `json:"pong-timeout" mapstructure:"pong-timeout"`

	// AllowedOrigins for the websocket upgrade. Empty accepts any origin.
	AllowedOrigins []string `json:"allowed-origins" mapstructure:"allowed-origins"`
}

func NewLiveOptions() *LiveOptions {
	return &LiveOptions{
		SendBuffer:   64,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
	}
}

func (o *LiveOptions) Validate() []error {
	var errs []error

	if o.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("live.send-buffer: must be positive"))
	}
	if o.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("live.write-timeout: must be positive"))
	}
	if o.PingInterval <= 0 || o.PongTimeout <= o.PingInterval {
		errs = append(errs, fmt.Errorf("live.pong-timeout: must exceed live.ping-interval"))
	}

	return errs
}

func (o *LiveOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.SendBuffer, "live.send-buffer", o.SendBuffer, "Outbound message queue depth per live connection.")
	fs.DurationVar(&o.WriteTimeout, "live.write-timeout", o.WriteTimeout, "Deadline for writing one message to a live connection.")
	fs.DurationVar(&o.PingInterval, "live.ping-interval", o.PingInterval, "Interval between keepalive pings.")
	fs.DurationVar(&o.PongTimeout, "live.pong-timeout", o.PongTimeout, "A connection without a pong for this long is closed.")
	fs.StringSliceVar(&o.AllowedOrigins, "live.allowed-origins", o.AllowedOrigins, "Origins allowed to open the live channel. Empty allows any.")
}
