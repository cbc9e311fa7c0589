package options

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Payload generations understood by the decoder.
const (
	GenerationMulti  = "multi"
	GenerationLegacy = "legacy"
)

var _ IOptions = (*IngestOptions)(nil)

// IngestOptions shapes decoding and the persistence policy.
type IngestOptions struct {
	// Generation is "multi" when payloads lead with a device id, "legacy" otherwise.
	Generation string `json:"generation" mapstructure:"generation"`

	// ImplicitDeviceID keys every record under the legacy generation.
	ImplicitDeviceID string `json:"implicit-device-id" mapstructure:"implicit-device-id"`

	// AllowMinimalStatus accepts STATUS payloads carrying only id and mode.
	AllowMinimalStatus bool `json:"allow-minimal-status" mapstructure:"allow-minimal-status"`

	// RequireStatus rejects submissions without the top-level status field.
	RequireStatus bool `json:"require-status" mapstructure:"require-status"`

	// PersistModes lists the modes appended to the event store.
	PersistModes []string `json:"persist-modes" mapstructure:"persist-modes"`

	// PersistTimeout bounds a single event store append.
	PersistTimeout time.Duration `json:"persist-timeout" mapstructure:"persist-timeout"`
}

func NewIngestOptions() *IngestOptions {
	return &IngestOptions{
		Generation:       GenerationMulti,
		ImplicitDeviceID: "default",
		PersistModes:     []string{"EMERGENCY", "NORMAL"},
		PersistTimeout:   5 * time.Second,
	}
}

func (o *IngestOptions) Validate() []error {
	var errs []error

	switch o.Generation {
	case GenerationMulti:
	case GenerationLegacy:
		if strings.TrimSpace(o.ImplicitDeviceID) == "" {
			errs = append(errs, fmt.Errorf("ingest.implicit-device-id: required for the legacy generation"))
		}
	default:
		errs = append(errs, fmt.Errorf("ingest.generation: must be %q or %q, got %q", GenerationMulti, GenerationLegacy, o.Generation))
	}
	for _, m := range o.PersistModes {
		if strings.TrimSpace(m) == "" {
			errs = append(errs, fmt.Errorf("ingest.persist-modes: empty mode"))
		}
	}
	if o.PersistTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ingest.persist-timeout: must be positive"))
	}

	return errs
}

func (o *IngestOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Generation, "ingest.generation", o.Generation, "Payload layout: 'multi' (leading device id) or 'legacy' (no device id).")
	fs.StringVar(&o.ImplicitDeviceID, "ingest.implicit-device-id", o.ImplicitDeviceID, "Device id assigned to every record under the legacy generation.")
	fs.BoolVar(&o.AllowMinimalStatus, "ingest.allow-minimal-status", o.AllowMinimalStatus, "Accept STATUS payloads that carry only device id and mode.")
	fs.BoolVar(&o.RequireStatus, "ingest.require-status", o.RequireStatus, "Reject submissions without a top-level status field.")
	fs.StringSliceVar(&o.PersistModes, "ingest.persist-modes", o.PersistModes, "Modes whose records are appended to the event store.")
	fs.DurationVar(&o.PersistTimeout, "ingest.persist-timeout", o.PersistTimeout, "Timeout for a single event store append.")
}
