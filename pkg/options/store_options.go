package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// Event store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreS3       = "s3"
)

var _ IOptions = (*StoreOptions)(nil)

// StoreOptions selects the event store backend and the startup seeding budget.
type StoreOptions struct {
	Backend string `json:"backend" mapstructure:"backend"`

	// SeedTimeout bounds loading the latest per-device state at startup.
	// Zero disables seeding and the hub starts with an empty state table.
	SeedTimeout time.Duration `json:"seed-timeout" mapstructure:"seed-timeout"`
}

func NewStoreOptions() *StoreOptions {
	return &StoreOptions{
		Backend:     StoreMemory,
		SeedTimeout: 10 * time.Second,
	}
}

func (o *StoreOptions) Validate() []error {
	var errs []error

	switch o.Backend {
	case StoreMemory, StorePostgres, StoreS3:
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", o.Backend))
	}
	if o.SeedTimeout < 0 {
		errs = append(errs, fmt.Errorf("store.seed-timeout: must not be negative"))
	}

	return errs
}

func (o *StoreOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Backend, "store.backend", o.Backend, "Event store backend: memory, postgres or s3.")
	fs.DurationVar(&o.SeedTimeout, "store.seed-timeout", o.SeedTimeout, "Time allowed for seeding device state from the store on startup. 0 disables seeding.")
}
