package service

import (
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/autopeer-io/beacon/internal/beaconhub/core"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/decoder"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/state"
	"github.com/autopeer-io/beacon/pkg/log"
)

// DefaultPersistModes are the modes recorded in the event log unless configured otherwise.
var DefaultPersistModes = []model.Mode{model.ModeEmergency, model.ModeNormal}

const defaultPersistTimeout = 5 * time.Second

// Service implements the hub use cases. It is the only writer of the device
// state table and the event log.
type Service struct {
	decoder     *decoder.Decoder
	states      *state.Table
	events      core.EventStore
	broadcaster core.Broadcaster
	relay       core.CommandRelay

	persistModes   atomic.Pointer[modeSet]
	persistTimeout time.Duration
	requireStatus  bool

	now    func() time.Time
	logger log.Logger
}

type modeSet map[model.Mode]struct{}

// Option customizes a Service.
type Option func(*Service)

// WithPersistModes sets the modes appended to the event log.
func WithPersistModes(modes ...model.Mode) Option {
	return func(s *Service) { s.setPersistModes(modes) }
}

// WithPersistTimeout bounds one event log append.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.persistTimeout = d
		}
	}
}

// WithRequireStatus rejects submissions that lack the top-level status field.
func WithRequireStatus(require bool) Option {
	return func(s *Service) { s.requireStatus = require }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a new instance of the hub core service.
func New(
	dec *decoder.Decoder,
	states *state.Table,
	events core.EventStore,
	broadcaster core.Broadcaster,
	relay core.CommandRelay,
	opts ...Option,
) *Service {
	s := &Service{
		decoder:        dec,
		states:         states,
		events:         events,
		broadcaster:    broadcaster,
		relay:          relay,
		persistTimeout: defaultPersistTimeout,
		now:            time.Now,
		logger:         log.WithName("service"),
	}
	s.setPersistModes(DefaultPersistModes)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPersistModes swaps the persistence policy. It is safe to call while
// ingestion is running.
func (s *Service) SetPersistModes(modes []string) {
	converted := make([]model.Mode, 0, len(modes))
	for _, m := range modes {
		if m = strings.TrimSpace(m); m != "" {
			converted = append(converted, model.Mode(m))
		}
	}
	s.setPersistModes(converted)
	s.logger.Info("Persistence policy updated", "modes", modes)
}

func (s *Service) setPersistModes(modes []model.Mode) {
	set := make(modeSet, len(modes))
	for _, m := range modes {
		set[m] = struct{}{}
	}
	s.persistModes.Store(&set)
}

// ShouldPersist reports whether records of mode go to the event log.
func (s *Service) ShouldPersist(mode model.Mode) bool {
	_, ok := (*s.persistModes.Load())[mode]
	return ok
}

// Policy describes the active decoding and persistence configuration.
type Policy struct {
	Generation         decoder.Generation `json:"generation"`
	ImplicitDeviceID   string             `json:"implicitDeviceId,omitempty"`
	AllowMinimalStatus bool               `json:"allowMinimalStatus"`
	RequireStatus      bool               `json:"requireStatus"`
	PersistModes       []model.Mode       `json:"persistModes"`
	PersistTimeout     string             `json:"persistTimeout"`
}

func (s *Service) Policy() Policy {
	opts := s.decoder.Options()
	p := Policy{
		Generation:         opts.Generation,
		AllowMinimalStatus: opts.AllowMinimalStatus,
		RequireStatus:      s.requireStatus,
		PersistTimeout:     s.persistTimeout.String(),
		PersistModes:       []model.Mode{},
	}
	if opts.Generation == decoder.GenerationLegacy {
		p.ImplicitDeviceID = opts.ImplicitDeviceID
	}
	for m := range *s.persistModes.Load() {
		p.PersistModes = append(p.PersistModes, m)
	}
	slices.Sort(p.PersistModes)
	return p
}
