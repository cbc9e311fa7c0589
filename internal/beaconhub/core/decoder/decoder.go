// Package decoder turns pipe-delimited device payloads into telemetry records.
//
// The canonical layout is
//
//	deviceId|mode|lat|lon|speed|satellites|uptime,rssi,snr
//
// and the legacy layout drops the leading deviceId, so every other field
// shifts one position left. Decoding is pure: the same input always yields
// the same record or the same error.
package decoder

import (
	"math"
	"strconv"
	"strings"

	"github.com/autopeer-io/beacon/internal/beaconhub/core"
	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
)

// Generation selects the payload layout.
type Generation string

const (
	GenerationMulti  Generation = "multi"
	GenerationLegacy Generation = "legacy"
)

const (
	fieldSep = "|"
	groupSep = ","

	// mode|lat|lon|speed|satellites|group
	telemetryFields = 6

	defaultUptime = "0"
)

// Options configures a Decoder.
type Options struct {
	Generation Generation

	// ImplicitDeviceID keys records of the legacy generation.
	ImplicitDeviceID string

	// AllowMinimalStatus accepts a STATUS payload that stops after the mode
	// field. Its missing fields decode as absent.
	AllowMinimalStatus bool
}

// DefaultImplicitDeviceID keys legacy records when none is configured.
const DefaultImplicitDeviceID = "default"

// Decoder decodes payloads of one generation.
type Decoder struct {
	opts Options
}

// New returns a Decoder. An unknown generation is treated as multi.
func New(opts Options) *Decoder {
	if opts.Generation != GenerationLegacy {
		opts.Generation = GenerationMulti
	}
	if opts.ImplicitDeviceID == "" {
		opts.ImplicitDeviceID = DefaultImplicitDeviceID
	}
	return &Decoder{opts: opts}
}

// Options returns the effective configuration.
func (d *Decoder) Options() Options { return d.opts }

// MinFields is the number of |-separated fields a complete payload carries.
func (d *Decoder) MinFields() int {
	if d.opts.Generation == GenerationLegacy {
		return telemetryFields
	}
	return telemetryFields + 1
}

// Decode parses raw. Errors are *core.DecodeError wrapping
// core.ErrMissingDeviceID or core.ErrInsufficientFields. The returned record
// has no ReceivedAt; the caller stamps it.
func (d *Decoder) Decode(raw string) (*model.TelemetryRecord, error) {
	fields := strings.Split(raw, fieldSep)
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	deviceID := d.opts.ImplicitDeviceID
	rest := fields
	if d.opts.Generation == GenerationMulti {
		if fields[0] == "" {
			return nil, &core.DecodeError{Err: core.ErrMissingDeviceID, Fields: len(fields), Min: d.MinFields()}
		}
		deviceID = fields[0]
		rest = fields[1:]
	}

	if len(rest) < telemetryFields && !d.minimalStatus(rest) {
		return nil, &core.DecodeError{Err: core.ErrInsufficientFields, Fields: len(fields), Min: d.MinFields()}
	}

	at := func(i int) string {
		if i < len(rest) {
			return rest[i]
		}
		return ""
	}

	uptime, rssi, snr := splitGroup(at(5))

	return &model.TelemetryRecord{
		DeviceID:   deviceID,
		Mode:       model.Mode(at(0)),
		Latitude:   parseCoordinate(at(1)),
		Longitude:  parseCoordinate(at(2)),
		Speed:      optional(at(3)),
		Satellites: optional(at(4)),
		Uptime:     uptime,
		RSSI:       rssi,
		SNR:        snr,
		RawPayload: raw,
	}, nil
}

func (d *Decoder) minimalStatus(rest []string) bool {
	return d.opts.AllowMinimalStatus && len(rest) >= 1 && model.Mode(rest[0]) == model.ModeStatus
}

// splitGroup splits "uptime,rssi,snr". Missing parts are absent, except
// uptime which defaults to "0".
func splitGroup(group string) (uptime string, rssi, snr *string) {
	parts := strings.Split(group, groupSep)
	part := func(i int) string {
		if i < len(parts) {
			return strings.TrimSpace(parts[i])
		}
		return ""
	}

	uptime = part(0)
	if uptime == "" {
		uptime = defaultUptime
	}
	return uptime, optional(part(1)), optional(part(2))
}

// parseCoordinate returns nil for anything that is not a finite number.
func parseCoordinate(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
