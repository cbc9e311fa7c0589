package core

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRequest is returned for a submission without a payload.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrMissingDeviceID is returned when the device id field is absent or empty.
	ErrMissingDeviceID = errors.New("missing device id")

	// ErrInsufficientFields is returned when a payload has fewer fields than its layout needs.
	ErrInsufficientFields = errors.New("insufficient telemetry fields")

	// ErrNotFound is returned by lookups of unknown events or devices.
	ErrNotFound = errors.New("not found")

	// ErrNoReceivers is returned when a command reached no receiver.
	ErrNoReceivers = errors.New("no receivers connected")
)

// DecodeError describes why a payload was rejected. It unwraps to
// ErrMissingDeviceID or ErrInsufficientFields.
type DecodeError struct {
	Err    error
	Fields int
	Min    int
}

func (e *DecodeError) Error() string {
	if errors.Is(e.Err, ErrInsufficientFields) {
		return fmt.Sprintf("%v: got %d, need %d", e.Err, e.Fields, e.Min)
	}
	return e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }
