package core

import "errors"

// Error taxonomy for the shared ADC manager. Collaborator errors are
// returned as-is and never wrapped in these.
var (
	ErrInvalidArgument = errors.New("adc: invalid argument")
	ErrNoMemory        = errors.New("adc: no memory")
	ErrInvalidState    = errors.New("adc: invalid state")
	ErrNotFound        = errors.New("adc: not found")
	ErrChannelConflict = errors.New("adc: channel configured with different settings")
)

// Status is the wire representation of an operation result.
type Status uint8

const (
	StatusOK Status = iota
	StatusInvalidArgument
	StatusNoMemory
	StatusInvalidState
	StatusNotFound
	StatusChannelConflict
	StatusDriverError
)

// StatusOf maps err onto a wire status. Unknown errors are driver errors.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrInvalidArgument):
		return StatusInvalidArgument
	case errors.Is(err, ErrNoMemory):
		return StatusNoMemory
	case errors.Is(err, ErrInvalidState):
		return StatusInvalidState
	case errors.Is(err, ErrNotFound):
		return StatusNotFound
	case errors.Is(err, ErrChannelConflict):
		return StatusChannelConflict
	default:
		return StatusDriverError
	}
}

// ErrDriver stands in for a collaborator error reported over the wire,
// where only the status survives.
var ErrDriver = errors.New("adc: driver error")

// Err maps a wire status back onto its sentinel.
func (s Status) Err() error {
	switch s {
	case StatusOK:
		return nil
	case StatusInvalidArgument:
		return ErrInvalidArgument
	case StatusNoMemory:
		return ErrNoMemory
	case StatusInvalidState:
		return ErrInvalidState
	case StatusNotFound:
		return ErrNotFound
	case StatusChannelConflict:
		return ErrChannelConflict
	default:
		return ErrDriver
	}
}
