package core

import "github.com/google/uuid"

// channelEntry is one config of a handle with its calibration context.
type channelEntry struct {
	cfg        ChannelConfig
	cali       CalibrationContext // nil when creation failed
	configured bool
	owned      bool // holds a reference in the manager's owner table
}

// ChannelStatus reports per-channel availability of a handle.
type ChannelStatus struct {
	Config ChannelConfig
	// Configured is false when the driver rejected the channel setup.
	Configured bool
	// Calibrated is false when no calibration context could be created;
	// ReadVoltage on the channel fails with ErrNotFound.
	Calibrated bool
}

// Handle is a consumer's view of the shared units: its channel set and
// their calibration contexts. A Handle is not safe for concurrent use by
// more than one consumer.
type Handle struct {
	id       uuid.UUID
	mgr      *Manager
	channels []channelEntry
	uses     [UnitCount]bool
	caliNum  int

	// released is guarded by mgr.mu.
	released bool
}

// ID returns the handle's diagnostic identifier.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Uses reports whether the handle was built with a channel on unit.
func (h *Handle) Uses(unit Unit) bool {
	if !unit.Valid() {
		return false
	}
	return h.uses[unit.index()]
}

// Len returns the number of channels in the handle.
func (h *Handle) Len() int {
	return len(h.channels)
}

// Channels returns the availability of every channel, in acquire order.
func (h *Handle) Channels() []ChannelStatus {
	out := make([]ChannelStatus, len(h.channels))
	for i, e := range h.channels {
		out[i] = ChannelStatus{
			Config:     e.cfg,
			Configured: e.configured,
			Calibrated: e.cali != nil,
		}
	}
	return out
}

// lookup returns the first entry matching (unit, ch).
func (h *Handle) lookup(unit Unit, ch Channel) *channelEntry {
	for i := range h.channels {
		if h.channels[i].cfg.Unit == unit && h.channels[i].cfg.Channel == ch {
			return &h.channels[i]
		}
	}
	return nil
}

// ReadRaw reads one raw sample; see Manager.ReadRaw.
func (h *Handle) ReadRaw(unit Unit, ch Channel) (int, error) {
	if h == nil || h.mgr == nil {
		return 0, ErrInvalidArgument
	}
	return h.mgr.ReadRaw(h, unit, ch)
}

// ReadVoltage reads one calibrated sample in millivolts; see Manager.ReadVoltage.
func (h *Handle) ReadVoltage(unit Unit, ch Channel) (int, error) {
	if h == nil || h.mgr == nil {
		return 0, ErrInvalidArgument
	}
	return h.mgr.ReadVoltage(h, unit, ch)
}

// Release returns the handle to its manager. It is safe to call more than once.
func (h *Handle) Release() error {
	if h == nil || h.mgr == nil {
		return ErrInvalidArgument
	}
	return h.mgr.Release(h)
}
