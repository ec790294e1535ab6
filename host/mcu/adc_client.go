package mcu

import (
	"fmt"

	"adcshare/core"
	"adcshare/protocol"
)

// ADCClient drives the firmware's shared ADC manager. Each remote handle is
// named by an oid the caller picks.
type ADCClient struct {
	mcu *MCU
}

// NewADCClient returns a client using m's connection.
func NewADCClient(m *MCU) *ADCClient {
	return &ADCClient{mcu: m}
}

// StatusError is a failure reported by the MCU rather than by the link.
// It unwraps to the matching core sentinel.
type StatusError struct {
	Op     string
	Status core.Status
}

func (e *StatusError) Error() string {
	return e.Op + ": " + e.Status.Err().Error()
}

func (e *StatusError) Unwrap() error {
	return e.Status.Err()
}

// Reading is one sample returned by Read.
type Reading struct {
	Unit    core.Unit
	Channel core.Channel
	Raw     int

	// MilliVolts is valid only when VoltageErr is nil; the raw sample is
	// usable either way.
	MilliVolts int
	VoltageErr error
}

// Acquire binds oid to a new handle over configs and returns the bitmask
// of calibrated channels, by config index.
func (c *ADCClient) Acquire(oid uint8, configs []core.ChannelConfig) (uint32, error) {
	packed := core.EncodeChannelConfigs(configs)
	payload, err := c.mcu.request(core.MsgADCAcquire, c.mcu.ids.Acquire, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQBytes(output, packed)
	}, c.mcu.ids.Acquired)
	if err != nil {
		return 0, err
	}

	var respOID, status, mask int32
	if err := decodeArgs(payload, &respOID, &status, &mask); err != nil {
		return 0, err
	}
	if err := checkOID(oid, respOID); err != nil {
		return 0, err
	}
	if core.Status(status) != core.StatusOK {
		return 0, &StatusError{Op: fmt.Sprintf("acquire oid %d", oid), Status: core.Status(status)}
	}
	return uint32(mask), nil
}

// Read samples ch on unit through oid's handle. A failed conversion is
// reported in Reading.VoltageErr; a failed read is returned as the error.
func (c *ADCClient) Read(oid uint8, unit core.Unit, ch core.Channel) (Reading, error) {
	payload, err := c.mcu.request(core.MsgADCRead, c.mcu.ids.Read, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, uint32(unit))
		protocol.EncodeVLQUint(output, uint32(ch))
	}, c.mcu.ids.Reading)
	if err != nil {
		return Reading{}, err
	}

	var respOID, respUnit, respCh, status, raw, mvStatus, mv int32
	if err := decodeArgs(payload, &respOID, &respUnit, &respCh, &status, &raw, &mvStatus, &mv); err != nil {
		return Reading{}, err
	}
	if err := checkOID(oid, respOID); err != nil {
		return Reading{}, err
	}
	if core.Unit(respUnit) != unit || core.Channel(respCh) != ch {
		return Reading{}, fmt.Errorf("reading for %d/%d, requested %d/%d", respUnit, respCh, unit, ch)
	}
	if core.Status(status) != core.StatusOK {
		return Reading{}, &StatusError{Op: fmt.Sprintf("read oid %d %s_CH%d", oid, unit, ch), Status: core.Status(status)}
	}

	r := Reading{Unit: unit, Channel: ch, Raw: int(raw)}
	if r.VoltageErr = core.Status(mvStatus).Err(); r.VoltageErr == nil {
		r.MilliVolts = int(mv)
	}
	return r, nil
}

// Release frees oid's handle on the MCU.
func (c *ADCClient) Release(oid uint8) error {
	payload, err := c.mcu.request(core.MsgADCRelease, c.mcu.ids.Release, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
	}, c.mcu.ids.Released)
	if err != nil {
		return err
	}

	var respOID, status int32
	if err := decodeArgs(payload, &respOID, &status); err != nil {
		return err
	}
	if err := checkOID(oid, respOID); err != nil {
		return err
	}
	if core.Status(status) != core.StatusOK {
		return &StatusError{Op: fmt.Sprintf("release oid %d", oid), Status: core.Status(status)}
	}
	return nil
}

// Stats returns the MCU manager's usage counter and unit slots.
func (c *ADCClient) Stats() (core.Stats, error) {
	payload, err := c.mcu.request(core.MsgADCStats, c.mcu.ids.Stats, nil, c.mcu.ids.StatsResult)
	if err != nil {
		return core.Stats{}, err
	}

	var handles, units, refsA, refsB int32
	if err := decodeArgs(payload, &handles, &units, &refsA, &refsB); err != nil {
		return core.Stats{}, err
	}

	var st core.Stats
	st.Handles = int(handles)
	st.Units[0] = core.UnitStats{Initialized: units&1 != 0, Refs: int(refsA)}
	st.Units[1] = core.UnitStats{Initialized: units&2 != 0, Refs: int(refsB)}
	return st, nil
}

func checkOID(want uint8, got int32) error {
	if int32(want) != got {
		return fmt.Errorf("response for oid %d, expected %d", got, want)
	}
	return nil
}
