// Package sim runs adcshare firmware in-process against a simulated ADC,
// for host tests and for trying the host tool without hardware.
package sim

import (
	"errors"
	"io"
	"net"
	"sync"

	"adcshare/core"
)

// ErrUnitBusy is returned by NewUnit for units marked unavailable.
var ErrUnitBusy = errors.New("sim: unit busy")

type unitHandle struct {
	unit core.Unit
}

// Driver is a core.ADCDriver backed by a sample function.
type Driver struct {
	// Sample returns the raw value of a channel at full 12-bit scale.
	// Nil selects DefaultSample.
	Sample func(unit core.Unit, ch core.Channel) int

	mu          sync.Mutex
	unavailable map[core.Unit]bool
	live        map[core.Unit]int
}

// NewDriver returns a driver serving DefaultSample.
func NewDriver() *Driver {
	return &Driver{
		unavailable: make(map[core.Unit]bool),
		live:        make(map[core.Unit]int),
	}
}

// DefaultSample derives a stable value from the unit and channel.
func DefaultSample(unit core.Unit, ch core.Channel) int {
	return (int(unit)*1000 + int(ch)*300) % 4096
}

// SetUnavailable makes NewUnit fail for unit, e.g. ADC2 while Wi-Fi owns it.
func (d *Driver) SetUnavailable(unit core.Unit, busy bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unavailable[unit] = busy
}

// Live returns the number of created and not yet deleted instances of unit.
func (d *Driver) Live(unit core.Unit) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live[unit]
}

func (d *Driver) NewUnit(unit core.Unit) (core.UnitHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unavailable[unit] {
		return nil, ErrUnitBusy
	}
	d.live[unit]++
	return &unitHandle{unit: unit}, nil
}

func (d *Driver) DeleteUnit(h core.UnitHandle) error {
	uh, ok := h.(*unitHandle)
	if !ok {
		return core.ErrInvalidArgument
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.live[uh.unit]--
	return nil
}

func (d *Driver) ConfigChannel(h core.UnitHandle, ch core.Channel, atten core.Atten, width core.BitWidth) error {
	if _, ok := h.(*unitHandle); !ok {
		return core.ErrInvalidArgument
	}
	return nil
}

func (d *Driver) Read(h core.UnitHandle, ch core.Channel) (int, error) {
	uh, ok := h.(*unitHandle)
	if !ok {
		return 0, core.ErrInvalidArgument
	}
	sample := d.Sample
	if sample == nil {
		sample = DefaultSample
	}
	return sample(uh.unit, ch), nil
}

// MCU is a running in-process firmware. Its host end is Port.
type MCU struct {
	Firmware *core.Firmware

	host   net.Conn
	target net.Conn
	done   chan error
}

// Start serves a firmware over an in-memory pipe.
func Start(driver core.ADCDriver, scheme core.CalibrationScheme, opts ...core.ManagerOption) *MCU {
	host, target := net.Pipe()
	m := &MCU{
		Firmware: core.NewFirmware(core.NewManager(driver, scheme, opts...)),
		host:     host,
		target:   target,
		done:     make(chan error, 1),
	}
	go func() {
		m.done <- m.Firmware.Serve(target)
	}()
	return m
}

// Port returns the host end of the link.
func (m *MCU) Port() io.ReadWriteCloser {
	return m.host
}

// Close closes both ends of the link, stops the firmware and tears down
// its units.
func (m *MCU) Close() error {
	m.host.Close()
	m.target.Close()
	err := <-m.done
	if errors.Is(err, io.ErrClosedPipe) {
		err = nil
	}
	if cerr := m.Firmware.Close(); err == nil {
		err = cerr
	}
	return err
}
