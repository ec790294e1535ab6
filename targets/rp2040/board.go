//go:build rp2040

package main

import (
	"errors"
	"sync"

	"adcshare/core"
)

var (
	errNoDevice         = errors.New("no converter fitted for unit")
	errUnitInUse        = errors.New("unit already created")
	errInvalidHandle    = errors.New("invalid unit handle")
	errUnsupportedAtten = errors.New("attenuation not supported by converter")
)

// unitDevice is one physical converter behind a core.Unit.
type unitDevice interface {
	open() error
	close() error
	configure(ch core.Channel, atten core.Atten, width core.BitWidth) error
	read(ch core.Channel) (int, error)
}

type unitHandle struct {
	unit core.Unit
	dev  unitDevice
}

// BoardDriver implements core.ADCDriver for the board: the on-chip ADC is
// unit A, an MCP3008 on SPI0 is unit B.
type BoardDriver struct {
	mu      sync.Mutex // serializes conversions across both units
	devices [core.UnitCount]unitDevice
	open    [core.UnitCount]*unitHandle
}

// NewBoardDriver creates the driver with only the on-chip converter.
// Call AttachExternal to fit unit B.
func NewBoardDriver() *BoardDriver {
	d := &BoardDriver{}
	d.devices[0] = newOnChipADC()
	return d
}

// AttachExternal fits dev as unit B.
func (d *BoardDriver) AttachExternal(dev unitDevice) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices[1] = dev
}

func (d *BoardDriver) NewUnit(unit core.Unit) (core.UnitHandle, error) {
	if !unit.Valid() {
		return nil, core.ErrInvalidArgument
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	i := int(unit) - 1
	dev := d.devices[i]
	if dev == nil {
		return nil, errNoDevice
	}
	if d.open[i] != nil {
		return nil, errUnitInUse
	}
	if err := dev.open(); err != nil {
		return nil, err
	}
	h := &unitHandle{unit: unit, dev: dev}
	d.open[i] = h
	return h, nil
}

func (d *BoardDriver) DeleteUnit(h core.UnitHandle) error {
	uh, err := d.handle(h)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open[int(uh.unit)-1] = nil
	return uh.dev.close()
}

func (d *BoardDriver) ConfigChannel(h core.UnitHandle, ch core.Channel, atten core.Atten, width core.BitWidth) error {
	uh, err := d.handle(h)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return uh.dev.configure(ch, atten, width)
}

func (d *BoardDriver) Read(h core.UnitHandle, ch core.Channel) (int, error) {
	uh, err := d.handle(h)
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return uh.dev.read(ch)
}

func (d *BoardDriver) handle(h core.UnitHandle) (*unitHandle, error) {
	uh, ok := h.(*unitHandle)
	if !ok || uh == nil {
		return nil, errInvalidHandle
	}
	return uh, nil
}

// scale16 reduces a sample scaled to 16 bits to the requested width.
func scale16(v uint16, width core.BitWidth) int {
	return int(v >> uint(16-width.Bits()))
}
