//go:build rp2040

package main

import (
	"errors"

	"tinygo.org/x/drivers/mcp3008"

	"adcshare/core"
)

// mcp3008Channels is the input count of the MCP3008.
const mcp3008Channels = 8

// externalADC is an MCP3008 10-bit converter. Its range follows VREF, so
// like the on-chip ADC it only supports core.Atten11dB.
type externalADC struct {
	dev        *mcp3008.Device
	configured [mcp3008Channels]bool
	width      [mcp3008Channels]core.BitWidth
}

func newExternalADC(dev *mcp3008.Device) *externalADC {
	return &externalADC{dev: dev}
}

func (e *externalADC) open() error {
	e.dev.Configure()
	return nil
}

func (e *externalADC) close() error {
	for i := range e.configured {
		e.configured[i] = false
	}
	return nil
}

func (e *externalADC) configure(ch core.Channel, atten core.Atten, width core.BitWidth) error {
	if ch >= mcp3008Channels {
		return errors.New("unsupported MCP3008 channel")
	}
	if atten != core.Atten11dB {
		return errUnsupportedAtten
	}
	e.configured[ch] = true
	e.width[ch] = width
	return nil
}

func (e *externalADC) read(ch core.Channel) (int, error) {
	if ch >= mcp3008Channels {
		return 0, errors.New("unsupported MCP3008 channel")
	}
	if !e.configured[ch] {
		return 0, core.ErrInvalidState
	}
	// The driver scales the 10-bit result to 16 bits
	v, err := e.dev.Read(int(ch))
	if err != nil {
		return 0, err
	}
	return scale16(v, e.width[ch]), nil
}
