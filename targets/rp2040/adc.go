//go:build rp2040

package main

import (
	"errors"
	"machine"

	"device/rp"

	"adcshare/core"
)

// Channel 4 of the on-chip ADC is the internal temperature sensor.
const tempChannel = 4

// onChipADC is the RP2040 SAR ADC: GPIO26-29 are channels 0-3. It has a
// fixed 0-3.3V input range, which core.Atten11dB stands for.
type onChipADC struct {
	channels [tempChannel + 1]*machine.ADC
	width    [tempChannel + 1]core.BitWidth
	inited   bool
}

func newOnChipADC() *onChipADC {
	return &onChipADC{}
}

func (a *onChipADC) open() error {
	if !a.inited {
		machine.InitADC()
		a.inited = true
	}
	return nil
}

// close forgets the channel setup. The peripheral stays powered; other
// firmware code may share it.
func (a *onChipADC) close() error {
	for i := range a.channels {
		a.channels[i] = nil
		a.width[i] = core.BitWidthDefault
	}
	rp.ADC.CS.ClearBits(rp.ADC_CS_TS_EN)
	return nil
}

func (a *onChipADC) configure(ch core.Channel, atten core.Atten, width core.BitWidth) error {
	if atten != core.Atten11dB {
		return errUnsupportedAtten
	}
	if ch == tempChannel {
		rp.ADC.CS.SetBits(rp.ADC_CS_TS_EN)
		a.width[ch] = width
		return nil
	}

	var adc machine.ADC
	switch ch {
	case 0:
		adc = machine.ADC{Pin: machine.ADC0}
	case 1:
		adc = machine.ADC{Pin: machine.ADC1}
	case 2:
		adc = machine.ADC{Pin: machine.ADC2}
	case 3:
		adc = machine.ADC{Pin: machine.ADC3}
	default:
		return errors.New("unsupported ADC channel")
	}

	if err := adc.Configure(machine.ADCConfig{}); err != nil {
		return err
	}
	a.channels[ch] = &adc
	a.width[ch] = width
	return nil
}

// read returns one conversion at the configured width. Channels that
// were never configured read at 12 bits.
func (a *onChipADC) read(ch core.Channel) (int, error) {
	if int(ch) >= len(a.channels) {
		return 0, errors.New("unsupported ADC channel")
	}
	if ch == tempChannel {
		return scale16(rawInternalTemp()<<4, a.width[ch]), nil
	}

	adc := a.channels[ch]
	if adc == nil {
		return 0, core.ErrInvalidState
	}
	// TinyGo scales samples to 16 bits
	return scale16(adc.Get(), a.width[ch]), nil
}

// rawInternalTemp returns the 12-bit raw ADC value from the internal temp sensor (0–4095).
func rawInternalTemp() uint16 {
	// Enable temperature sensor
	rp.ADC.CS.SetBits(rp.ADC_CS_TS_EN)

	// Select ADC channel 4 (internal temperature sensor)
	rp.ADC.CS.ReplaceBits(
		uint32(tempChannel)<<rp.ADC_CS_AINSEL_Pos,
		rp.ADC_CS_AINSEL_Msk,
		0,
	)

	// Start a single conversion
	rp.ADC.CS.SetBits(rp.ADC_CS_START_ONCE)

	// Wait until conversion is ready
	for !rp.ADC.CS.HasBits(rp.ADC_CS_READY) {
	}

	return uint16(rp.ADC.RESULT.Get())
}
