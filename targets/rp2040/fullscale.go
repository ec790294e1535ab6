//go:build rp2040

package main

import (
	"adcshare/core"
)

// Both converters span 0-3.3V at every attenuation setting.
func fullScale() map[core.Atten]int {
	return map[core.Atten]int{
		core.Atten0dB:   3300,
		core.Atten2_5dB: 3300,
		core.Atten6dB:   3300,
		core.Atten11dB:  3300,
	}
}
