//go:build rp2040

package main

// ModeConfig determines which mode to run
type ModeConfig struct {
	// True runs the ADC monitor on the board without a host.
	// False serves the ADC commands over USB.
	Standalone bool
}

// standaloneBuild is set by mode_standalone.go.
var standaloneBuild bool

// GetMode returns the current mode configuration.
// Build with -tags standalone to run the monitor.
func GetMode() ModeConfig {
	return ModeConfig{
		Standalone: standaloneBuild,
	}
}
