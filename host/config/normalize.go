// host/config/normalize.go
package config

import "adcshare/host/serial"

// DefaultIntervalMs is the poll period used when none is configured.
const DefaultIntervalMs = 1000

// Normalize fills in defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Port.Baud == 0 {
		cfg.Port.Baud = serial.DefaultBaud
	}
	if cfg.Port.ReadTimeoutMs == 0 {
		cfg.Port.ReadTimeoutMs = 100
	}
	if cfg.Poll.IntervalMs == 0 {
		cfg.Poll.IntervalMs = DefaultIntervalMs
	}
}

// Serial returns the port settings in the form serial.Open takes.
func (p PortConfig) Serial() *serial.Config {
	return &serial.Config{
		Device:      p.Device,
		Baud:        p.Baud,
		ReadTimeout: p.ReadTimeoutMs,
	}
}
