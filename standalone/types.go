package standalone

import "adcshare/core"

// Consumer is a named set of channels read together through one handle.
type Consumer struct {
	Name     string
	Channels []core.ChannelConfig
}

// Sample is one channel's result from a poll round.
type Sample struct {
	Consumer string
	Config   core.ChannelConfig

	Raw    int
	RawErr error

	MilliVolts int
	VoltageErr error // also set to RawErr when the raw read failed
}

// DefaultConsumers reads two unit A channels at 11dB and 12 bits, the
// board's battery and light sense inputs.
func DefaultConsumers() []Consumer {
	return []Consumer{
		{
			Name: "demo",
			Channels: []core.ChannelConfig{
				{Unit: core.UnitA, Channel: 0, Atten: core.Atten11dB, BitWidth: core.BitWidth12},
				{Unit: core.UnitA, Channel: 3, Atten: core.Atten11dB, BitWidth: core.BitWidth12},
			},
		},
	}
}
