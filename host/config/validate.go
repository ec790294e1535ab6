// host/config/validate.go
package config

import (
	"fmt"
	"strings"

	"adcshare/core"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.Port.Baud < 0 {
		return fmt.Errorf("port: baud must not be negative")
	}
	if cfg.Port.ReadTimeoutMs < 0 {
		return fmt.Errorf("port: read_timeout_ms must not be negative")
	}
	if cfg.Poll.IntervalMs < 0 {
		return fmt.Errorf("poll: interval_ms must not be negative")
	}
	if cfg.Poll.Count < 0 {
		return fmt.Errorf("poll: count must not be negative")
	}

	if len(cfg.Consumers) == 0 {
		return fmt.Errorf("no consumers defined")
	}

	names := make(map[string]int)
	oids := make(map[uint8]string)

	for i, c := range cfg.Consumers {
		if c.Name == "" {
			return fmt.Errorf("consumer #%d: name is required", i)
		}
		if prev, exists := names[c.Name]; exists {
			return fmt.Errorf("consumer %q defined twice (#%d and #%d)", c.Name, prev, i)
		}
		names[c.Name] = i

		if prev, exists := oids[c.OID]; exists {
			return fmt.Errorf("oid %d used by consumers %q and %q", c.OID, prev, c.Name)
		}
		oids[c.OID] = c.Name

		if len(c.Channels) == 0 {
			return fmt.Errorf("consumer %q: no channels", c.Name)
		}

		// key = unit | channel
		seen := make(map[string]bool)
		for j := range c.Channels {
			cc, err := c.Channels[j].ToCore()
			if err != nil {
				return fmt.Errorf("consumer %q channel #%d: %w", c.Name, j, err)
			}
			key := fmt.Sprintf("%d|%d", cc.Unit, cc.Channel)
			if seen[key] {
				return fmt.Errorf("consumer %q: %s_CH%d listed twice", c.Name, cc.Unit, cc.Channel)
			}
			seen[key] = true
		}
	}

	return nil
}

// ToCore converts s to a validated core.ChannelConfig.
func (s *ChannelSpec) ToCore() (core.ChannelConfig, error) {
	unit, err := parseUnit(s.Unit)
	if err != nil {
		return core.ChannelConfig{}, err
	}
	atten, err := parseAtten(s.Atten)
	if err != nil {
		return core.ChannelConfig{}, err
	}
	if s.Channel < 0 || s.Channel >= core.MaxChannel {
		return core.ChannelConfig{}, fmt.Errorf("channel %d out of range 0-%d", s.Channel, core.MaxChannel-1)
	}
	if s.BitWidth < 0 || s.BitWidth > 0xFF || !core.BitWidth(s.BitWidth).Valid() {
		return core.ChannelConfig{}, fmt.Errorf("unsupported bitwidth %d", s.BitWidth)
	}

	c := core.ChannelConfig{
		Unit:     unit,
		Channel:  core.Channel(s.Channel),
		Atten:    atten,
		BitWidth: core.BitWidth(s.BitWidth),
	}
	if err := c.Validate(); err != nil {
		return core.ChannelConfig{}, err
	}
	return c, nil
}

// Configs converts every channel of c.
func (c *ConsumerConfig) Configs() ([]core.ChannelConfig, error) {
	out := make([]core.ChannelConfig, 0, len(c.Channels))
	for i := range c.Channels {
		cc, err := c.Channels[i].ToCore()
		if err != nil {
			return nil, fmt.Errorf("consumer %q channel #%d: %w", c.Name, i, err)
		}
		out = append(out, cc)
	}
	return out, nil
}

func parseUnit(s string) (core.Unit, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A", "1", "ADC1":
		return core.UnitA, nil
	case "B", "2", "ADC2":
		return core.UnitB, nil
	}
	return 0, fmt.Errorf("unknown unit %q (want A or B)", s)
}

func parseAtten(s string) (core.Atten, error) {
	switch strings.ToLower(strings.ReplaceAll(s, " ", "")) {
	case "0db", "0":
		return core.Atten0dB, nil
	case "2.5db", "2_5db", "2.5":
		return core.Atten2_5dB, nil
	case "6db", "6":
		return core.Atten6dB, nil
	case "11db", "12db", "11", "12":
		return core.Atten11dB, nil
	}
	return 0, fmt.Errorf("unknown attenuation %q", s)
}
