// host/config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port      PortConfig       `yaml:"port"`
	Poll      PollConfig       `yaml:"poll"`
	Consumers []ConsumerConfig `yaml:"consumers"`
}

// ---- PORT ----

type PortConfig struct {
	Device        string `yaml:"device"`
	Baud          int    `yaml:"baud"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs int `yaml:"interval_ms"`
	Count      int `yaml:"count"` // 0 = until interrupted
}

// ---- CONSUMER ----

// ConsumerConfig is one independent user of the shared ADC, bound to a
// handle on the MCU under OID.
type ConsumerConfig struct {
	Name     string        `yaml:"name"`
	OID      uint8         `yaml:"oid"`
	Channels []ChannelSpec `yaml:"channels"`
}

// ChannelSpec is the YAML form of core.ChannelConfig.
//
//	{unit: A, channel: 3, atten: 11dB, bitwidth: 12}
type ChannelSpec struct {
	Unit     string `yaml:"unit"`
	Channel  int    `yaml:"channel"`
	Atten    string `yaml:"atten"`
	BitWidth int    `yaml:"bitwidth"` // 0 = default (12)
}

// Load reads and decodes the YAML file at path. Unknown keys are errors.
// The result is not validated.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &cfg, nil
}
