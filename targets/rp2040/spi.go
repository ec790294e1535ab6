//go:build rp2040

package main

import (
	"machine"
)

// RP2040 SPI bus configurations, named after Klipper's RP2040 bus table.
type spiBusConfig struct {
	spi  *machine.SPI // SPI controller (SPI0 or SPI1)
	sck  machine.Pin  // Clock pin
	mosi machine.Pin  // Master Out Slave In
	miso machine.Pin  // Master In Slave Out
	name string       // Human-readable name
}

var rp2040SPIBuses = map[string]spiBusConfig{
	"spi0a": {spi: machine.SPI0, sck: machine.GPIO2, mosi: machine.GPIO3, miso: machine.GPIO0, name: "spi0a"},
	"spi0c": {spi: machine.SPI0, sck: machine.GPIO18, mosi: machine.GPIO19, miso: machine.GPIO16, name: "spi0c"},
	"spi1a": {spi: machine.SPI1, sck: machine.GPIO10, mosi: machine.GPIO11, miso: machine.GPIO8, name: "spi1a"},
}

// MCP3008 wiring: spi0c with chip select on GPIO17.
const (
	mcp3008Bus  = "spi0c"
	mcp3008CS   = machine.GPIO17
	mcp3008Rate = 1000000 // 1.35MHz max at 2.7V
)

// configureSPI sets up a hardware SPI bus in mode 0.
func configureSPI(name string, rate uint32) (*machine.SPI, error) {
	bus, ok := rp2040SPIBuses[name]
	if !ok {
		return nil, errNoDevice
	}

	err := bus.spi.Configure(machine.SPIConfig{
		Frequency: rate,
		SCK:       bus.sck,
		SDO:       bus.mosi,
		SDI:       bus.miso,
		Mode:      0,
	})
	if err != nil {
		return nil, err
	}
	return bus.spi, nil
}
