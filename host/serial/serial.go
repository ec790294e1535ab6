package serial

import (
	"errors"
	"io"
)

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (using github.com/tarm/serial)
// - In-memory pipes for testing
type Port interface {
	io.ReadWriteCloser

	// Flush discards data received but not yet read
	Flush() error
}

// DefaultBaud is the UART rate the adcshare firmware configures.
const DefaultBaud = 115200

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3")
	Device string

	// Baud rate (USB CDC ignores this)
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the firmware's default port settings for device.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100, // 100ms read timeout
	}
}

// Validate checks that cfg can be used to open a port.
func (c *Config) Validate() error {
	if c.Device == "" {
		return errors.New("serial: device path is empty")
	}
	if c.Baud <= 0 {
		return errors.New("serial: baud rate must be positive")
	}
	if c.ReadTimeout < 0 {
		return errors.New("serial: read timeout cannot be negative")
	}
	return nil
}
