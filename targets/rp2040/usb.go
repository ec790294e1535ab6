//go:build rp2040

package main

import (
	"machine"
	"time"
)

// InitUSB initializes USB serial communication.
// On RP2040, machine.Serial is USB CDC, not UART.
func InitUSB() {
	err := machine.Serial.Configure(machine.UARTConfig{})
	if err != nil {
		return
	}
}

// usbLink is the host link over USB CDC.
type usbLink struct{}

// Read drains whatever USB has buffered into p. It never blocks for long:
// with nothing buffered it sleeps briefly and returns 0.
func (usbLink) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			break
		}
		p[n] = b
		n++
	}
	if n == 0 {
		time.Sleep(100 * time.Microsecond)
	}
	return n, nil
}

func (usbLink) Write(p []byte) (int, error) {
	return machine.Serial.Write(p)
}
