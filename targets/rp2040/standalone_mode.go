//go:build rp2040

package main

import (
	"machine"
	"time"

	"adcshare/core"
	"adcshare/standalone"
)

// monitorPeriod is the sampling period in standalone mode.
const monitorPeriod = time.Second

// RunStandaloneMode samples the default consumers forever, logging to the
// debug UART. No host is required.
func RunStandaloneMode(mgr *core.Manager) {
	monitor := standalone.NewMonitor(standalone.DefaultConsumers())

	if err := monitor.Initialize(mgr); err != nil {
		DebugPrintln("monitor: " + err.Error())
		blinkForever(100 * time.Millisecond)
	}

	// Flash LED 3 times to indicate standalone mode started
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for i := 0; i < 3; i++ {
		led.High()
		time.Sleep(200 * time.Millisecond)
		led.Low()
		time.Sleep(200 * time.Millisecond)
	}

	monitor.Run(monitorPeriod, nil)
}

// blinkForever flashes the LED to indicate an error.
func blinkForever(period time.Duration) {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.High()
		time.Sleep(period)
		led.Low()
		time.Sleep(period)
	}
}
