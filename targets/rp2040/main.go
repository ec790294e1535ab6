//go:build rp2040

package main

import (
	"machine"
	"time"

	"tinygo.org/x/drivers/mcp3008"

	"adcshare/core"
)

var log = core.NewLogger("main")

func main() {
	// Disable watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()
	InitDebugUART()
	core.SetDebugWriter(DebugPrintln)
	core.InitAsyncDebug()

	driver := NewBoardDriver()
	if spi, err := configureSPI(mcp3008Bus, mcp3008Rate); err != nil {
		log.Warn("MCP3008 bus " + mcp3008Bus + ": " + err.Error())
	} else {
		driver.AttachExternal(newExternalADC(mcp3008.New(spi, mcp3008CS)))
	}
	core.SetADCDriver(driver)
	core.SetCalibrationScheme(calibrationScheme())

	mgr := core.DefaultManager()

	if GetMode().Standalone {
		RunStandaloneMode(mgr)
		return
	}

	fw := core.NewFirmware(mgr)
	for {
		// Serve only returns on a failed USB write, usually a host that
		// went away. Handles stay bound until the host resets the link.
		if err := fw.Serve(usbLink{}); err != nil {
			log.Warn("link: " + err.Error())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
