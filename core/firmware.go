package core

import (
	"io"

	"adcshare/protocol"
)

// Firmware wires a Manager to the host link: the ADC service, its command
// registry and the MCU-side transport.
type Firmware struct {
	Manager    *Manager
	Service    *ADCService
	Registry   *CommandRegistry
	Dictionary *Dictionary
	Transport  *protocol.Transport

	output *protocol.ScratchOutput
	log    *Logger
}

// NewFirmware builds the command surface and dictionary for mgr. A host
// that restarts its sequence gets every handle it left behind released.
func NewFirmware(mgr *Manager) *Firmware {
	f := &Firmware{
		Manager:  mgr,
		Registry: NewCommandRegistry(),
		output:   protocol.NewScratchOutput(),
		log:      NewLogger("fw"),
	}
	send := func(cmdID uint16, args func(output protocol.OutputBuffer)) {
		f.Transport.SendCommand(cmdID, args)
	}
	f.Service = NewADCService(mgr, send)
	f.Service.Register(f.Registry)

	f.Dictionary = NewDictionary(f.Registry)
	RegisterIdentifyMessages(f.Registry, f.Dictionary, send)
	mgr.Describe(f.Dictionary)
	f.Dictionary.Build()

	f.Transport = protocol.NewTransport(f.output, f.Registry.Dispatch)
	f.Transport.SetResetCallback(func() {
		f.log.Info("host reset, releasing handles")
		f.Service.Reset()
	})
	f.Transport.SetErrorCallback(func(err error) {
		f.log.Warn("dispatch: " + err.Error())
	})
	return f
}

// Serve runs the link over rw until it fails or reaches EOF.
func (f *Firmware) Serve(rw io.ReadWriter) error {
	f.log.Info("serving " + protocol.Version + ", " + itoa(f.Registry.Count()) + " messages")
	return protocol.Serve(rw, f.Transport, f.output)
}

// Close releases every host handle and deletes all units.
func (f *Firmware) Close() error {
	f.Service.Reset()
	return f.Manager.Close()
}
