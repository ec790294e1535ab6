package mcu

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"adcshare/core"
	"adcshare/host/serial"
	"adcshare/protocol"
)

// ErrNotConnected is returned by requests on a closed MCU.
var ErrNotConnected = errors.New("not connected to MCU")

// DefaultTimeout bounds the wait for a response after the ACK.
const DefaultTimeout = time.Second

// MCU represents a connection to an adcshare microcontroller
type MCU struct {
	// Transport layer
	transport *protocol.HostTransport

	// Message IDs, derived from the shared registration order
	registry   *core.CommandRegistry
	ids        core.ADCMessageIDs
	identifyID uint16
	identified uint16

	// dictionary is the one retrieved from the firmware
	dictionary *Dictionary

	timeout time.Duration

	// mu pairs each command with its response
	mu        sync.Mutex
	connected bool
}

// NewMCU creates a new MCU instance (not yet connected)
func NewMCU() *MCU {
	m := &MCU{
		registry: core.NewCommandRegistry(),
		timeout:  DefaultTimeout,
	}
	m.ids = core.RegisterADCMessages(m.registry, nil)
	m.identifyID, m.identified = core.RegisterIdentifyMessages(m.registry, nil, nil)
	return m
}

// Connect connects to an MCU via serial port and verifies its dictionary
func (m *MCU) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig connects to an MCU with a custom serial config
func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	if err := port.Flush(); err != nil {
		port.Close()
		return fmt.Errorf("failed to flush serial port: %w", err)
	}

	m.Attach(port)

	// Give MCU time to initialize (if it just powered on)
	time.Sleep(100 * time.Millisecond)

	if err := m.RetrieveDictionary(); err != nil {
		m.Close()
		return err
	}
	return nil
}

// Attach starts a session over an already open link.
func (m *MCU) Attach(port io.ReadWriteCloser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transport = protocol.NewHostTransport(port)
	m.connected = true
}

// SetTimeout sets how long a request waits for its response.
func (m *MCU) SetTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
}

// Close closes the connection to the MCU
func (m *MCU) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}
	m.connected = false
	return m.transport.Close()
}

// IsConnected returns whether the MCU is connected
func (m *MCU) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Messages returns the messages the host speaks, one signature per line.
func (m *MCU) Messages() string {
	return m.registry.Dictionary()
}

// request sends a command and returns the arguments of the first response
// carrying respID. Responses with other IDs are left over from requests
// that timed out and are skipped.
func (m *MCU) request(name string, cmdID uint16, args func(output protocol.OutputBuffer), respID uint16) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, ErrNotConnected
	}
	if err := m.transport.SendCommand(cmdID, args); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", name, err)
	}

	deadline := time.Now().Add(m.timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("no response to %s after %v", name, m.timeout)
		}
		resp, err := m.transport.ReceiveResponse(remaining)
		if err != nil {
			return nil, fmt.Errorf("failed to receive %s response: %w", name, err)
		}

		payload := resp.Payload
		id, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode response command ID: %w", err)
		}
		if uint16(id) == respID {
			return payload, nil
		}
	}
}

// decodeArgs decodes len(dst) VLQ arguments from payload into dst.
func decodeArgs(payload []byte, dst ...*int32) error {
	for i, d := range dst {
		v, err := protocol.DecodeVLQInt(&payload)
		if err != nil {
			return fmt.Errorf("failed to decode argument %d: %w", i, err)
		}
		*d = v
	}
	return nil
}
