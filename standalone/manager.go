package standalone

import (
	"errors"
	"time"

	"adcshare/core"
)

// Monitor polls a fixed set of consumers on the MCU itself, without a
// host. Each consumer holds its own handle on the shared manager.
type Monitor struct {
	consumers []Consumer
	handles   []*core.Handle
	mgr       *core.Manager
	log       *core.Logger

	// Status
	initialized bool
	running     bool
}

// NewMonitor creates a monitor for consumers. Call Initialize before use.
func NewMonitor(consumers []Consumer) *Monitor {
	return &Monitor{
		consumers: consumers,
		log:       core.NewLogger("monitor"),
	}
}

// Initialize acquires a handle per consumer. If one fails, the handles
// acquired so far are released.
func (m *Monitor) Initialize(mgr *core.Manager) error {
	if m.initialized {
		return errors.New("already initialized")
	}
	if mgr == nil {
		return core.ErrInvalidArgument
	}

	handles := make([]*core.Handle, 0, len(m.consumers))
	for _, c := range m.consumers {
		h, err := mgr.Acquire(c.Channels)
		if err != nil {
			m.log.Error(c.Name + ": acquire failed: " + err.Error())
			for _, prev := range handles {
				if err := prev.Release(); err != nil {
					m.log.Warn("release: " + err.Error())
				}
			}
			return err
		}
		handles = append(handles, h)
	}

	m.mgr = mgr
	m.handles = handles
	m.initialized = true
	return nil
}

// Poll reads every channel of every consumer once, raw first, then in
// millivolts. Each result is logged.
func (m *Monitor) Poll() []Sample {
	if !m.initialized {
		return nil
	}

	var samples []Sample
	for i, c := range m.consumers {
		h := m.handles[i]
		for _, cfg := range c.Channels {
			s := Sample{Consumer: c.Name, Config: cfg}
			name := cfg.Unit.String() + "_CH" + itoa(int(cfg.Channel))

			s.Raw, s.RawErr = h.ReadRaw(cfg.Unit, cfg.Channel)
			if s.RawErr != nil {
				m.log.Error(c.Name + ": read " + name + " raw failed: " + s.RawErr.Error())
				s.VoltageErr = s.RawErr
				samples = append(samples, s)
				continue
			}
			m.log.Info(c.Name + ": " + name + " raw: " + itoa(s.Raw))

			s.MilliVolts, s.VoltageErr = h.ReadVoltage(cfg.Unit, cfg.Channel)
			if s.VoltageErr != nil {
				m.log.Error(c.Name + ": read " + name + " voltage failed: " + s.VoltageErr.Error())
			} else {
				m.log.Info(c.Name + ": " + name + " voltage: " + itoa(s.MilliVolts) + " mV")
			}
			samples = append(samples, s)
		}
	}
	return samples
}

// Start begins standalone operation
func (m *Monitor) Start() error {
	if !m.initialized {
		return errors.New("monitor not initialized")
	}

	m.running = true
	m.log.Info("standalone monitor ready, " + itoa(len(m.consumers)) + " consumers")
	return nil
}

// Run polls every period until stop is closed, then releases the handles.
func (m *Monitor) Run(period time.Duration, stop <-chan struct{}) error {
	if err := m.Start(); err != nil {
		return err
	}
	defer m.Stop()

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		m.Poll()
		select {
		case <-stop:
			return nil
		case <-ticker.C:
		}
	}
}

// Stop releases every handle. The monitor must be initialized again
// before reuse.
func (m *Monitor) Stop() {
	m.running = false
	for _, h := range m.handles {
		if err := h.Release(); err != nil {
			m.log.Warn("release: " + err.Error())
		}
	}
	m.handles = nil
	m.initialized = false
}

// IsRunning returns whether the monitor is running
func (m *Monitor) IsRunning() bool {
	return m.running
}

// itoa converts int to string without importing strconv (for embedded)
func itoa(i int) string {
	if i == 0 {
		return "0"
	}

	negative := i < 0
	if negative {
		i = -i
	}

	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}

	if negative {
		pos--
		buf[pos] = '-'
	}

	return string(buf[pos:])
}
