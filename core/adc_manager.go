package core

import (
	"sync"

	"github.com/google/uuid"
)

// ConflictPolicy decides what happens when a consumer asks for a channel
// that another live consumer already configured with different settings.
type ConflictPolicy uint8

const (
	// FirstWriterWins keeps the existing hardware settings. The later
	// consumer's calibration follows the settings actually in effect.
	FirstWriterWins ConflictPolicy = iota
	// RejectConflicts fails the acquire with ErrChannelConflict.
	RejectConflicts
)

func (p ConflictPolicy) String() string {
	if p == RejectConflicts {
		return "reject_conflicts"
	}
	return "first_writer_wins"
}

// unitSlot is the shared state of one physical unit.
// The unit is initialized iff handle is non-nil.
type unitSlot struct {
	handle UnitHandle
	refs   int // live handles using the unit
}

type channelKey struct {
	unit Unit
	ch   Channel
}

func keyOf(c ChannelConfig) channelKey {
	return channelKey{unit: c.Unit, ch: c.Channel}
}

// channelOwner records the settings a channel was configured with.
type channelOwner struct {
	cfg  ChannelConfig
	refs int
}

// Manager multiplexes independent consumers onto the two ADC units.
// Units are created on first use and deleted when their last user releases.
// All methods are safe for concurrent use.
type Manager struct {
	driver     ADCDriver
	scheme     CalibrationScheme // nil disables calibration
	log        *Logger
	policy     ConflictPolicy
	maxHandles int

	mu      sync.Mutex
	units   [UnitCount]unitSlot
	handles int
	owners  map[channelKey]*channelOwner
	closed  bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger used for lifecycle and warning lines.
func WithLogger(l *Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// WithConflictPolicy sets the channel reconfiguration policy.
func WithConflictPolicy(p ConflictPolicy) ManagerOption {
	return func(m *Manager) { m.policy = p }
}

// WithMaxHandles bounds the number of live handles. Zero means unbounded.
func WithMaxHandles(n int) ManagerOption {
	return func(m *Manager) { m.maxHandles = n }
}

// NewManager creates a manager over driver. A nil scheme leaves every
// channel uncalibrated.
func NewManager(driver ADCDriver, scheme CalibrationScheme, opts ...ManagerOption) *Manager {
	if driver == nil {
		panic("adc: NewManager requires a driver")
	}
	m := &Manager{
		driver: driver,
		scheme: scheme,
		log:    NewLogger("adc"),
		owners: make(map[channelKey]*channelOwner),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire builds a handle for configs, creating any unit not yet in use.
//
// Channel configuration and calibration failures are logged and leave the
// channel partially usable; see Handle.Channels. A unit creation failure
// returns the driver's error. Units created earlier in the same call stay
// initialized.
func (m *Manager) Acquire(configs []ChannelConfig) (*Handle, error) {
	if len(configs) == 0 {
		return nil, ErrInvalidArgument
	}

	var need [UnitCount]bool
	for i, c := range configs {
		if err := c.Validate(); err != nil {
			m.log.Error("invalid channel config #" + itoa(i) + ": " + c.String())
			return nil, err
		}
		for _, prev := range configs[:i] {
			if keyOf(prev) == keyOf(c) {
				m.log.Error("duplicate channel " + c.String())
				return nil, ErrInvalidArgument
			}
		}
		need[c.Unit.index()] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrInvalidState
	}
	if m.maxHandles > 0 && m.handles >= m.maxHandles {
		m.log.Error("handle limit reached (" + itoa(m.maxHandles) + ")")
		return nil, ErrNoMemory
	}
	if m.policy == RejectConflicts {
		for _, c := range configs {
			if o, ok := m.owners[keyOf(c)]; ok && !o.cfg.sameSettings(c) {
				m.log.Error("channel " + c.String() + " conflicts with " + o.cfg.String())
				return nil, ErrChannelConflict
			}
		}
	}

	for i, needed := range need {
		if !needed {
			continue
		}
		if err := m.ensureUnit(Unit(i + 1)); err != nil {
			return nil, err
		}
	}

	h := &Handle{
		id:       uuid.New(),
		mgr:      m,
		channels: make([]channelEntry, len(configs)),
		uses:     need,
	}
	for i, c := range configs {
		e := &h.channels[i]
		e.cfg = c
		effective := m.configure(e)
		e.cali = m.calibrate(effective)
		if e.cali != nil {
			h.caliNum++
		}
	}

	m.handles++
	for i, used := range need {
		if used {
			m.units[i].refs++
		}
	}
	m.log.Info("handle " + h.id.String() + " acquired, " + itoa(len(configs)) +
		" channels, handles=" + itoa(m.handles))
	return h, nil
}

// ensureUnit creates unit unless it is already initialized.
// Must be called with m.mu held.
func (m *Manager) ensureUnit(unit Unit) error {
	slot := &m.units[unit.index()]
	if slot.handle != nil {
		m.log.Info(unit.String() + " already initialized, reusing")
		return nil
	}
	uh, err := m.driver.NewUnit(unit)
	if err != nil {
		m.log.Error(unit.String() + " init failed: " + err.Error())
		return err
	}
	if uh == nil {
		m.log.Error(unit.String() + " init returned no handle")
		return ErrInvalidState
	}
	slot.handle = uh
	m.log.Info(unit.String() + " initialized")
	return nil
}

// configure sets up e's channel on hardware, or joins the existing owner,
// and returns the settings in effect. Must be called with m.mu held.
func (m *Manager) configure(e *channelEntry) ChannelConfig {
	c := e.cfg
	key := keyOf(c)
	if o, ok := m.owners[key]; ok {
		o.refs++
		e.owned = true
		e.configured = true
		if !o.cfg.sameSettings(c) {
			m.log.Warn("channel " + c.String() + " already configured as " +
				o.cfg.String() + ", keeping existing settings")
			return o.cfg
		}
		return c
	}

	uh := m.units[c.Unit.index()].handle
	if err := m.driver.ConfigChannel(uh, c.Channel, c.Atten, c.BitWidth); err != nil {
		m.log.Warn("configure " + c.String() + " failed, may be configured by another module: " + err.Error())
		return c
	}
	m.owners[key] = &channelOwner{cfg: c, refs: 1}
	e.owned = true
	e.configured = true
	return c
}

// calibrate creates the calibration context for c, or returns nil.
func (m *Manager) calibrate(c ChannelConfig) CalibrationContext {
	if m.scheme == nil {
		return nil
	}
	ctx, err := m.scheme.Create(c.Unit, c.Atten, c.BitWidth)
	if err != nil || ctx == nil {
		m.log.Warn(m.scheme.Name() + " calibration unavailable for " + c.String() + ": " + errString(err))
		return nil
	}
	return ctx
}

// unitFor resolves the driver handle for a read through h.
func (m *Manager) unitFor(h *Handle, unit Unit) (UnitHandle, error) {
	if h == nil || h.mgr != m || !unit.Valid() {
		return nil, ErrInvalidArgument
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	uh := m.units[unit.index()].handle
	if h.released || uh == nil || !h.uses[unit.index()] {
		m.log.Error(unit.String() + " not initialized or not used by this handle")
		return nil, ErrInvalidState
	}
	return uh, nil
}

// ReadRaw performs a one-shot read of ch on unit through h.
// The driver's error is returned unchanged.
func (m *Manager) ReadRaw(h *Handle, unit Unit, ch Channel) (int, error) {
	uh, err := m.unitFor(h, unit)
	if err != nil {
		return 0, err
	}
	// A live handle pins the unit, so the driver call runs unlocked.
	return m.driver.Read(uh, ch)
}

// ReadVoltage reads ch on unit through h and converts it to millivolts.
// Read failures propagate unchanged; a channel without calibration
// returns ErrNotFound.
func (m *Manager) ReadVoltage(h *Handle, unit Unit, ch Channel) (int, error) {
	raw, err := m.ReadRaw(h, unit, ch)
	if err != nil {
		return 0, err
	}
	return m.toVoltage(h, unit, ch, raw)
}

// toVoltage converts a raw sample already read through h.
func (m *Manager) toVoltage(h *Handle, unit Unit, ch Channel, raw int) (int, error) {
	e := h.lookup(unit, ch)
	if e == nil || e.cali == nil {
		m.log.Error("no calibration for " + unit.String() + "_CH" + itoa(int(ch)))
		return 0, ErrNotFound
	}
	return m.scheme.RawToVoltage(e.cali, raw)
}

// Release drops h's calibration contexts and its references on the units,
// deleting any unit no live handle uses anymore. Releasing twice is a no-op.
func (m *Manager) Release(h *Handle) error {
	if h == nil || h.mgr != m {
		return ErrInvalidArgument
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if h.released {
		return nil
	}
	h.released = true

	for i := range h.channels {
		e := &h.channels[i]
		if e.cali != nil {
			if err := m.scheme.Delete(e.cali); err != nil {
				m.log.Warn("delete calibration for " + e.cfg.String() + ": " + err.Error())
			}
			e.cali = nil
		}
		if e.owned {
			key := keyOf(e.cfg)
			if o := m.owners[key]; o != nil {
				o.refs--
				if o.refs <= 0 {
					delete(m.owners, key)
				}
			}
			e.owned = false
		}
	}
	h.caliNum = 0

	m.handles--
	m.log.Info("handle " + h.id.String() + " released, handles=" + itoa(m.handles))

	for i, used := range h.uses {
		if !used {
			continue
		}
		slot := &m.units[i]
		if slot.refs > 0 {
			slot.refs--
		}
		if slot.refs == 0 && slot.handle != nil {
			m.deleteUnit(Unit(i + 1))
		}
	}
	// A unit left behind by a failed acquire has no refs to drop; the last
	// release sweeps it.
	if m.handles == 0 {
		for i := range m.units {
			if m.units[i].refs == 0 && m.units[i].handle != nil {
				m.deleteUnit(Unit(i + 1))
			}
		}
	}
	return nil
}

// deleteUnit tears down unit. Must be called with m.mu held.
func (m *Manager) deleteUnit(unit Unit) {
	slot := &m.units[unit.index()]
	if err := m.driver.DeleteUnit(slot.handle); err != nil {
		m.log.Warn(unit.String() + " delete failed: " + err.Error())
	}
	slot.handle = nil
	m.log.Info(unit.String() + " released")
}

// Close deletes every initialized unit and refuses further acquires.
// Live handles can still be released; their reads fail with ErrInvalidState.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for i := range m.units {
		if m.units[i].handle != nil {
			m.deleteUnit(Unit(i + 1))
		}
		m.units[i].refs = 0
	}
	clear(m.owners)
	return nil
}

// Describe adds the manager's settings to d as dictionary constants.
func (m *Manager) Describe(d *Dictionary) {
	scheme := "none"
	if m.scheme != nil {
		scheme = m.scheme.Name()
	}
	d.AddConstant("ADC_UNITS", UnitCount)
	d.AddConstant("ADC_MAX_CHANNEL", MaxChannel)
	d.AddConstant("ADC_MAX_HANDLES", m.maxHandles)
	d.AddConstant("ADC_CALIBRATION", scheme)
	d.AddConstant("ADC_CONFLICT_POLICY", m.policy.String())
}

// UnitStats describes one unit slot.
type UnitStats struct {
	Initialized bool
	Refs        int
}

// Stats is a snapshot of the manager's shared state.
type Stats struct {
	Handles int
	Units   [UnitCount]UnitStats
}

// Unit returns the stats of unit u. Invalid units report the zero value.
func (s Stats) Unit(u Unit) UnitStats {
	if !u.Valid() {
		return UnitStats{}
	}
	return s.Units[u.index()]
}

// Stats returns a snapshot of the usage counter and unit slots.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{Handles: m.handles}
	for i, slot := range m.units {
		s.Units[i] = UnitStats{Initialized: slot.handle != nil, Refs: slot.refs}
	}
	return s
}

// Process-wide manager built from the registered driver and scheme.
var (
	defaultMu  sync.Mutex
	defaultMgr *Manager
)

// DefaultManager returns the process-wide manager, creating it from the
// driver registered with SetADCDriver on first use.
func DefaultManager() *Manager {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultMgr == nil {
		defaultMgr = NewManager(MustADC(), calibrationScheme)
	}
	return defaultMgr
}

// resetDefaultManager drops the process-wide manager so the next
// DefaultManager call rebuilds it from the registered driver.
func resetDefaultManager() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultMgr = nil
}

// Acquire builds a handle on the default manager.
func Acquire(configs []ChannelConfig) (*Handle, error) {
	return DefaultManager().Acquire(configs)
}

// ReadRaw reads a raw sample through h.
func ReadRaw(h *Handle, unit Unit, ch Channel) (int, error) {
	return h.ReadRaw(unit, ch)
}

// ReadVoltage reads a calibrated sample in millivolts through h.
func ReadVoltage(h *Handle, unit Unit, ch Channel) (int, error) {
	return h.ReadVoltage(unit, ch)
}

// Release returns h to its manager.
func Release(h *Handle) error {
	return h.Release()
}
