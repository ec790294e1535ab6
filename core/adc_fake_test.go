package core

import (
	"errors"
	"sync"
)

var (
	errFakeInit   = errors.New("fake: unit init failed")
	errFakeConfig = errors.New("fake: channel busy")
	errFakeRead   = errors.New("fake: read timeout")
	errFakeCali   = errors.New("fake: efuse not burnt")
)

type fakeUnit struct {
	unit Unit
}

// fakeDriver records every collaborator call and serves fixed samples.
type fakeDriver struct {
	mu sync.Mutex

	created    [UnitCount]int
	deleted    [UnitCount]int
	configured map[channelKey]int
	reads      int

	newErr    map[Unit]error
	configErr map[channelKey]error
	readErr   error
	raw       map[channelKey]int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		configured: make(map[channelKey]int),
		newErr:     make(map[Unit]error),
		configErr:  make(map[channelKey]error),
		raw:        make(map[channelKey]int),
	}
}

func (d *fakeDriver) NewUnit(unit Unit) (UnitHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.newErr[unit]; err != nil {
		return nil, err
	}
	d.created[unit.index()]++
	return &fakeUnit{unit: unit}, nil
}

func (d *fakeDriver) DeleteUnit(h UnitHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleted[h.(*fakeUnit).unit.index()]++
	return nil
}

func (d *fakeDriver) ConfigChannel(h UnitHandle, ch Channel, atten Atten, width BitWidth) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := channelKey{unit: h.(*fakeUnit).unit, ch: ch}
	if err := d.configErr[key]; err != nil {
		return err
	}
	d.configured[key]++
	return nil
}

func (d *fakeDriver) Read(h UnitHandle, ch Channel) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads++
	if d.readErr != nil {
		return 0, d.readErr
	}
	if v, ok := d.raw[channelKey{unit: h.(*fakeUnit).unit, ch: ch}]; ok {
		return v, nil
	}
	return 2048, nil
}

// live returns the number of created minus deleted instances of unit.
func (d *fakeDriver) live(unit Unit) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[unit.index()] - d.deleted[unit.index()]
}

func (d *fakeDriver) createdCount(unit Unit) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[unit.index()]
}

func (d *fakeDriver) readCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

type fakeContext struct {
	unit  Unit
	atten Atten
}

// fakeScheme converts raw samples to raw*2 millivolts.
type fakeScheme struct {
	mu sync.Mutex

	creates     int
	deletes     int
	conversions int
	attens      []Atten

	createErr map[Unit]error
}

func newFakeScheme() *fakeScheme {
	return &fakeScheme{createErr: make(map[Unit]error)}
}

func (s *fakeScheme) Name() string { return "fake" }

func (s *fakeScheme) Create(unit Unit, atten Atten, width BitWidth) (CalibrationContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createErr[unit]; err != nil {
		return nil, err
	}
	s.creates++
	s.attens = append(s.attens, atten)
	return &fakeContext{unit: unit, atten: atten}, nil
}

func (s *fakeScheme) Delete(ctx CalibrationContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	return nil
}

func (s *fakeScheme) RawToVoltage(ctx CalibrationContext, raw int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversions++
	return raw * 2, nil
}

func (s *fakeScheme) liveContexts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates - s.deletes
}

func (s *fakeScheme) conversionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversions
}

func cfg(unit Unit, ch Channel) ChannelConfig {
	return ChannelConfig{Unit: unit, Channel: ch, Atten: Atten11dB, BitWidth: BitWidth12}
}
