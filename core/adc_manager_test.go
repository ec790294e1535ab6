package core

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, opts ...ManagerOption) (*Manager, *fakeDriver, *fakeScheme) {
	t.Helper()
	d := newFakeDriver()
	s := newFakeScheme()
	return NewManager(d, s, opts...), d, s
}

func TestAcquireReleaseSingleConsumer(t *testing.T) {
	m, d, s := newTestManager(t)

	h, err := m.Acquire([]ChannelConfig{cfg(UnitA, 0), cfg(UnitA, 3)})
	require.NoError(t, err)
	require.NotNil(t, h)

	st := m.Stats()
	assert.Equal(t, 1, st.Handles)
	assert.True(t, st.Unit(UnitA).Initialized)
	assert.Equal(t, 1, st.Unit(UnitA).Refs)
	assert.False(t, st.Unit(UnitB).Initialized)
	assert.Equal(t, 1, d.createdCount(UnitA))
	assert.Equal(t, 0, d.createdCount(UnitB))
	assert.Equal(t, 2, s.liveContexts())

	raw, err := h.ReadRaw(UnitA, 0)
	require.NoError(t, err)
	assert.Equal(t, 2048, raw)

	mv, err := h.ReadVoltage(UnitA, 3)
	require.NoError(t, err)
	assert.Equal(t, 4096, mv)

	require.NoError(t, h.Release())
	st = m.Stats()
	assert.Equal(t, 0, st.Handles)
	assert.False(t, st.Unit(UnitA).Initialized)
	assert.Equal(t, 0, d.live(UnitA))
	assert.Equal(t, 0, s.liveContexts())
}

func TestSharedUnitCreatedOnce(t *testing.T) {
	m, d, _ := newTestManager(t)

	h1, err := m.Acquire([]ChannelConfig{cfg(UnitA, 0), cfg(UnitA, 3)})
	require.NoError(t, err)
	h2, err := m.Acquire([]ChannelConfig{cfg(UnitA, 3)})
	require.NoError(t, err)

	assert.Equal(t, 1, d.createdCount(UnitA))
	assert.Equal(t, 2, m.Stats().Handles)
	assert.Equal(t, 2, m.Stats().Unit(UnitA).Refs)

	require.NoError(t, h1.Release())
	assert.Equal(t, 1, m.Stats().Handles)
	assert.True(t, m.Stats().Unit(UnitA).Initialized, "unit must survive while h2 is live")

	_, err = h2.ReadVoltage(UnitA, 3)
	assert.NoError(t, err)

	require.NoError(t, h2.Release())
	assert.Equal(t, 0, m.Stats().Handles)
	assert.False(t, m.Stats().Unit(UnitA).Initialized)
	assert.Equal(t, 0, d.live(UnitA))
}

func TestUnitRecreatedAfterLastRelease(t *testing.T) {
	m, d, _ := newTestManager(t)

	for i := 0; i < 3; i++ {
		h, err := m.Acquire([]ChannelConfig{cfg(UnitB, 1)})
		require.NoError(t, err)
		require.NoError(t, h.Release())
	}

	assert.Equal(t, 3, d.createdCount(UnitB))
	assert.Equal(t, 0, d.live(UnitB))
	assert.Equal(t, 0, m.Stats().Handles)
}

func TestPerUnitTeardown(t *testing.T) {
	m, d, _ := newTestManager(t)

	ha, err := m.Acquire([]ChannelConfig{cfg(UnitA, 0)})
	require.NoError(t, err)
	hb, err := m.Acquire([]ChannelConfig{cfg(UnitB, 2)})
	require.NoError(t, err)

	require.NoError(t, hb.Release())
	st := m.Stats()
	assert.True(t, st.Unit(UnitA).Initialized)
	assert.False(t, st.Unit(UnitB).Initialized, "unit B has no users left")
	assert.Equal(t, 0, d.live(UnitB))

	_, err = ha.ReadRaw(UnitA, 0)
	assert.NoError(t, err)
	require.NoError(t, ha.Release())
	assert.Equal(t, 0, d.live(UnitA))
}

func TestReadUnitNotUsedByHandle(t *testing.T) {
	m, _, _ := newTestManager(t)

	ha, err := m.Acquire([]ChannelConfig{cfg(UnitA, 0)})
	require.NoError(t, err)
	hb, err := m.Acquire([]ChannelConfig{cfg(UnitB, 0)})
	require.NoError(t, err)

	// Unit B is initialized, but only through hb.
	_, err = ha.ReadRaw(UnitB, 0)
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, hb.Release())
	_, err = ha.ReadRaw(UnitB, 0)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestReadVoltageChannelNotInHandle(t *testing.T) {
	m, _, s := newTestManager(t)

	h, err := m.Acquire([]ChannelConfig{cfg(UnitA, 0), cfg(UnitA, 3)})
	require.NoError(t, err)

	_, err = h.ReadVoltage(UnitA, 5)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.conversionCount())
}

func TestReadVoltagePropagatesReadError(t *testing.T) {
	m, d, s := newTestManager(t)

	h, err := m.Acquire([]ChannelConfig{cfg(UnitA, 0)})
	require.NoError(t, err)

	d.readErr = errFakeRead
	_, err = h.ReadVoltage(UnitA, 0)
	assert.ErrorIs(t, err, errFakeRead)
	assert.Equal(t, 0, s.conversionCount())

	_, err = h.ReadRaw(UnitA, 0)
	assert.ErrorIs(t, err, errFakeRead)
}

func TestReadRawPerChannelSamples(t *testing.T) {
	m, d, _ := newTestManager(t)
	d.raw[channelKey{UnitA, 0}] = 100
	d.raw[channelKey{UnitA, 3}] = 4095

	h, err := m.Acquire([]ChannelConfig{cfg(UnitA, 0), cfg(UnitA, 3)})
	require.NoError(t, err)
	defer h.Release()

	raw, err := h.ReadRaw(UnitA, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, raw)

	mv, err := h.ReadVoltage(UnitA, 3)
	require.NoError(t, err)
	assert.Equal(t, 8190, mv)
}

func TestAcquireInvalidArguments(t *testing.T) {
	tests := []struct {
		name    string
		configs []ChannelConfig
	}{
		{"empty", nil},
		{"zero unit", []ChannelConfig{{Unit: 0, Channel: 0, Atten: Atten11dB}}},
		{"unit out of range", []ChannelConfig{{Unit: 3, Channel: 0, Atten: Atten11dB}}},
		{"channel out of range", []ChannelConfig{{Unit: UnitA, Channel: MaxChannel, Atten: Atten11dB}}},
		{"bad atten", []ChannelConfig{{Unit: UnitA, Channel: 0, Atten: Atten(7)}}},
		{"bad bitwidth", []ChannelConfig{{Unit: UnitA, Channel: 0, Atten: Atten0dB, BitWidth: BitWidth(16)}}},
		{"duplicate channel", []ChannelConfig{cfg(UnitA, 2), cfg(UnitA, 2)}},
		{"bad config after good", []ChannelConfig{cfg(UnitA, 0), {Unit: UnitB, Channel: 42}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, d, _ := newTestManager(t)

			h, err := m.Acquire(tt.configs)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Nil(t, h)
			assert.Equal(t, 0, m.Stats().Handles)
			assert.Equal(t, 0, d.createdCount(UnitA)+d.createdCount(UnitB))
		})
	}
}

func TestNilHandle(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.ReadRaw(nil, UnitA, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = m.ReadVoltage(nil, UnitA, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, m.Release(nil), ErrInvalidArgument)

	var h *Handle
	_, err = h.ReadRaw(UnitA, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, h.Release(), ErrInvalidArgument)

	var zero Handle
	_, err = zero.ReadRaw(UnitA, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = zero.ReadVoltage(UnitA, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, zero.Release(), ErrInvalidArgument)
}

func TestReadInvalidUnit(t *testing.T) {
	m, _, _ := newTestManager(t)

	h, err := m.Acquire([]ChannelConfig{cfg(UnitA, 0)})
	require.NoError(t, err)

	_, err = h.ReadRaw(Unit(0), 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = h.ReadRaw(Unit(9), 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestHandleFromOtherManager(t *testing.T) {
	m1, _, _ := newTestManager(t)
	m2, _, _ := newTestManager(t)

	h, err := m1.Acquire([]ChannelConfig{cfg(UnitA, 0)})
	require.NoError(t, err)

	_, err = m2.ReadRaw(h, UnitA, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, m2.Release(h), ErrInvalidArgument)
	assert.Equal(t, 1, m1.Stats().Handles)
}

func TestUnitInitFailure(t *testing.T) {
	m, d, s := newTestManager(t)
	d.newErr[UnitB] = errFakeInit

	h, err := m.Acquire([]ChannelConfig{cfg(UnitA, 0), cfg(UnitB, 0)})
	assert.ErrorIs(t, err, errFakeInit)
	assert.Nil(t, h)
	assert.Equal(t, 0, m.Stats().Handles)
	assert.Equal(t, 0, s.liveContexts())

	// Unit A was created before B failed and is not rolled back.
	st := m.Stats()
	assert.True(t, st.Unit(UnitA).Initialized)
	assert.Equal(t, 0, st.Unit(UnitA).Refs)

	// The next consumer reuses it.
	h, err = m.Acquire([]ChannelConfig{cfg(UnitA, 1)})
	require.NoError(t, err)
	assert.Equal(t, 1, d.createdCount(UnitA))

	require.NoError(t, h.Release())
	assert.False(t, m.Stats().Unit(UnitA).Initialized)
	assert.Equal(t, 0, d.live(UnitA))
}

func TestLastReleaseSweepsOrphanedUnit(t *testing.T) {
	m, d, _ := newTestManager(t)
	d.newErr[UnitB] = errFakeInit

	_, err := m.Acquire([]ChannelConfig{cfg(UnitA, 0), cfg(UnitB, 0)})
	require.ErrorIs(t, err, errFakeInit)
	require.True(t, m.Stats().Unit(UnitA).Initialized)

	// A handle that never touches unit A still releases the orphan.
	delete(d.newErr, UnitB)
	h, err := m.Acquire([]ChannelConfig{cfg(UnitB, 1)})
	require.NoError(t, err)
	require.NoError(t, h.Release())

	st := m.Stats()
	assert.Equal(t, 0, st.Handles)
	assert.False(t, st.Unit(UnitA).Initialized)
	assert.False(t, st.Unit(UnitB).Initialized)
	assert.Equal(t, 0, d.live(UnitA))

	h, err = m.Acquire([]ChannelConfig{cfg(UnitA, 0)})
	require.NoError(t, err)
	assert.Equal(t, 2, d.createdCount(UnitA))
	require.NoError(t, h.Release())
}

func TestConfigureFailureIsNotFatal(t *testing.T) {
	m, d, _ := newTestManager(t)
	d.configErr[channelKey{UnitA, 3}] = errFakeConfig

	h, err := m.Acquire([]ChannelConfig{cfg(UnitA, 0), cfg(UnitA, 3)})
	require.NoError(t, err)

	chans := h.Channels()
	require.Len(t, chans, 2)
	assert.True(t, chans[0].Configured)
	assert.False(t, chans[1].Configured)
	assert.True(t, chans[1].Calibrated)

	_, err = h.ReadVoltage(UnitA, 3)
	assert.NoError(t, err)
}

func TestCalibrationFailureIsNotFatal(t *testing.T) {
	m, _, s := newTestManager(t)
	s.createErr[UnitB] = errFakeCali

	h, err := m.Acquire([]ChannelConfig{cfg(UnitA, 0), cfg(UnitB, 4)})
	require.NoError(t, err)

	chans := h.Channels()
	assert.True(t, chans[0].Calibrated)
	assert.False(t, chans[1].Calibrated)

	raw, err := h.ReadRaw(UnitB, 4)
	require.NoError(t, err)
	assert.Equal(t, 2048, raw)

	_, err = h.ReadVoltage(UnitB, 4)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, h.Release())
	assert.Equal(t, 0, s.liveContexts())
}

func TestNilSchemeLeavesChannelsUncalibrated(t *testing.T) {
	d := newFakeDriver()
	m := NewManager(d, nil)

	h, err := m.Acquire([]ChannelConfig{cfg(UnitA, 0)})
	require.NoError(t, err)
	assert.False(t, h.Channels()[0].Calibrated)

	_, err = h.ReadVoltage(UnitA, 0)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, h.Release())
}

func TestDoubleRelease(t *testing.T) {
	m, d, s := newTestManager(t)

	h1, err := m.Acquire([]ChannelConfig{cfg(UnitA, 0)})
	require.NoError(t, err)
	h2, err := m.Acquire([]ChannelConfig{cfg(UnitA, 1)})
	require.NoError(t, err)

	require.NoError(t, h1.Release())
	require.NoError(t, h1.Release())

	st := m.Stats()
	assert.Equal(t, 1, st.Handles)
	assert.Equal(t, 1, st.Unit(UnitA).Refs)
	assert.True(t, st.Unit(UnitA).Initialized)
	assert.Equal(t, 1, s.liveContexts())
	assert.Equal(t, 1, d.live(UnitA))

	require.NoError(t, h2.Release())
}

func TestReadAfterRelease(t *testing.T) {
	m, _, _ := newTestManager(t)

	h1, err := m.Acquire([]ChannelConfig{cfg(UnitA, 0)})
	require.NoError(t, err)
	h2, err := m.Acquire([]ChannelConfig{cfg(UnitA, 0)})
	require.NoError(t, err)
	defer h2.Release()

	require.NoError(t, h1.Release())

	// Unit A is still initialized through h2.
	_, err = h1.ReadRaw(UnitA, 0)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = h1.ReadVoltage(UnitA, 0)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestFirstWriterWins(t *testing.T) {
	m, d, s := newTestManager(t)

	h1, err := m.Acquire([]ChannelConfig{{Unit: UnitA, Channel: 0, Atten: Atten11dB, BitWidth: BitWidth12}})
	require.NoError(t, err)
	h2, err := m.Acquire([]ChannelConfig{{Unit: UnitA, Channel: 0, Atten: Atten0dB, BitWidth: BitWidth12}})
	require.NoError(t, err)

	// The channel was configured once, and h2 is calibrated for 11dB.
	assert.Equal(t, 1, d.configured[channelKey{UnitA, 0}])
	require.Len(t, s.attens, 2)
	assert.Equal(t, Atten11dB, s.attens[1])
	assert.True(t, h2.Channels()[0].Configured)

	require.NoError(t, h1.Release())
	require.NoError(t, h2.Release())
	assert.Empty(t, m.owners)
}

func TestIdenticalSettingsReuseConfiguration(t *testing.T) {
	m, d, _ := newTestManager(t, WithConflictPolicy(RejectConflicts))

	h1, err := m.Acquire([]ChannelConfig{cfg(UnitA, 0)})
	require.NoError(t, err)
	// BitWidthDefault resolves to the same 12 bits.
	h2, err := m.Acquire([]ChannelConfig{{Unit: UnitA, Channel: 0, Atten: Atten11dB}})
	require.NoError(t, err)

	assert.Equal(t, 1, d.configured[channelKey{UnitA, 0}])
	require.NoError(t, h1.Release())
	require.NoError(t, h2.Release())
}

func TestRejectConflicts(t *testing.T) {
	m, d, _ := newTestManager(t, WithConflictPolicy(RejectConflicts))

	h1, err := m.Acquire([]ChannelConfig{cfg(UnitA, 0)})
	require.NoError(t, err)

	h2, err := m.Acquire([]ChannelConfig{
		cfg(UnitB, 0),
		{Unit: UnitA, Channel: 0, Atten: Atten6dB, BitWidth: BitWidth12},
	})
	assert.ErrorIs(t, err, ErrChannelConflict)
	assert.Nil(t, h2)
	assert.Equal(t, 0, d.createdCount(UnitB), "conflict is detected before any unit is created")
	assert.Equal(t, 1, m.Stats().Handles)

	require.NoError(t, h1.Release())

	// Once the owner is gone the new settings are accepted.
	h2, err = m.Acquire([]ChannelConfig{{Unit: UnitA, Channel: 0, Atten: Atten6dB, BitWidth: BitWidth12}})
	require.NoError(t, err)
	require.NoError(t, h2.Release())
}

func TestMaxHandles(t *testing.T) {
	m, _, _ := newTestManager(t, WithMaxHandles(2))

	h1, err := m.Acquire([]ChannelConfig{cfg(UnitA, 0)})
	require.NoError(t, err)
	h2, err := m.Acquire([]ChannelConfig{cfg(UnitA, 1)})
	require.NoError(t, err)

	_, err = m.Acquire([]ChannelConfig{cfg(UnitA, 2)})
	assert.ErrorIs(t, err, ErrNoMemory)

	require.NoError(t, h1.Release())
	h3, err := m.Acquire([]ChannelConfig{cfg(UnitA, 2)})
	require.NoError(t, err)

	require.NoError(t, h2.Release())
	require.NoError(t, h3.Release())
}

func TestClose(t *testing.T) {
	m, d, _ := newTestManager(t)

	h, err := m.Acquire([]ChannelConfig{cfg(UnitA, 0), cfg(UnitB, 0)})
	require.NoError(t, err)

	require.NoError(t, m.Close())
	assert.Equal(t, 0, d.live(UnitA))
	assert.Equal(t, 0, d.live(UnitB))

	_, err = h.ReadRaw(UnitA, 0)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = m.Acquire([]ChannelConfig{cfg(UnitA, 0)})
	assert.ErrorIs(t, err, ErrInvalidState)

	// Releasing after close must not delete units twice.
	require.NoError(t, h.Release())
	assert.Equal(t, 1, d.deleted[UnitA.index()])
	assert.Equal(t, 0, m.Stats().Handles)
	require.NoError(t, m.Close())
}

func TestTwoConsumersShareUnit(t *testing.T) {
	m, d, s := newTestManager(t)
	d.raw[channelKey{UnitA, 0}] = 1000
	d.raw[channelKey{UnitA, 3}] = 3000

	h1, err := m.Acquire([]ChannelConfig{cfg(UnitA, 0), cfg(UnitA, 3)})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Stats().Handles)

	h2, err := m.Acquire([]ChannelConfig{cfg(UnitA, 3)})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Stats().Handles)

	for _, h := range []*Handle{h1, h2} {
		mv, err := h.ReadVoltage(UnitA, 3)
		require.NoError(t, err)
		assert.Equal(t, 6000, mv)
	}

	require.NoError(t, h1.Release())
	assert.Equal(t, 1, m.Stats().Handles)
	require.NoError(t, h2.Release())
	assert.Equal(t, 0, m.Stats().Handles)

	assert.Equal(t, 1, d.createdCount(UnitA))
	assert.Equal(t, 0, d.live(UnitA))
	assert.Equal(t, 0, s.liveContexts())
}

func TestConcurrentConsumers(t *testing.T) {
	m, d, s := newTestManager(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unit := UnitA
			if i%2 == 1 {
				unit = UnitB
			}
			ch := Channel(i % MaxChannel)
			for j := 0; j < 50; j++ {
				h, err := m.Acquire([]ChannelConfig{cfg(unit, ch)})
				if !assert.NoError(t, err) {
					return
				}
				_, err = h.ReadVoltage(unit, ch)
				assert.NoError(t, err)
				assert.NoError(t, h.Release())
			}
		}(i)
	}
	wg.Wait()

	st := m.Stats()
	assert.Equal(t, 0, st.Handles)
	assert.False(t, st.Unit(UnitA).Initialized)
	assert.False(t, st.Unit(UnitB).Initialized)
	assert.Equal(t, 0, d.live(UnitA))
	assert.Equal(t, 0, d.live(UnitB))
	assert.Equal(t, 0, s.liveContexts())
	assert.Equal(t, 800, d.readCount())
}

func TestManagerLogsLifecycle(t *testing.T) {
	var mu sync.Mutex
	var lines []string
	SetDebugWriter(func(s string) {
		mu.Lock()
		lines = append(lines, s)
		mu.Unlock()
	})
	defer SetDebugWriter(func(string) {})

	m, d, _ := newTestManager(t)
	d.configErr[channelKey{UnitA, 1}] = errFakeConfig

	h, err := m.Acquire([]ChannelConfig{cfg(UnitA, 1)})
	require.NoError(t, err)
	require.NoError(t, h.Release())

	mu.Lock()
	out := strings.Join(lines, "\n")
	mu.Unlock()
	assert.Contains(t, out, "I (adc) ADC1 initialized")
	assert.Contains(t, out, "W (adc) configure ADC1_CH1")
	assert.Contains(t, out, "handles=1")
	assert.Contains(t, out, "I (adc) ADC1 released")
}

func TestLogLevelFiltersOutput(t *testing.T) {
	var lines []string
	SetDebugWriter(func(s string) { lines = append(lines, s) })
	defer SetDebugWriter(func(string) {})
	SetLogLevel(LevelWarn)
	defer SetLogLevel(LevelInfo)

	l := NewLogger("test")
	l.Info("hidden")
	l.Debug("hidden")
	l.Warn("shown")
	l.Error("shown too")

	assert.Equal(t, []string{"W (test) shown", "E (test) shown too"}, lines)

	var nilLogger *Logger
	nilLogger.Error("no panic")
}
