package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adcshare/core"
)

func TestDriverLifecycle(t *testing.T) {
	d := NewDriver()

	h, err := d.NewUnit(core.UnitA)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Live(core.UnitA))

	require.NoError(t, d.ConfigChannel(h, 3, core.Atten11dB, core.BitWidth12))
	v, err := d.Read(h, 3)
	require.NoError(t, err)
	assert.Equal(t, DefaultSample(core.UnitA, 3), v)

	d.Sample = func(unit core.Unit, ch core.Channel) int { return 7 }
	v, err = d.Read(h, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	require.NoError(t, d.DeleteUnit(h))
	assert.Equal(t, 0, d.Live(core.UnitA))
}

func TestDriverUnavailable(t *testing.T) {
	d := NewDriver()
	d.SetUnavailable(core.UnitB, true)

	_, err := d.NewUnit(core.UnitB)
	assert.ErrorIs(t, err, ErrUnitBusy)

	d.SetUnavailable(core.UnitB, false)
	_, err = d.NewUnit(core.UnitB)
	assert.NoError(t, err)
}

func TestDriverRejectsForeignHandle(t *testing.T) {
	d := NewDriver()
	assert.ErrorIs(t, d.DeleteUnit("bogus"), core.ErrInvalidArgument)
	assert.ErrorIs(t, d.ConfigChannel(nil, 0, core.Atten0dB, core.BitWidth9), core.ErrInvalidArgument)
	_, err := d.Read(42, 0)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestMCUCloseTearsDownUnits(t *testing.T) {
	d := NewDriver()
	m := Start(d, core.LineFitting{})

	h, err := m.Firmware.Manager.Acquire([]core.ChannelConfig{{Unit: core.UnitA, Channel: 0}})
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, 1, d.Live(core.UnitA))

	require.NoError(t, m.Close())
	assert.Equal(t, 0, d.Live(core.UnitA))
}
