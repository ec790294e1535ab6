package mcu

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adcshare/core"
	"adcshare/host/sim"
	"adcshare/protocol"
)

func TestRetrieveDictionary(t *testing.T) {
	client, _ := connect(t, sim.NewDriver())
	m := client.mcu
	assert.Nil(t, m.GetDictionary())

	require.NoError(t, m.RetrieveDictionary())
	dict := m.GetDictionary()
	require.NotNil(t, dict)

	assert.Equal(t, protocol.Version, dict.Version)
	assert.Equal(t, "line_fitting", dict.Config["ADC_CALIBRATION"])
	assert.Equal(t, "2", dict.Config["ADC_UNITS"])
	assert.Equal(t, 0, dict.Commands["adc_acquire oid=%c channels=%*s"])
	assert.Equal(t, 9, dict.Responses["identify_response offset=%u data=%.*s"])

	// The link stays usable after the handshake.
	_, err := client.Acquire(1, []core.ChannelConfig{adcCfg(core.UnitA, 0)})
	assert.NoError(t, err)
}

func TestRetrieveDictionaryUncalibrated(t *testing.T) {
	target := sim.Start(sim.NewDriver(), nil)
	m := NewMCU()
	m.Attach(target.Port())
	defer func() {
		m.Close()
		target.Close()
	}()

	require.NoError(t, m.RetrieveDictionary())
	assert.Equal(t, "none", m.GetDictionary().Config["ADC_CALIBRATION"])
}

func TestRetrieveDictionaryMismatch(t *testing.T) {
	target := sim.Start(sim.NewDriver(), core.LineFitting{})
	m := NewMCU()
	m.registry.Register("adc_trigger", "oid=%c", nil)
	m.Attach(target.Port())
	defer func() {
		m.Close()
		target.Close()
	}()

	err := m.RetrieveDictionary()
	assert.ErrorIs(t, err, ErrDictionaryMismatch)
	assert.Contains(t, err.Error(), `firmware lacks "adc_trigger oid=%c"`)
	assert.Nil(t, m.GetDictionary())
}

func TestVerifyIDMismatch(t *testing.T) {
	m := NewMCU()
	dict := &Dictionary{Commands: map[string]int{}, Responses: map[string]int{}}
	for _, cmd := range m.registry.Commands() {
		dict.Commands[cmd.Signature()] = int(cmd.ID)
	}
	require.NoError(t, m.verify(dict))

	dict.Commands["adc_stats"] = 42
	err := m.verify(dict)
	assert.ErrorIs(t, err, ErrDictionaryMismatch)
	assert.Contains(t, err.Error(), `"adc_stats" is 42 on firmware, 6 on host`)
}

func TestPrintDictionary(t *testing.T) {
	dict := &Dictionary{
		Version:   "v1",
		Config:    map[string]string{"B": "2", "A": "1"},
		Commands:  map[string]int{"adc_stats": 6, "adc_acquire oid=%c channels=%*s": 0},
		Responses: map[string]int{"adc_acquired oid=%c status=%c calibrated=%u": 1},
	}

	var buf bytes.Buffer
	dict.PrintDictionary(&buf)
	assert.Equal(t, "Version: v1\n"+
		"Config:\n  A = 1\n  B = 2\n"+
		"Commands (2):\n  [0] adc_acquire oid=%c channels=%*s\n  [6] adc_stats\n"+
		"Responses (1):\n  [1] adc_acquired oid=%c status=%c calibrated=%u\n", buf.String())
}

func TestRetrieveDictionaryNotConnected(t *testing.T) {
	assert.ErrorIs(t, NewMCU().RetrieveDictionary(), ErrNotConnected)
}
