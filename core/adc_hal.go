package core

// Unit selects one of the two ADC converter peripherals.
type Unit uint8

const (
	UnitA Unit = 1 // ADC1
	UnitB Unit = 2 // ADC2
)

// UnitCount is the number of physical units managed.
const UnitCount = 2

// Valid reports whether u names a physical unit.
func (u Unit) Valid() bool {
	return u == UnitA || u == UnitB
}

// index maps a valid unit to its slot.
func (u Unit) index() int {
	return int(u) - 1
}

func (u Unit) String() string {
	switch u {
	case UnitA:
		return "ADC1"
	case UnitB:
		return "ADC2"
	default:
		return "ADC?(" + itoa(int(u)) + ")"
	}
}

// Channel is an analog input index on a unit.
type Channel uint8

// MaxChannel bounds channel indices on every unit.
const MaxChannel = 10

// Atten is the input attenuation of a channel.
type Atten uint8

const (
	Atten0dB   Atten = 0
	Atten2_5dB Atten = 1
	Atten6dB   Atten = 2
	Atten11dB  Atten = 3
)

// Valid reports whether a names a supported attenuation.
func (a Atten) Valid() bool {
	return a <= Atten11dB
}

func (a Atten) String() string {
	switch a {
	case Atten0dB:
		return "0dB"
	case Atten2_5dB:
		return "2.5dB"
	case Atten6dB:
		return "6dB"
	case Atten11dB:
		return "11dB"
	default:
		return "atten?(" + itoa(int(a)) + ")"
	}
}

// BitWidth is the conversion resolution. BitWidthDefault resolves to 12 bits.
type BitWidth uint8

const (
	BitWidthDefault BitWidth = 0
	BitWidth9       BitWidth = 9
	BitWidth10      BitWidth = 10
	BitWidth11      BitWidth = 11
	BitWidth12      BitWidth = 12
	BitWidth13      BitWidth = 13
)

// Valid reports whether b is the default or a supported resolution.
func (b BitWidth) Valid() bool {
	return b == BitWidthDefault || (b >= BitWidth9 && b <= BitWidth13)
}

// Bits returns the effective resolution in bits.
func (b BitWidth) Bits() int {
	if b == BitWidthDefault {
		return 12
	}
	return int(b)
}

// MaxRaw returns the largest raw sample value at this resolution.
func (b BitWidth) MaxRaw() int {
	return 1<<uint(b.Bits()) - 1
}

// ChannelConfig describes one logical sampling point.
type ChannelConfig struct {
	Unit     Unit
	Channel  Channel
	Atten    Atten
	BitWidth BitWidth
}

// Validate checks the config fields against the supported ranges.
func (c ChannelConfig) Validate() error {
	if !c.Unit.Valid() || c.Channel >= MaxChannel || !c.Atten.Valid() || !c.BitWidth.Valid() {
		return ErrInvalidArgument
	}
	return nil
}

// sameSettings compares the hardware parameters, ignoring the resolved default.
func (c ChannelConfig) sameSettings(o ChannelConfig) bool {
	return c.Atten == o.Atten && c.BitWidth.Bits() == o.BitWidth.Bits()
}

func (c ChannelConfig) String() string {
	return c.Unit.String() + "_CH" + itoa(int(c.Channel)) +
		" atten=" + c.Atten.String() + " bits=" + itoa(c.BitWidth.Bits())
}

// UnitHandle is the driver's opaque handle to a created unit.
type UnitHandle interface{}

// ADCDriver is the hardware collaborator that owns unit registers.
// Platform-specific implementations live under targets/.
type ADCDriver interface {
	// NewUnit powers up and claims a converter unit.
	NewUnit(unit Unit) (UnitHandle, error)

	// DeleteUnit releases a unit created by NewUnit.
	DeleteUnit(h UnitHandle) error

	// ConfigChannel sets attenuation and resolution for one channel.
	// Returns an error if the channel is already claimed with other settings.
	ConfigChannel(h UnitHandle, ch Channel, atten Atten, width BitWidth) error

	// Read performs a one-shot conversion and returns the raw sample.
	Read(h UnitHandle, ch Channel) (int, error)
}

// CalibrationContext is the scheme's opaque per-channel correction data.
type CalibrationContext interface{}

// CalibrationScheme converts raw samples to millivolts.
type CalibrationScheme interface {
	// Name identifies the scheme in logs ("curve_fitting", "line_fitting").
	Name() string

	Create(unit Unit, atten Atten, width BitWidth) (CalibrationContext, error)
	Delete(ctx CalibrationContext) error
	RawToVoltage(ctx CalibrationContext, raw int) (int, error)
}

// Global singletons used by the package-level API.
var (
	adcDriver         ADCDriver
	calibrationScheme CalibrationScheme
)

// SetADCDriver is called by target-specific code to register its driver.
func SetADCDriver(d ADCDriver) {
	adcDriver = d
}

// MustADC returns the configured driver or panics if missing.
func MustADC() ADCDriver {
	if adcDriver == nil {
		panic("ADC driver not configured")
	}
	return adcDriver
}

// SetCalibrationScheme is called by target-specific code to register the
// scheme selected for the chip.
func SetCalibrationScheme(s CalibrationScheme) {
	calibrationScheme = s
}
