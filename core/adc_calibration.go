package core

// nominalFullScale is the input voltage, in millivolts, that maps to the
// largest raw sample at each attenuation.
var nominalFullScale = [...]int{
	Atten0dB:   950,
	Atten2_5dB: 1250,
	Atten6dB:   1750,
	Atten11dB:  3100,
}

// LineFitting converts raw samples with a straight line from zero to the
// attenuation's full-scale voltage.
type LineFitting struct {
	// FullScaleMilliVolts overrides nominalFullScale per attenuation,
	// e.g. with values measured against a reference.
	FullScaleMilliVolts map[Atten]int
}

type lineContext struct {
	unit      Unit
	atten     Atten
	fullScale int
	maxRaw    int
}

func (LineFitting) Name() string { return "line_fitting" }

func (s LineFitting) newContext(unit Unit, atten Atten, width BitWidth) (*lineContext, error) {
	if !unit.Valid() || !atten.Valid() || !width.Valid() {
		return nil, ErrInvalidArgument
	}
	fs := nominalFullScale[atten]
	if v, ok := s.FullScaleMilliVolts[atten]; ok && v > 0 {
		fs = v
	}
	return &lineContext{
		unit:      unit,
		atten:     atten,
		fullScale: fs,
		maxRaw:    width.MaxRaw(),
	}, nil
}

func (s LineFitting) Create(unit Unit, atten Atten, width BitWidth) (CalibrationContext, error) {
	lc, err := s.newContext(unit, atten, width)
	if err != nil {
		return nil, err
	}
	return lc, nil
}

func (LineFitting) Delete(ctx CalibrationContext) error {
	if _, ok := ctx.(*lineContext); !ok {
		return ErrInvalidArgument
	}
	return nil
}

func (LineFitting) RawToVoltage(ctx CalibrationContext, raw int) (int, error) {
	lc, ok := ctx.(*lineContext)
	if !ok || lc == nil {
		return 0, ErrInvalidArgument
	}
	return lc.convert(raw)
}

func (lc *lineContext) convert(raw int) (int, error) {
	if raw < 0 {
		return 0, ErrInvalidArgument
	}
	if raw > lc.maxRaw {
		raw = lc.maxRaw
	}
	return (raw*lc.fullScale + lc.maxRaw/2) / lc.maxRaw, nil
}

// CurveFitting corrects the line fit with a per-attenuation error
// polynomial, lowest order first, in millivolts:
//
//	mv = line(raw) - (c0 + c1*raw + c2*raw^2 + ...)
//
// An attenuation without coefficients has no calibration.
type CurveFitting struct {
	Line         LineFitting
	Coefficients map[Atten][]float64
}

type curveContext struct {
	line  *lineContext
	coeff []float64
}

func (CurveFitting) Name() string { return "curve_fitting" }

func (s CurveFitting) Create(unit Unit, atten Atten, width BitWidth) (CalibrationContext, error) {
	lc, err := s.Line.newContext(unit, atten, width)
	if err != nil {
		return nil, err
	}
	coeff, ok := s.Coefficients[atten]
	if !ok || len(coeff) == 0 {
		return nil, ErrNotFound
	}
	return &curveContext{line: lc, coeff: coeff}, nil
}

func (CurveFitting) Delete(ctx CalibrationContext) error {
	if _, ok := ctx.(*curveContext); !ok {
		return ErrInvalidArgument
	}
	return nil
}

func (CurveFitting) RawToVoltage(ctx CalibrationContext, raw int) (int, error) {
	cc, ok := ctx.(*curveContext)
	if !ok || cc == nil {
		return 0, ErrInvalidArgument
	}
	mv, err := cc.line.convert(raw)
	if err != nil {
		return 0, err
	}

	var errMV, pow float64 = 0, 1
	for _, c := range cc.coeff {
		errMV += c * pow
		pow *= float64(raw)
	}
	out := float64(mv) - errMV
	if out < 0 {
		return 0, nil
	}
	return int(out + 0.5), nil
}
