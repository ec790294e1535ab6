//go:build rp2040 && curvecal

package main

import (
	"adcshare/core"
)

// Offset and gain error in mV, fitted against a reference meter on the
// 3.3V rail. Refit for boards with a different VREF source.
var curveCoefficients = map[core.Atten][]float64{
	core.Atten11dB: {8, 0.0021},
}

func calibrationScheme() core.CalibrationScheme {
	return core.CurveFitting{
		Line:         core.LineFitting{FullScaleMilliVolts: fullScale()},
		Coefficients: curveCoefficients,
	}
}
