//go:build rp2040 && !curvecal

package main

import (
	"adcshare/core"
)

func calibrationScheme() core.CalibrationScheme {
	return core.LineFitting{FullScaleMilliVolts: fullScale()}
}
