package meta

import (
	"fmt"
	"math"
)

// Radiometric defaults applied to every decode.
const (
	// DefaultAmbientKelvin is 20°C.
	DefaultAmbientKelvin = 293.15
	// DefaultEmissivity is the assumed surface emissivity.
	DefaultEmissivity = 0.95
	// maxKelvin clamps the calibrated temperature range.
	maxKelvin = 500.0
)

// IRRadiometric is a decoded temperature map in centikelvin.
type IRRadiometric struct {
	// TempMap holds per-pixel Kelvin×100 values, row-major.
	TempMap []uint16
	Width   uint32
	Height  uint32
	// Emissivity and AmbientTemp carry the decode defaults.
	Emissivity  float32
	AmbientTemp float32
	// CalibrationC1 and CalibrationC2 preserve the input coefficients.
	CalibrationC1 float32
	CalibrationC2 float32
	TsNs          uint64
}

// DecodeIRRadiometric converts raw 16-bit sensor counts to centikelvin via
// the linear calibration T = c1·raw + c2, clamped to [0, 500] K.
func DecodeIRRadiometric(raw []uint16, width, height uint32, calibration [2]float32) (*IRRadiometric, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty raw data", ErrInvalidArgument)
	}
	if uint32(len(raw)) != width*height {
		return nil, fmt.Errorf("%w: %d pixels for %dx%d map", ErrInvalidArgument, len(raw), width, height)
	}

	c1, c2 := calibration[0], calibration[1]
	out := &IRRadiometric{
		TempMap:       make([]uint16, len(raw)),
		Width:         width,
		Height:        height,
		Emissivity:    DefaultEmissivity,
		AmbientTemp:   DefaultAmbientKelvin,
		CalibrationC1: c1,
		CalibrationC2: c2,
	}

	for i, v := range raw {
		kelvin := float64(c1)*float64(v) + float64(c2)
		if kelvin < 0 {
			kelvin = 0
		}
		if kelvin > maxKelvin {
			kelvin = maxKelvin
		}
		out.TempMap[i] = uint16(math.Round(kelvin * 100))
	}
	return out, nil
}
