// Package tone converts calibrated channel samples into display pixels.
//
// For every pixel the channels are normalised against their calibration
// levels, averaged into a luminance proxy, clipped to a luminance-dependent
// ceiling, optionally blended for colour saturation, raised by the luminance
// gamma factor and finally mapped through a display tone curve into 8-bit,
// 16-bit or float samples.
package tone

import (
	"fmt"
	"math"
	"strings"
)

// CurveKind selects a display transfer function.
type CurveKind int

const (
	// PowerLaw is x^(1/gamma).
	PowerLaw CurveKind = iota
	// SRGB is the IEC 61966-2-1 transfer function.
	SRGB
	// Rec709 is the ITU-R BT.709 transfer function.
	Rec709
)

func (k CurveKind) String() string {
	switch k {
	case SRGB:
		return "SRGB"
	case Rec709:
		return "REC.709"
	default:
		return "POWER_LAW"
	}
}

// ParseCurve accepts the GAMMA_TYPE keywords POWER_LAW, SRGB and REC.709.
func ParseCurve(s string) (CurveKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "POWER_LAW", "POWER", "":
		return PowerLaw, nil
	case "SRGB":
		return SRGB, nil
	case "REC.709", "REC709":
		return Rec709, nil
	default:
		return PowerLaw, fmt.Errorf("unknown gamma type %q", s)
	}
}

// Curve is a piecewise transfer function: below Threshold the input is
// scaled by Slope, above it the result is (1+Offset)*x^Exponent - Offset.
type Curve struct {
	Threshold float64
	Slope     float64
	Exponent  float64
	Offset    float64
}

// NewCurve returns the parameters of kind. gamma only affects PowerLaw.
func NewCurve(kind CurveKind, gamma float64) Curve {
	switch kind {
	case SRGB:
		return Curve{Threshold: 0.0031308, Slope: 12.92, Exponent: 1 / 2.4, Offset: 0.055}
	case Rec709:
		return Curve{Threshold: 0.018, Slope: 4.5, Exponent: 0.45, Offset: 0.099}
	default:
		return Curve{Exponent: 1 / gamma}
	}
}

// Apply evaluates the curve at x.
func (c Curve) Apply(x float64) float64 {
	if x < c.Threshold {
		return x * c.Slope
	}
	if c.Offset == 0 {
		return math.Pow(x, c.Exponent)
	}
	return (1+c.Offset)*math.Pow(x, c.Exponent) - c.Offset
}
