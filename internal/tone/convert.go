package tone

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ironsheep/skytiff/internal/errs"
)

// lumEpsilon guards the colour ratio against black pixels.
const lumEpsilon = 1e-15

// Levels are the calibration cuts of one channel.
type Levels struct {
	Min float32
	Max float32
}

// Params holds the display settings shared by every channel.
type Params struct {
	// Gamma is the display gamma used by the PowerLaw curve.
	Gamma float64
	// GammaFac is the luminance gamma correction factor.
	GammaFac float64
	// Saturation is the colour saturation; 1 keeps colours, 0 gives grey.
	Saturation float64
	// Curve selects the display transfer function.
	Curve CurveKind
	// Negative inverts the output.
	Negative bool
	// Format is the output sample type.
	Format Format
}

// Converter turns rows of channel samples into interleaved output pixels.
// It holds no mutable state and may be shared by concurrent workers.
type Converter struct {
	nchan      int
	min        [3]float32
	scale      [3]float32
	invNchan   float32
	invGammaF  float64
	saturation float64
	curve      Curve
	format     Format
	white      float64
	limit      float64
	negative   bool
}

// New validates the channel count and precomputes the per-channel scales.
// levels must hold one entry per channel, 1 or 3 of them, with Min < Max.
func New(p Params, levels []Levels) (*Converter, error) {
	n := len(levels)
	if n != 1 && n != 3 {
		return nil, errs.Config("tone", fmt.Errorf("%w: got %d", errs.ErrChannelCount, n))
	}
	if p.GammaFac <= 0 || p.Gamma <= 0 {
		return nil, errs.Configf("gamma (%g) and gamma factor (%g) must be positive", p.Gamma, p.GammaFac)
	}

	c := &Converter{
		nchan:      n,
		invNchan:   1 / float32(n),
		invGammaF:  1 / p.GammaFac,
		saturation: p.Saturation / 3,
		curve:      NewCurve(p.Curve, p.Gamma),
		format:     p.Format,
		white:      p.Format.Max(),
		negative:   p.Negative,
	}
	c.limit = c.white
	if !p.Format.IsFloat() {
		c.limit += 0.5
	}
	for a, l := range levels {
		if !(l.Min < l.Max) {
			return nil, errs.Config("tone", fmt.Errorf("channel %d: %w (%g >= %g)", a+1, errs.ErrLevelRange, l.Min, l.Max))
		}
		c.min[a] = l.Min
		c.scale[a] = float32(1 / (float64(l.Max) - float64(l.Min)))
	}
	return c, nil
}

// Channels returns the number of input channels.
func (c *Converter) Channels() int { return c.nchan }

// Format returns the output sample type.
func (c *Converter) Format() Format { return c.format }

// BytesPerPixel returns the size of one interleaved output pixel.
func (c *Converter) BytesPerPixel() int {
	return c.nchan * c.format.BytesPerSample()
}

// Convert maps npix pixels. src holds one slice per channel, each at least
// npix long; dst receives npix*BytesPerPixel bytes, channels interleaved,
// multi-byte samples little-endian.
func (c *Converter) Convert(dst []byte, src [][]float32, npix int) {
	n := c.nchan
	bps := c.format.BytesPerSample()
	color := n == 3
	var v [3]float32

	o := 0
	for x := 0; x < npix; x++ {
		var lum float32
		for a := 0; a < n; a++ {
			f := (src[a][x] - c.min[a]) * c.scale[a]
			if f < 0 {
				f = 0
			}
			v[a] = f
			lum += f * c.invNchan
		}

		dlum := float64(lum)
		ceiling := math.Pow(dlum, 1-c.invGammaF)
		for a := 0; a < n; a++ {
			if float64(v[a]) >= ceiling {
				v[a] = float32(ceiling)
			}
		}
		glum := math.Pow(dlum, c.invGammaF)

		for a := 0; a < n; a++ {
			ratio := 1.0
			if color && dlum > lumEpsilon {
				d := dlum + c.saturation*(2*float64(v[a])-float64(v[(a+1)%3])-float64(v[(a+2)%3]))
				if d < 0 {
					d = 0
				}
				ratio = d / dlum
			}
			c.put(dst[o:o+bps], c.curve.Apply(ratio*glum))
			o += bps
		}
	}
}

// put scales a curve value into the output range and stores it.
func (c *Converter) put(dst []byte, y float64) {
	val := c.white * y
	// Blank (NaN) pixels and NaN ratios from infinite samples render black.
	if math.IsNaN(val) {
		val = 0
	}
	if c.format.IsFloat() {
		if val > c.limit {
			val = c.limit
		} else if val < 0 {
			val = 0
		}
		if c.negative {
			val = c.limit - val
		}
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(val)))
		return
	}

	val += 0.5
	if val > c.limit {
		val = c.limit
	} else if val < 0 {
		val = 0
	}
	if c.negative {
		val = c.limit - val
	}
	switch c.format {
	case Uint16:
		binary.LittleEndian.PutUint16(dst, uint16(val))
	default:
		dst[0] = uint8(val)
	}
}
