package preview

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
)

// HSL is a colour in HSL space.
type HSL struct {
	H int `json:"h"` // Hue: 0-360 degrees
	S int `json:"s"` // Saturation: 0-100 percent
	L int `json:"l"` // Lightness: 0-100 percent
}

// Colour is one display colour in several notations. Percentage is set for
// dominant colours only.
type Colour struct {
	Hex        string   `json:"hex"`
	RGB        [3]uint8 `json:"rgb"`
	HSL        HSL      `json:"hsl"`
	Percentage float64  `json:"percentage,omitempty"`
}

func newColour(r, g, b uint8) Colour {
	c := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	h, s, l := c.Hsl()
	if math.IsNaN(h) {
		h = 0
	}
	return Colour{
		Hex: c.Hex(),
		RGB: [3]uint8{r, g, b},
		HSL: HSL{H: int(h), S: int(s * 100), L: int(l * 100)},
	}
}

// MeanColour averages the display values of every pixel.
func MeanColour(img *image.NRGBA) Colour {
	b := img.Bounds()
	var sum [3]float64
	n := float64(b.Dx() * b.Dy())
	if n == 0 {
		return newColour(0, 0, 0)
	}
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+4*b.Dx()]
		for x := 0; x < len(row); x += 4 {
			sum[0] += float64(row[x])
			sum[1] += float64(row[x+1])
			sum[2] += float64(row[x+2])
		}
	}
	return newColour(uint8(sum[0]/n+0.5), uint8(sum[1]/n+0.5), uint8(sum[2]/n+0.5))
}

// DominantColours returns the count most frequent colours, most frequent
// first.
//
// # Colour Quantization
//
// Similar colours are grouped by dividing each component by 16 and
// rounding down, so #F0F0F0 and #FAFAFA both count as #F0F0F0.
func DominantColours(img *image.NRGBA, count int) []Colour {
	b := img.Bounds()
	counts := make(map[[3]uint8]int)
	total := 0
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+4*b.Dx()]
		for x := 0; x < len(row); x += 4 {
			counts[[3]uint8{row[x] / 16 * 16, row[x+1] / 16 * 16, row[x+2] / 16 * 16}]++
			total++
		}
	}

	colours := make([]Colour, 0, len(counts))
	for rgb, n := range counts {
		c := newColour(rgb[0], rgb[1], rgb[2])
		c.Percentage = float64(n) / float64(total) * 100
		colours = append(colours, c)
	}
	sort.Slice(colours, func(i, j int) bool {
		if colours[i].Percentage != colours[j].Percentage {
			return colours[i].Percentage > colours[j].Percentage
		}
		return colours[i].Hex < colours[j].Hex
	})
	if len(colours) > count {
		colours = colours[:count]
	}
	return colours
}

// String renders the colour for log and terminal output.
func (c Colour) String() string {
	return fmt.Sprintf("%s hsl(%d,%d%%,%d%%)", c.Hex, c.HSL.H, c.HSL.S, c.HSL.L)
}
