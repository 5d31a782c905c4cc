// Package preview renders a quick-look image of a conversion.
//
// A Sink wraps the output sink of the level driver. It passes every call
// through and keeps a copy of the last directory whose sides both fit in
// MaxSource pixels. For a pyramid that is the smallest level within the
// bound. Save then converts the copy to 8 bits, fits it into a Size×Size
// box with a Lanczos filter and writes it as PNG or JPEG.
package preview

import (
	"encoding/binary"
	"fmt"
	"image"
	"log/slog"
	"math"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/parallel"
	"github.com/disintegration/imaging"

	"github.com/ironsheep/skytiff/internal/convert"
	"github.com/ironsheep/skytiff/internal/errs"
	"github.com/ironsheep/skytiff/internal/logging"
	"github.com/ironsheep/skytiff/internal/tone"
)

// Options configures a preview.
type Options struct {
	// MaxSource is the largest side of a directory worth collecting.
	MaxSource int
	// Size is the side of the box the preview is fitted into.
	Size int
	// Format is the sample type written by the wrapped sink.
	Format tone.Format
}

// Sink collects a copy of one directory on its way to the wrapped sink.
type Sink struct {
	convert.Sink
	opts Options

	collecting bool
	width      int
	height     int
	rows       int
	raw        []byte
}

// Wrap returns a Sink that forwards to inner.
func Wrap(inner convert.Sink, opts Options) *Sink {
	return &Sink{Sink: inner, opts: opts}
}

// NewDirectory starts collecting when the directory fits MaxSource.
func (s *Sink) NewDirectory(width, height int) error {
	if err := s.Sink.NewDirectory(width, height); err != nil {
		return err
	}
	s.collecting = width <= s.opts.MaxSource && height <= s.opts.MaxSource
	if !s.collecting {
		return nil
	}
	n := width * height * s.BytesPerPixel()
	if cap(s.raw) < n {
		s.raw = make([]byte, n)
	}
	s.raw = s.raw[:n]
	s.width, s.height, s.rows = width, height, 0
	return nil
}

// WriteStrip forwards a strip and copies its rows.
func (s *Sink) WriteStrip(data []byte) error {
	if err := s.Sink.WriteStrip(data); err != nil {
		return err
	}
	if s.collecting {
		rowBytes := s.width * s.BytesPerPixel()
		copy(s.raw[s.rows*rowBytes:], data)
		s.rows += len(data) / rowBytes
	}
	return nil
}

// WriteTileRow forwards a row of tiles and copies its valid pixels.
func (s *Sink) WriteTileRow(data []byte, tileRow int) error {
	if err := s.Sink.WriteTileRow(data, tileRow); err != nil {
		return err
	}
	if !s.collecting {
		return nil
	}
	t := s.TileSize()
	bpp := s.BytesPerPixel()
	rowBytes := s.width * bpp
	tileBytes := t * t * bpp
	y0 := tileRow * t
	rows := min(t, s.height-y0)
	for i := 0; i*t < s.width; i++ {
		span := min(t, s.width-i*t) * bpp
		tile := data[i*tileBytes : (i+1)*tileBytes]
		for y := 0; y < rows; y++ {
			dst := (y0+y)*rowBytes + i*t*bpp
			copy(s.raw[dst:dst+span], tile[y*t*bpp:])
		}
	}
	s.rows = y0 + rows
	return nil
}

// Collected reports the size of the directory held for the preview, or
// zeros when none fitted MaxSource.
func (s *Sink) Collected() (int, int) {
	if s.raw == nil || s.rows < s.height {
		return 0, 0
	}
	return s.width, s.height
}

// Image converts the collected directory to an 8-bit image.
//
// Returns:
//   - *image.Gray for one channel, *image.NRGBA for three.
//   - An error when no complete directory was collected.
func (s *Sink) Image() (image.Image, error) {
	w, h := s.Collected()
	if w == 0 {
		return nil, errs.Config("preview", fmt.Errorf("no level within %d pixels was written", s.opts.MaxSource))
	}
	nchan := s.Channels()
	bps := s.opts.Format.BytesPerSample()
	rowBytes := w * nchan * bps

	var img image.Image
	var pix []byte
	var stride, step int
	if nchan == 1 {
		g := image.NewGray(image.Rect(0, 0, w, h))
		img, pix, stride, step = g, g.Pix, g.Stride, 1
	} else {
		c := image.NewNRGBA(image.Rect(0, 0, w, h))
		img, pix, stride, step = c, c.Pix, c.Stride, 4
	}

	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			src := s.raw[y*rowBytes : (y+1)*rowBytes]
			dst := pix[y*stride:]
			for x := 0; x < w; x++ {
				for a := 0; a < nchan; a++ {
					dst[x*step+a] = s.sample8(src[(x*nchan+a)*bps:])
				}
				if step == 4 {
					dst[x*step+3] = 0xff
				}
			}
		}
	})
	return img, nil
}

// sample8 reduces one stored sample to 8 bits.
func (s *Sink) sample8(b []byte) uint8 {
	switch s.opts.Format {
	case tone.Uint16:
		return uint8(binary.LittleEndian.Uint16(b) >> 8)
	case tone.Float32:
		v := float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		return uint8(math.Max(0, math.Min(1, v))*255 + 0.5)
	default:
		return b[0]
	}
}

// Result describes a saved preview.
type Result struct {
	File   string   `json:"file"`
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Source [2]int   `json:"source"`
	Mean   Colour   `json:"mean_colour"`
	Top    []Colour `json:"dominant_colours"`
}

// Save writes the preview to path. The encoder follows the extension:
// .jpg and .jpeg give JPEG, anything else PNG.
//
// Parameters:
//   - path: The output file.
//
// Returns:
//   - *Result: The preview geometry and its colour summary.
//   - error: A config error when nothing was collected, an IO error when
//     the file cannot be written.
func (s *Sink) Save(path string) (*Result, error) {
	img, err := s.Image()
	if err != nil {
		return nil, err
	}
	sw, sh := s.Collected()
	small := imaging.Fit(img, s.opts.Size, s.opts.Size, imaging.Lanczos)

	enc := imgio.PNGEncoder()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		enc = imgio.JPEGEncoder(90)
	}
	if err := imgio.Save(path, small, enc); err != nil {
		return nil, errs.IO("preview", path, err)
	}

	b := small.Bounds()
	res := &Result{
		File:   path,
		Width:  b.Dx(),
		Height: b.Dy(),
		Source: [2]int{sw, sh},
		Mean:   MeanColour(small),
		Top:    DominantColours(small, 5),
	}
	logging.Logger().Info("preview written", slog.String("file", path),
		slog.Int("width", res.Width), slog.Int("height", res.Height), slog.String("mean", res.Mean.Hex))
	return res, nil
}
