// Package field holds the input channels of a conversion and derives their
// display levels from the image data.
package field

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/skytiff/internal/errs"
	"github.com/ironsheep/skytiff/internal/fits"
	"github.com/ironsheep/skytiff/internal/logging"
	"github.com/ironsheep/skytiff/internal/stats"
)

// Field is one input channel.
type Field struct {
	// Name is the argument the field was loaded from.
	Name string
	// File is the base name of the FITS file.
	File string
	// Ident is the OBJECT keyword, or "no ident".
	Ident string
	// Tag is the channel tag used for ordering.
	Tag string
	// Index is the display order.
	Index int

	Image *fits.Image

	Background float32
	Min        float32
	Max        float32
	Saturation float32
	// Noise is the spread of the block backgrounds, zero when the image
	// was not sampled or fits in one block.
	Noise float64
}

// Load opens a FITS image as a field.
func Load(name string) (*Field, error) {
	im, err := fits.Open(name)
	if err != nil {
		return nil, err
	}
	ident, ok := im.Header.Value("OBJECT")
	if !ok || ident == "" {
		ident = "no ident"
	}
	return &Field{
		Name:  name,
		File:  filepath.Base(im.Path()),
		Ident: ident,
		Image: im,
	}, nil
}

// Width returns the image width.
func (f *Field) Width() int { return f.Image.Width() }

// Height returns the image height.
func (f *Field) Height() int { return f.Image.Height() }

// Close releases the image.
func (f *Field) Close() error {
	if f.Image == nil {
		return nil
	}
	return f.Image.Close()
}

// Calibrate sets Background, Min, Max and Saturation from l, sampling the
// image when one of them is automatic. gammaFac is the luminance gamma
// factor used by the grey level rule.
func (f *Field) Calibrate(l Levels, gammaFac float64) error {
	f.Background = float32(l.SkyLevel)
	f.Min = float32(l.MinLevel)
	f.Max = float32(l.MaxLevel)
	f.Saturation = float32(l.Saturation)

	if l.needsStats() {
		b, err := f.sample(l)
		if err != nil {
			return err
		}
		if l.SkyType == SkyAuto {
			f.Background = b.Background()
		}
		if l.MinType == MinQuantile {
			f.Min = b.Low()
		}
		if l.MaxType == MaxQuantile {
			f.Max = b.High()
		}
		if med := b.Medians(); len(med) > 1 {
			_, f.Noise = stat.MeanStdDev(toFloat64(med), nil)
		}
	}

	if f.Max > f.Saturation {
		logging.Logger().Warn("MAX_LEVEL exceeds SATUR_LEVEL", slog.String("file", f.File),
			slog.Float64("max", float64(f.Max)), slog.Float64("saturation", float64(f.Saturation)))
	}

	if l.MinType == MinGreyLevel {
		grey := math.Pow(l.MinLevel, gammaFac)
		f.Min = float32((float64(f.Max)*grey - float64(f.Background)) / (grey - 1))
	}

	logging.Logger().Info("field calibrated", slog.String("file", f.File), slog.String("ident", f.Ident),
		slog.Int("width", f.Width()), slog.Int("height", f.Height()),
		slog.Float64("background", float64(f.Background)),
		slog.Float64("min", float64(f.Min)), slog.Float64("max", float64(f.Max)))
	return f.Validate()
}

// sample streams the image through block statistics. Non-finite samples
// are skipped.
func (f *Field) sample(l Levels) (*stats.Blocks, error) {
	b := &stats.Blocks{
		MinFrac: float32(l.MinLevel),
		MaxFrac: float32(l.MaxLevel),
		WantMin: l.MinType == MinQuantile,
		WantMax: l.MaxType == MaxQuantile,
	}
	npix := int64(f.Width()) * int64(f.Height())
	buf := make([]float32, min(int64(stats.BlockSize), npix))
	for off := int64(0); off < npix; off += int64(len(buf)) {
		n := int(min(int64(len(buf)), npix-off))
		block := buf[:n]
		if err := f.Image.ReadPixels(block, off); err != nil {
			return nil, err
		}
		b.Add(finite(block))
	}
	if b.Count() == 0 {
		return nil, errs.Config("calibrate", fmt.Errorf("%s: no finite pixel values", f.File))
	}
	return b, nil
}

// finite compacts block to its finite values.
func finite(block []float32) []float32 {
	out := block[:0]
	for _, v := range block {
		if !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0) {
			out = append(out, v)
		}
	}
	return out
}

func toFloat64(v []float32) []float64 {
	return lo.Map(v, func(x float32, _ int) float64 { return float64(x) })
}

// Validate rejects an empty display range.
func (f *Field) Validate() error {
	if !(f.Min < f.Max) {
		return errs.Config("calibrate", fmt.Errorf("%s: %w: min %g, max %g",
			f.File, errs.ErrLevelRange, f.Min, f.Max))
	}
	return nil
}

// Check verifies a set of fields can be converted together.
func Check(fields []*Field) error {
	if n := len(fields); n != 1 && n != 3 {
		return errs.Config("fields", fmt.Errorf("%w: 1 or 3 images required, got %d", errs.ErrChannelCount, n))
	}
	w, h := fields[0].Width(), fields[0].Height()
	for _, f := range fields[1:] {
		if f.Width() != w || f.Height() != h {
			return errs.Config("fields", fmt.Errorf("%w: %s is %dx%d, %s is %dx%d", errs.ErrDimensionMismatch,
				fields[0].File, w, h, f.File, f.Width(), f.Height()))
		}
	}
	return nil
}

// CloseAll closes every field and joins their errors.
func CloseAll(fields []*Field) error {
	var errList []error
	for _, f := range fields {
		if f != nil {
			errList = append(errList, f.Close())
		}
	}
	return errors.Join(errList...)
}
