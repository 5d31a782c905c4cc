package config

import (
	"fmt"
	"log/slog"

	"github.com/ironsheep/skytiff/internal/arena"
	"github.com/ironsheep/skytiff/internal/errs"
	"github.com/ironsheep/skytiff/internal/field"
	"github.com/ironsheep/skytiff/internal/tiff"
	"github.com/ironsheep/skytiff/internal/tone"
)

// Validate checks the preferences for a run over nchan input images. It
// reports every problem before anything is allocated.
func (c *Config) Validate(nchan int) error {
	if nchan != 1 && nchan != 3 {
		return errs.Config("config", fmt.Errorf("%w: only 1 or 3 FITS images may be given, got %d", errs.ErrChannelCount, nchan))
	}
	if c.OutFile == "" {
		return errs.Configf("OUTFILE_NAME is empty")
	}
	if c.Gamma < 1e-3 || c.Gamma > 10 {
		return errs.Configf("GAMMA %g outside [0.001, 10]", c.Gamma)
	}
	if c.GammaFac < 1e-3 || c.GammaFac > 10 {
		return errs.Configf("GAMMA_FAC %g outside [0.001, 10]", c.GammaFac)
	}
	if c.ColourSat < 0 || c.ColourSat > 10 {
		return errs.Configf("COLOUR_SAT %g outside [0, 10]", c.ColourSat)
	}
	if len(c.Binning) > 2 {
		return errs.Configf("BINNING takes at most 2 values")
	}
	bx, by := c.Bin()
	if bx < 1 || by < 1 || bx > 32768 || by > 32768 {
		return errs.Configf("BINNING %dx%d outside [1, 32768]", bx, by)
	}
	if c.Pyramid() {
		if c.TileSize < 16 || c.TileSize%16 != 0 {
			return errs.Configf("TILE_SIZE %d must be a positive multiple of 16", c.TileSize)
		}
		if c.PyramidMin < 1 {
			return errs.Configf("PYRAMID_MINSIZE must be positive")
		}
	}
	if c.MemoryMaxImage < 0 || c.MemoryMaxVRAM < 0 {
		return errs.Configf("memory limits must not be negative")
	}
	if c.NThreads < 0 {
		return errs.Configf("NTHREADS must not be negative")
	}
	if c.PreviewName != "" && (c.PreviewSize < 1 || c.PreviewMaxSource < 1) {
		return errs.Configf("PREVIEW_SIZE and PREVIEW_MAXSOURCE must be positive")
	}

	if _, err := c.ToneParams(); err != nil {
		return err
	}
	if _, err := c.TIFFOptions(nchan, "", 0); err != nil {
		return err
	}
	if _, err := c.Levels(nchan); err != nil {
		return err
	}
	mode, err := c.TagMode()
	if err != nil {
		return err
	}
	if mode == field.TagMatch && len(c.ChannelTags) == 0 {
		return errs.Configf("CHANNELTAG_TYPE MATCH needs CHANNEL_TAGS")
	}
	return nil
}

// ToneParams returns the display settings.
func (c *Config) ToneParams() (tone.Params, error) {
	format, err := tone.ParseBits(c.Bits)
	if err != nil {
		return tone.Params{}, errs.Config("config", fmt.Errorf("BITS_PER_CHANNEL: %w", err))
	}
	curve, err := tone.ParseCurve(c.GammaType)
	if err != nil {
		return tone.Params{}, errs.Config("config", fmt.Errorf("GAMMA_TYPE: %w", err))
	}
	return tone.Params{
		Gamma:      c.Gamma,
		GammaFac:   c.GammaFac,
		Saturation: c.ColourSat,
		Curve:      curve,
		Negative:   c.Negative,
		Format:     format,
	}, nil
}

// TIFFOptions returns the output layout for nchan channels. estimate is
// the expected pixel payload in bytes.
func (c *Config) TIFFOptions(nchan int, software string, estimate int64) (tiff.Options, error) {
	format, err := tone.ParseBits(c.Bits)
	if err != nil {
		return tiff.Options{}, errs.Config("config", fmt.Errorf("BITS_PER_CHANNEL: %w", err))
	}
	comp, err := tiff.ParseCompression(c.Compression)
	if err != nil {
		return tiff.Options{}, errs.Config("config", fmt.Errorf("COMPRESSION_TYPE: %w", err))
	}
	big, err := tiff.ParseBigMode(c.BigTIFF)
	if err != nil {
		return tiff.Options{}, errs.Config("config", fmt.Errorf("BIGTIFF_TYPE: %w", err))
	}
	o := tiff.Options{
		Channels:      nchan,
		Bits:          format.Bits(),
		Float:         format.IsFloat(),
		Compression:   comp,
		Big:           big,
		EstimatedSize: estimate,
		Software:      software,
		Description:   c.Description,
		Copyright:     c.Copyright,
	}
	if c.Pyramid() {
		o.TileSize = c.TileSize
	}
	return o, nil
}

// Levels returns the calibration settings of nchan channels.
func (c *Config) Levels(nchan int) ([]field.Levels, error) {
	out := make([]field.Levels, nchan)
	for i := range out {
		sky, err := field.ParseSkyType(nth(c.SkyType, i))
		if err != nil {
			return nil, errs.Config("config", fmt.Errorf("SKY_TYPE: %w", err))
		}
		mint, err := field.ParseMinType(nth(c.MinType, i))
		if err != nil {
			return nil, errs.Config("config", fmt.Errorf("MIN_TYPE: %w", err))
		}
		maxt, err := field.ParseMaxType(nth(c.MaxType, i))
		if err != nil {
			return nil, errs.Config("config", fmt.Errorf("MAX_TYPE: %w", err))
		}
		l := field.Levels{
			SkyType:    sky,
			SkyLevel:   nth(c.SkyLevel, i),
			MinType:    mint,
			MinLevel:   nth(c.MinLevel, i),
			MaxType:    maxt,
			MaxLevel:   nth(c.MaxLevel, i),
			Saturation: nth(c.SaturLevel, i),
		}

		switch {
		case l.MinType == field.MinQuantile && (l.MinLevel < 0 || l.MinLevel > 1):
			return nil, errs.Configf("channel %d: MIN_LEVEL quantile %g outside [0, 1]", i+1, l.MinLevel)
		case l.MinType == field.MinGreyLevel && (l.MinLevel <= 0 || l.MinLevel >= 1):
			return nil, errs.Configf("channel %d: MIN_LEVEL grey level %g outside (0, 1)", i+1, l.MinLevel)
		case l.MaxType == field.MaxQuantile && (l.MaxLevel < 0 || l.MaxLevel > 1):
			return nil, errs.Configf("channel %d: MAX_LEVEL quantile %g outside [0, 1]", i+1, l.MaxLevel)
		case l.MinType == field.MinManual && l.MaxType == field.MaxManual && l.MinLevel >= l.MaxLevel:
			return nil, errs.Config("config", fmt.Errorf("channel %d: %w: MIN_LEVEL %g >= MAX_LEVEL %g",
				i+1, errs.ErrLevelRange, l.MinLevel, l.MaxLevel))
		}
		out[i] = l
	}
	return out, nil
}

// TagMode decodes CHANNELTAG_TYPE.
func (c *Config) TagMode() (field.TagMode, error) {
	m, err := field.ParseTagMode(c.ChannelTagType)
	if err != nil {
		return m, errs.Config("config", fmt.Errorf("CHANNELTAG_TYPE: %w", err))
	}
	return m, nil
}

// Arena returns the plane budget.
func (c *Config) Arena() arena.Config {
	return arena.Config{
		MaxRAM:  int64(c.MemoryMaxImage) * arena.MB,
		MaxDisk: int64(c.MemoryMaxVRAM) * arena.MB,
		SwapDir: c.SwapDir,
	}
}

// LogLevel maps VERBOSE_TYPE to a slog level.
func (c *Config) LogLevel() slog.Level {
	switch c.VerboseType {
	case "QUIET":
		return slog.LevelError
	case "FULL":
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
