// Package config holds the conversion preferences.
//
// Preferences are read from STIFF-style configuration files: one keyword
// per line followed by one or more values separated by commas or blanks,
// with '#' starting a comment. Keywords are case-insensitive. Per-channel
// lists repeat their last value when fewer values than channels are given.
package config

import (
	"os"
	"runtime"
)

// Config is the full set of preferences.
type Config struct {
	OutFile     string
	ImageType   string
	BigTIFF     string
	Compression string
	TileSize    int
	PyramidMin  int
	Bits        int
	Binning     []int
	Flip        string

	Gamma     float64
	GammaType string
	GammaFac  float64
	ColourSat float64
	Negative  bool

	SkyType    []string
	SkyLevel   []float64
	MinType    []string
	MinLevel   []float64
	MaxType    []string
	MaxLevel   []float64
	SaturLevel []float64

	ChannelTagType string
	ChannelTags    []string
	ChannelTagKey  string

	Description string
	Copyright   string

	ReportName       string
	PreviewName      string
	PreviewMaxSource int
	PreviewSize      int

	// MemoryMaxImage and MemoryMaxVRAM are in MB.
	MemoryMaxImage int
	MemoryMaxVRAM  int
	SwapDir        string
	NThreads       int
	VerboseType    string
}

// Default returns the built-in preferences.
func Default() *Config {
	return &Config{
		OutFile:     "skytiff.tif",
		ImageType:   "TIFF",
		BigTIFF:     "AUTO",
		Compression: "NONE",
		TileSize:    256,
		PyramidMin:  256,
		Bits:        8,
		Binning:     []int{1},
		Flip:        "NONE",

		Gamma:     2.2,
		GammaType: "POWER_LAW",
		GammaFac:  1.0,
		ColourSat: 1.0,

		SkyType:    []string{"AUTO"},
		SkyLevel:   []float64{0},
		MinType:    []string{"GREYLEVEL"},
		MinLevel:   []float64{0.005},
		MaxType:    []string{"QUANTILE"},
		MaxLevel:   []float64{0.995},
		SaturLevel: []float64{40000},

		ChannelTagType: "MANUAL",
		ChannelTags:    []string{"Blue", "Green", "Red"},
		ChannelTagKey:  "FILTER",

		Copyright: "",

		PreviewMaxSource: 4096,
		PreviewSize:      512,

		MemoryMaxImage: 1024,
		MemoryMaxVRAM:  32768,
		SwapDir:        os.TempDir(),
		VerboseType:    "NORMAL",
	}
}

// Workers returns the worker count: NTHREADS when positive, otherwise one
// less than the number of CPUs, at least one.
func (c *Config) Workers() int {
	if c.NThreads > 0 {
		return c.NThreads
	}
	return max(1, runtime.NumCPU()-1)
}

// Bin returns the x and y binning factors.
func (c *Config) Bin() (int, int) {
	switch len(c.Binning) {
	case 0:
		return 1, 1
	case 1:
		return c.Binning[0], c.Binning[0]
	default:
		return c.Binning[0], c.Binning[1]
	}
}

// Pyramid reports whether a multi-resolution file is requested.
func (c *Config) Pyramid() bool {
	return c.ImageType == "TIFF-PYRAMID"
}

// FlipXY decodes the FLIP_TYPE keyword.
func (c *Config) FlipXY() (x, y bool) {
	switch c.Flip {
	case "X":
		return true, false
	case "Y":
		return false, true
	case "XY":
		return true, true
	}
	return false, false
}

// nth returns the value for channel i, repeating the last one.
func nth[T any](list []T, i int) T {
	var zero T
	if len(list) == 0 {
		return zero
	}
	if i >= len(list) {
		return list[len(list)-1]
	}
	return list[i]
}
