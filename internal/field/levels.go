package field

import (
	"fmt"
	"strings"
)

// SkyType selects how the background level is obtained.
type SkyType int

const (
	SkyAuto SkyType = iota
	SkyManual
)

// MinType selects how the low cut is obtained.
type MinType int

const (
	MinGreyLevel MinType = iota
	MinQuantile
	MinManual
)

// MaxType selects how the high cut is obtained.
type MaxType int

const (
	MaxQuantile MaxType = iota
	MaxManual
)

// ParseSkyType accepts AUTO and MANUAL.
func ParseSkyType(s string) (SkyType, error) {
	switch strings.ToUpper(s) {
	case "AUTO":
		return SkyAuto, nil
	case "MANUAL":
		return SkyManual, nil
	}
	return SkyAuto, fmt.Errorf("unknown sky type %q", s)
}

// ParseMinType accepts QUANTILE, MANUAL and GREYLEVEL.
func ParseMinType(s string) (MinType, error) {
	switch strings.ToUpper(s) {
	case "GREYLEVEL", "GRAYLEVEL":
		return MinGreyLevel, nil
	case "QUANTILE":
		return MinQuantile, nil
	case "MANUAL":
		return MinManual, nil
	}
	return MinGreyLevel, fmt.Errorf("unknown min type %q", s)
}

// ParseMaxType accepts QUANTILE and MANUAL.
func ParseMaxType(s string) (MaxType, error) {
	switch strings.ToUpper(s) {
	case "QUANTILE":
		return MaxQuantile, nil
	case "MANUAL":
		return MaxManual, nil
	}
	return MaxQuantile, fmt.Errorf("unknown max type %q", s)
}

func (t SkyType) String() string {
	if t == SkyManual {
		return "MANUAL"
	}
	return "AUTO"
}

func (t MinType) String() string {
	switch t {
	case MinQuantile:
		return "QUANTILE"
	case MinManual:
		return "MANUAL"
	default:
		return "GREYLEVEL"
	}
}

func (t MaxType) String() string {
	if t == MaxManual {
		return "MANUAL"
	}
	return "QUANTILE"
}

// Levels are the calibration settings of one channel. MinLevel is a
// value, a quantile fraction or a grey level depending on MinType;
// MaxLevel is a value or a quantile fraction.
type Levels struct {
	SkyType    SkyType
	SkyLevel   float64
	MinType    MinType
	MinLevel   float64
	MaxType    MaxType
	MaxLevel   float64
	Saturation float64
}

// needsStats reports whether the image has to be sampled.
func (l Levels) needsStats() bool {
	return l.SkyType == SkyAuto || l.MinType == MinQuantile || l.MaxType == MaxQuantile
}
