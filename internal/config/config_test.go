package config

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ironsheep/skytiff/internal/errs"
	"github.com/ironsheep/skytiff/internal/field"
	"github.com/ironsheep/skytiff/internal/tiff"
	"github.com/ironsheep/skytiff/internal/tone"
)

func TestDefaultValidates(t *testing.T) {
	c := Default()
	for _, n := range []int{1, 3} {
		if err := c.Validate(n); err != nil {
			t.Errorf("Validate(%d): %v", n, err)
		}
	}
}

func TestRead(t *testing.T) {
	const file = `
# Test configuration
OUTFILE_NAME   m31.tif          # output
image_type     tiff-pyramid
BINNING        2,3
GAMMA          2.5
NEGATIVE       Y
MIN_TYPE       QUANTILE MANUAL
MIN_LEVEL      0.01, 100
MAX_LEVEL      0.999
CHANNEL_TAGS   "H alpha",OIII , SII
DESCRIPTION    "Andromeda # core"
`
	c := Default()
	if err := c.Read(strings.NewReader(file), "test.conf"); err != nil {
		t.Fatalf("Read: %v", err)
	}

	if c.OutFile != "m31.tif" || !c.Pyramid() || !c.Negative || c.Gamma != 2.5 {
		t.Errorf("scalars: %+v", c)
	}
	if bx, by := c.Bin(); bx != 2 || by != 3 {
		t.Errorf("Bin = %d,%d", bx, by)
	}
	if diff := cmp.Diff([]string{"H alpha", "OIII", "SII"}, c.ChannelTags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
	if c.Description != "Andromeda # core" {
		t.Errorf("description %q", c.Description)
	}

	levels, err := c.Levels(3)
	if err != nil {
		t.Fatalf("Levels: %v", err)
	}
	want := []field.Levels{
		{SkyType: field.SkyAuto, MinType: field.MinQuantile, MinLevel: 0.01, MaxType: field.MaxQuantile, MaxLevel: 0.999, Saturation: 40000},
		{SkyType: field.SkyAuto, MinType: field.MinManual, MinLevel: 100, MaxType: field.MaxQuantile, MaxLevel: 0.999, Saturation: 40000},
		{SkyType: field.SkyAuto, MinType: field.MinManual, MinLevel: 100, MaxType: field.MaxQuantile, MaxLevel: 0.999, Saturation: 40000},
	}
	if diff := cmp.Diff(want, levels); diff != "" {
		t.Errorf("levels (-want +got):\n%s", diff)
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"unknown keyword", "FOO 1"},
		{"bad keyword value", "IMAGE_TYPE JPEG"},
		{"bad int", "TILE_SIZE big"},
		{"bad bool", "NEGATIVE maybe"},
		{"too many values", "GAMMA 1 2"},
		{"missing value", "GAMMA"},
		{"open quote", `DESCRIPTION "abc`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Default().Read(strings.NewReader("# header\n"+tt.line+"\n"), "x.conf")
			if errs.KindOf(err) != errs.KindConfig {
				t.Fatalf("got %v, want config error", err)
			}
			if !strings.Contains(err.Error(), "x.conf:2") {
				t.Errorf("error %q lacks position", err)
			}
		})
	}
}

func TestSet(t *testing.T) {
	c := Default()
	if err := c.Set("gamma_type", "srgb"); err != nil {
		t.Fatal(err)
	}
	if err := c.Set("SATUR_LEVEL", "1000,2000,3000"); err != nil {
		t.Fatal(err)
	}
	if c.GammaType != "SRGB" {
		t.Errorf("GammaType %q", c.GammaType)
	}
	if diff := cmp.Diff([]float64{1000, 2000, 3000}, c.SaturLevel); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if err := c.Set("NOPE", "1"); err == nil {
		t.Error("unknown keyword accepted")
	}
}

func TestDumpRoundTrip(t *testing.T) {
	c := Default()
	c.Description = "two words"
	c.ChannelTags = []string{"i", "r", "g"}
	var buf bytes.Buffer
	if err := c.Dump(&buf, "skytiff test"); err != nil {
		t.Fatal(err)
	}

	back := &Config{}
	if err := back.Read(&buf, "dump"); err != nil {
		t.Fatalf("Read dump: %v\n%s", err, buf.String())
	}
	if diff := cmp.Diff(c, back); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestValues(t *testing.T) {
	c := Default()
	c.Binning = []int{2, 3}
	vals := c.Values()
	if len(vals) != len(Keywords()) {
		t.Fatalf("%d values for %d keywords", len(vals), len(Keywords()))
	}
	got := map[string]string{}
	for _, v := range vals {
		got[v.Name] = v.Value
	}
	for key, want := range map[string]string{"BINNING": "2,3", "GAMMA": "2.2", "NEGATIVE": "N", "COPYRIGHT": `""`} {
		if got[key] != want {
			t.Errorf("%s = %q, want %q", key, got[key], want)
		}
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		nchan  int
		mutate func(c *Config)
		is     error
	}{
		{"two channels", 2, func(*Config) {}, errs.ErrChannelCount},
		{"bits", 1, func(c *Config) { c.Bits = 12 }, nil},
		{"gamma", 1, func(c *Config) { c.Gamma = 0 }, nil},
		{"tile size", 1, func(c *Config) { c.ImageType = "TIFF-PYRAMID"; c.TileSize = 100 }, nil},
		{"binning", 1, func(c *Config) { c.Binning = []int{0} }, nil},
		{"manual range", 1, func(c *Config) {
			c.MinType, c.MaxType = []string{"MANUAL"}, []string{"MANUAL"}
			c.MinLevel, c.MaxLevel = []float64{10}, []float64{5}
		}, errs.ErrLevelRange},
		{"quantile range", 1, func(c *Config) { c.MaxLevel = []float64{1.5} }, nil},
		{"grey level", 1, func(c *Config) { c.MinLevel = []float64{1} }, nil},
		{"match without tags", 3, func(c *Config) { c.ChannelTagType = "MATCH"; c.ChannelTags = nil }, nil},
		{"preview size", 1, func(c *Config) { c.PreviewName = "p.png"; c.PreviewSize = 0 }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate(tt.nchan)
			if errs.KindOf(err) != errs.KindConfig {
				t.Fatalf("got %v, want config error", err)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("got %v, want %v", err, tt.is)
			}
		})
	}
}

func TestTypedSettings(t *testing.T) {
	c := Default()
	c.Bits = 16
	c.GammaType = "REC.709"
	c.ImageType = "TIFF-PYRAMID"
	c.Compression = "DEFLATE"

	p, err := c.ToneParams()
	if err != nil {
		t.Fatal(err)
	}
	if p.Format != tone.Uint16 || p.Curve != tone.Rec709 {
		t.Errorf("tone params %+v", p)
	}

	o, err := c.TIFFOptions(3, "skytiff", 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	want := tiff.Options{Channels: 3, Bits: 16, TileSize: 256, Compression: tiff.Deflate,
		Big: tiff.BigAuto, EstimatedSize: 1 << 20, Software: "skytiff"}
	if diff := cmp.Diff(want, o); diff != "" {
		t.Errorf("tiff options (-want +got):\n%s", diff)
	}

	a := c.Arena()
	if a.MaxRAM != 1024<<20 || a.MaxDisk != 32768<<20 {
		t.Errorf("arena %+v", a)
	}
}

func TestWorkers(t *testing.T) {
	c := Default()
	if c.Workers() < 1 {
		t.Errorf("Workers() = %d", c.Workers())
	}
	c.NThreads = 5
	if c.Workers() != 5 {
		t.Errorf("Workers() = %d", c.Workers())
	}
}

func TestFlip(t *testing.T) {
	for in, want := range map[string][2]bool{"NONE": {}, "X": {true, false}, "Y": {false, true}, "XY": {true, true}} {
		c := Default()
		c.Flip = in
		x, y := c.FlipXY()
		if x != want[0] || y != want[1] {
			t.Errorf("%s: %v,%v", in, x, y)
		}
	}
}
