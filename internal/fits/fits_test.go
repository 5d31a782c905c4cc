package fits

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ironsheep/skytiff/internal/errs"
	"github.com/ironsheep/skytiff/internal/fits/fitstest"
)

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func TestOpenBitpix(t *testing.T) {
	tests := []struct {
		name   string
		bitpix int
		bscale float64
		bzero  float64
		data   []float64
	}{
		{"uint8", 8, 0, 0, fitstest.Ramp(5, 3, 0, 10)},
		{"int16", 16, 0, 0, fitstest.Ramp(5, 3, -300, 41)},
		{"uint16 via bzero", 16, 1, 32768, fitstest.Ramp(5, 3, 0, 4000)},
		{"int32 scaled", 32, 0.5, 0, fitstest.Ramp(5, 3, -7, 1.5)},
		{"int64", 64, 0, 0, fitstest.Ramp(5, 3, 1e6, 3)},
		{"float32", -32, 0, 0, fitstest.Ramp(5, 3, 0.25, 0.5)},
		{"float64", -64, 0, 0, fitstest.Ramp(5, 3, -1.5, 0.125)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := fitstest.Write(t, "img.fits", fitstest.HDU{
				Bitpix: tt.bitpix, Width: 5, Height: 3,
				Bscale: tt.bscale, Bzero: tt.bzero, Data: tt.data,
			})
			im, err := Open(path)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer im.Close()

			if im.Width() != 5 || im.Height() != 3 || im.Bitpix != tt.bitpix {
				t.Fatalf("got %dx%d bitpix %d", im.Width(), im.Height(), im.Bitpix)
			}
			got := make([]float32, 15)
			if err := im.ReadRows(got, 3); err != nil {
				t.Fatalf("ReadRows: %v", err)
			}
			if diff := cmp.Diff(toFloat32(tt.data), got); diff != "" {
				t.Errorf("samples (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSeekAndReadPixels(t *testing.T) {
	data := fitstest.Ramp(4, 6, 0, 1)
	path := fitstest.Write(t, "img.fits", fitstest.HDU{Bitpix: -32, Width: 4, Height: 6, Data: data})
	im, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer im.Close()

	if err := im.Seek(4); err != nil {
		t.Fatal(err)
	}
	rows := make([]float32, 8)
	if err := im.ReadRows(rows, 2); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(toFloat32(data[16:24]), rows); diff != "" {
		t.Errorf("rows (-want +got):\n%s", diff)
	}
	if err := im.ReadRows(rows, 1); !errors.Is(err, errs.ErrShortRead) {
		t.Errorf("read past end: %v", err)
	}

	px := make([]float32, 3)
	if err := im.ReadPixels(px, 9); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float32{9, 10, 11}, px); diff != "" {
		t.Errorf("pixels (-want +got):\n%s", diff)
	}
}

func TestOpenExtensions(t *testing.T) {
	path := fitstest.Write(t, "mef.fits",
		fitstest.HDU{Bitpix: 8, Cards: [][2]string{{"OBJECT", "'NGC 253'"}}},
		fitstest.HDU{Bitpix: 16, Width: 2, Height: 2, Data: []float64{1, 2, 3, 4},
			Cards: [][2]string{{"EXTNAME", "'SCI'"}, {"FILTER", "'Ks      '"}}},
		fitstest.HDU{Bitpix: -32, Width: 3, Height: 1, Data: []float64{7, 8, 9},
			Cards: [][2]string{{"EXTNAME", "'WHT'"}}},
	)

	tests := []struct {
		name  string
		ext   int
		width int
	}{
		{path, 1, 2},
		{path + "[1]", 1, 2},
		{path + "[SCI]", 1, 2},
		{path + "[wht]", 2, 3},
		{path + "[2]", 2, 3},
	}
	for _, tt := range tests {
		t.Run(filepath.Base(tt.name), func(t *testing.T) {
			im, err := Open(tt.name)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer im.Close()
			if im.Ext != tt.ext || im.Width() != tt.width {
				t.Fatalf("ext %d width %d, want ext %d width %d", im.Ext, im.Width(), tt.ext, tt.width)
			}
		})
	}

	im, err := Open(path + "[SCI]")
	if err != nil {
		t.Fatal(err)
	}
	defer im.Close()
	if v, _ := im.Header.Value("filter"); v != "Ks" {
		t.Errorf("FILTER = %q", v)
	}

	if _, err := Open(path + "[ERR]"); errs.KindOf(err) != errs.KindConfig {
		t.Errorf("missing extension: %v", err)
	}
	if _, err := Open(path + "[0]"); errs.KindOf(err) != errs.KindConfig {
		t.Errorf("empty primary: %v", err)
	}
}

func TestHeaderValues(t *testing.T) {
	path := fitstest.Write(t, "hdr.fits", fitstest.HDU{
		Bitpix: 8, Width: 1, Height: 1, Data: []float64{0},
		Cards: [][2]string{
			{"EXPTIME", "1.5D2 / seconds"},
			{"CCDTEMP", "-10"},
			{"DONE", "F"},
			{"QUOTE", "'it''s'"},
		},
	})
	im, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer im.Close()
	h := im.Header

	if v, ok := h.Float("EXPTIME"); !ok || v != 150 {
		t.Errorf("EXPTIME = %v, %v", v, ok)
	}
	if v, ok := h.Int("CCDTEMP"); !ok || v != -10 {
		t.Errorf("CCDTEMP = %v, %v", v, ok)
	}
	if v, ok := h.Value("DONE"); !ok || v != "F" {
		t.Errorf("DONE = %q", v)
	}
	if v, _ := h.Value("QUOTE"); v != "it's" {
		t.Errorf("QUOTE = %q", v)
	}
	if _, ok := h.Value("MISSING"); ok {
		t.Error("MISSING found")
	}
	if h.Keys[0] != "SIMPLE" {
		t.Errorf("first key %q", h.Keys[0])
	}
}

func TestOpenErrors(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "none.fits")); errs.KindOf(err) != errs.KindIO {
		t.Errorf("missing file: %v", err)
	}

	short := filepath.Join(t.TempDir(), "short.fits")
	if err := os.WriteFile(short, fitstest.Encode(fitstest.HDU{Bitpix: 8, Width: 1, Height: 1, Data: []float64{1}})[:100], 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(short); !errors.Is(err, errs.ErrShortRead) {
		t.Errorf("truncated header: %v", err)
	}

	// Header complete, data missing.
	data := fitstest.Encode(fitstest.HDU{Bitpix: 16, Width: 4, Height: 4, Data: fitstest.Ramp(4, 4, 0, 1)})
	trunc := filepath.Join(t.TempDir(), "trunc.fits")
	if err := os.WriteFile(trunc, data[:2880+10], 0o644); err != nil {
		t.Fatal(err)
	}
	im, err := Open(trunc)
	if err != nil {
		t.Fatal(err)
	}
	defer im.Close()
	buf := make([]float32, 16)
	err = im.ReadRows(buf, 4)
	if errs.KindOf(err) != errs.KindIO || !errors.Is(err, errs.ErrShortRead) {
		t.Errorf("truncated data: %v", err)
	}
}
