// Package fitstest writes small FITS files for tests.
package fitstest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// HDU is one header and data unit. Data holds Width*Height samples, stored
// with the given Bitpix after removing Bzero/Bscale.
type HDU struct {
	Bitpix int
	Width  int
	Height int
	Bscale float64
	Bzero  float64
	// Cards are extra keyword/value pairs; string values must carry their
	// own quotes.
	Cards [][2]string
	Data  []float64
}

func card(b *bytes.Buffer, key, value string) {
	line := fmt.Sprintf("%-8s= %20s", key, value)
	if key == "END" {
		line = "END"
	}
	b.WriteString(fmt.Sprintf("%-80s", line))
}

func pad(b *bytes.Buffer, fill byte) {
	for b.Len()%2880 != 0 {
		b.WriteByte(fill)
	}
}

// Encode renders hdus as a FITS byte stream. The first HDU is primary.
func Encode(hdus ...HDU) []byte {
	var b bytes.Buffer
	for i, h := range hdus {
		var hb bytes.Buffer
		if i == 0 {
			card(&hb, "SIMPLE", "T")
		} else {
			card(&hb, "XTENSION", "'IMAGE   '")
		}
		card(&hb, "BITPIX", fmt.Sprint(h.Bitpix))
		if h.Width == 0 {
			card(&hb, "NAXIS", "0")
		} else {
			card(&hb, "NAXIS", "2")
			card(&hb, "NAXIS1", fmt.Sprint(h.Width))
			card(&hb, "NAXIS2", fmt.Sprint(h.Height))
		}
		if i > 0 {
			card(&hb, "PCOUNT", "0")
			card(&hb, "GCOUNT", "1")
		}
		scale := h.Bscale
		if scale == 0 {
			scale = 1
		}
		if h.Bscale != 0 {
			card(&hb, "BSCALE", fmt.Sprint(h.Bscale))
		}
		if h.Bzero != 0 {
			card(&hb, "BZERO", fmt.Sprint(h.Bzero))
		}
		for _, c := range h.Cards {
			card(&hb, strings.ToUpper(c[0]), c[1])
		}
		hb.WriteString(fmt.Sprintf("%-80s", "COMMENT written by fitstest"))
		card(&hb, "END", "")
		pad(&hb, ' ')
		b.Write(hb.Bytes())

		start := b.Len()
		for _, v := range h.Data {
			raw := (v - h.Bzero) / scale
			switch h.Bitpix {
			case 8:
				b.WriteByte(uint8(math.Round(raw)))
			case 16:
				binary.Write(&b, binary.BigEndian, int16(math.Round(raw)))
			case 32:
				binary.Write(&b, binary.BigEndian, int32(math.Round(raw)))
			case 64:
				binary.Write(&b, binary.BigEndian, int64(math.Round(raw)))
			case -32:
				binary.Write(&b, binary.BigEndian, float32(raw))
			case -64:
				binary.Write(&b, binary.BigEndian, raw)
			}
		}
		if b.Len() > start {
			pad(&b, 0)
		}
	}
	return b.Bytes()
}

// Write stores hdus in a file under t.TempDir and returns its path.
func Write(t testing.TB, name string, hdus ...HDU) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, Encode(hdus...), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// Ramp returns width*height samples counting up from start by step.
func Ramp(width, height int, start, step float64) []float64 {
	d := make([]float64, width*height)
	for i := range d {
		d[i] = start + float64(i)*step
	}
	return d
}
